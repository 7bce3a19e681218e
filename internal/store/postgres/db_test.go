package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppendStatementTimeout_NoExistingQuery(t *testing.T) {
	url := appendStatementTimeout("postgres://u:p@localhost:5432/vicledger", 30000)
	assert.Equal(t, "postgres://u:p@localhost:5432/vicledger?options=-c%20statement_timeout%3D30000", url)
}

func TestAppendStatementTimeout_ExistingQuery(t *testing.T) {
	url := appendStatementTimeout("postgres://u:p@localhost:5432/vicledger?sslmode=disable", 45000)
	assert.Equal(t, "postgres://u:p@localhost:5432/vicledger?sslmode=disable&options=-c%20statement_timeout%3D45000", url)
}
