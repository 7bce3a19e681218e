package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AccessLogEntry records one successful read through a share grant. The
// AccessedFields snapshot is the filtered projection that was actually
// returned to the reader. Entries are append-only.
type AccessLogEntry struct {
	ID                 uuid.UUID       `db:"id"`
	ShareToken         string          `db:"share_token"`
	AccessedByHospital string          `db:"accessed_by_hospital"`
	AccessedFields     json.RawMessage `db:"accessed_fields"`
	IPAddress          *string         `db:"ip_address"`
	UserAgent          *string         `db:"user_agent"`
	CreatedAt          time.Time       `db:"created_at"`
}
