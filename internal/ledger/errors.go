package ledger

// ValidationError reports a missing required input field. It is returned
// before any persistence is attempted, so a validation failure never leaves
// partial side effects.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return "missing required field: " + e.Field
}

// IssuanceError wraps any failure during the multi-step issuance sequence.
// Issuance is not idempotent: a caller retry mints a new transaction hash
// and a new block.
type IssuanceError struct {
	Err error
}

func (e *IssuanceError) Error() string {
	return "issuance failed: " + e.Err.Error()
}

func (e *IssuanceError) Unwrap() error {
	return e.Err
}
