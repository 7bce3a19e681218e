package sharing

// Reason identifies why a share resolution was denied. Resolution checks run
// in a fixed order and the first failing check wins, so a revoked grant
// reports Revoked even when it has also expired.
type Reason string

const (
	ReasonNotFound              Reason = "share token not found"
	ReasonRevoked               Reason = "share token has been revoked"
	ReasonExpired               Reason = "share token has expired"
	ReasonHospitalNotAuthorized Reason = "access denied for this hospital"
	ReasonCredentialMissing     Reason = "original vic not found"
)

// ShareError is the structured denial of a share resolution. It is surfaced
// verbatim to the caller, never as a generic failure.
type ShareError struct {
	Reason Reason
}

func (e *ShareError) Error() string {
	return string(e.Reason)
}

// ValidationError reports a missing required field of a share management
// request.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return "missing required field: " + e.Field
}
