package model

import (
	"encoding/json"
	"time"
)

// FieldPermissions gates which credential attributes are visible through a
// share grant. Identity fields (transaction hash, block number, hospital,
// patient id, patient name) are never gated.
type FieldPermissions struct {
	Diagnosis bool `json:"diagnosis"`
	Treatment bool `json:"treatment"`
	Doctor    bool `json:"doctor"`
	Date      bool `json:"date"`
	Notes     bool `json:"notes"`
}

// UnmarshalJSON applies the default for every absent key, so a partial
// permission object only overrides the keys it names. A patient opening up
// notes does not silently hide the clinical fields.
func (p *FieldPermissions) UnmarshalJSON(data []byte) error {
	var raw struct {
		Diagnosis *bool `json:"diagnosis"`
		Treatment *bool `json:"treatment"`
		Doctor    *bool `json:"doctor"`
		Date      *bool `json:"date"`
		Notes     *bool `json:"notes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = DefaultFieldPermissions()
	if raw.Diagnosis != nil {
		p.Diagnosis = *raw.Diagnosis
	}
	if raw.Treatment != nil {
		p.Treatment = *raw.Treatment
	}
	if raw.Doctor != nil {
		p.Doctor = *raw.Doctor
	}
	if raw.Date != nil {
		p.Date = *raw.Date
	}
	if raw.Notes != nil {
		p.Notes = *raw.Notes
	}
	return nil
}

// DefaultFieldPermissions returns the permission set applied when the share
// creator does not specify one: clinical fields visible, free-text notes
// hidden.
func DefaultFieldPermissions() FieldPermissions {
	return FieldPermissions{
		Diagnosis: true,
		Treatment: true,
		Doctor:    true,
		Date:      true,
		Notes:     false,
	}
}

// ShareGrant is a bearer capability over one credential. After creation only
// IsActive (revocation) and LastAccessed (access bookkeeping) ever change;
// grants are never deleted.
type ShareGrant struct {
	ID                 int64            `db:"id"`
	ShareToken         string           `db:"share_token"`
	TxHash             string           `db:"tx_hash"`
	PatientID          string           `db:"patient_id"`
	SharedBy           string           `db:"shared_by"`
	SharedWithHospital *string          `db:"shared_with_hospital"`
	Permissions        FieldPermissions `db:"field_permissions"`
	ExpiresAt          *time.Time       `db:"expires_at"`
	IsActive           bool             `db:"is_active"`
	CreatedAt          time.Time        `db:"created_at"`
	LastAccessed       *time.Time       `db:"last_accessed"`
}

// Expired reports whether the grant's expiry, if any, has passed.
func (g *ShareGrant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && now.After(*g.ExpiresAt)
}

// FilteredCredential is the projection of a credential through a grant's
// field permissions. Gated fields are pointers so that disallowed fields are
// absent from the serialized form, not empty.
type FilteredCredential struct {
	TransactionHash string    `json:"transaction_hash"`
	BlockNumber     uint64    `json:"block_number"`
	Hospital        string    `json:"hospital"`
	PatientID       string    `json:"patient_id"`
	PatientName     string    `json:"patient_name"`
	IssuedAt        time.Time `json:"created_at"`
	Diagnosis       *string   `json:"diagnosis,omitempty"`
	Treatment       *string   `json:"treatment,omitempty"`
	Doctor          *string   `json:"doctor,omitempty"`
	Date            *string   `json:"date,omitempty"`
	Notes           *string   `json:"notes,omitempty"`
}

// FilterCredential projects c through perms.
func FilterCredential(c *Credential, perms FieldPermissions) FilteredCredential {
	f := FilteredCredential{
		TransactionHash: c.TxHash,
		BlockNumber:     c.BlockNumber,
		Hospital:        c.Hospital,
		PatientID:       c.PatientID,
		PatientName:     c.PatientName,
		IssuedAt:        c.CreatedAt,
	}
	if perms.Diagnosis {
		f.Diagnosis = &c.Diagnosis
	}
	if perms.Treatment {
		f.Treatment = &c.Treatment
	}
	if perms.Doctor {
		f.Doctor = &c.Doctor
	}
	if perms.Date {
		f.Date = &c.RecordDate
	}
	if perms.Notes {
		f.Notes = &c.Notes
	}
	return f
}
