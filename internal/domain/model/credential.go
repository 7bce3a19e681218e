package model

import "time"

// MedicalRecord is the hospital-supplied payload of an issuance request.
type MedicalRecord struct {
	PatientName string `json:"patient_name"`
	Diagnosis   string `json:"diagnosis"`
	Treatment   string `json:"treatment"`
	Doctor      string `json:"doctor"`
	Date        string `json:"date"`
	Notes       string `json:"notes,omitempty"`
}

// Credential is an issued VIC. Created exactly once per issuance and
// immutable thereafter; TxHash is the sole external verification key.
type Credential struct {
	ID          int64     `db:"id"`
	TxHash      string    `db:"tx_hash"`
	BlockNumber uint64    `db:"block_number"`
	Hospital    string    `db:"hospital"`
	PatientID   string    `db:"patient_id"`
	PatientName string    `db:"patient_name"`
	Diagnosis   string    `db:"diagnosis"`
	Treatment   string    `db:"treatment"`
	Doctor      string    `db:"doctor"`
	RecordDate  string    `db:"record_date"`
	Notes       string    `db:"notes"`
	CreatedAt   time.Time `db:"created_at"`
}
