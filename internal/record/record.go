// Package record defines the patient record model and its document-store
// accessor. The store is read-only from this service's point of view;
// records are owned and written by the booking application.
package record

import (
	"context"
	"errors"
	"time"
)

// ErrRecordNotFound is returned when no patient exists for the given key.
var ErrRecordNotFound = errors.New("patient record not found")

// ReportReference points at one uploaded medical report (image or PDF).
// Index is the report's position in the record's report list and drives
// the "Report N" labeling in the normalized text.
type ReportReference struct {
	URL   string
	Index int
}

// PatientRecord is the fixed shape of a patient document. Every scalar
// field is optional; absent values stay zero here and are rendered as
// "N/A" only at normalization time, never earlier. Age is a pointer so
// an absent age is distinguishable from a recorded age of zero.
type PatientRecord struct {
	PatientKey        string
	Name              string
	Gender            string
	Age               *int
	BloodGroup        string
	Symptoms          string
	History           string
	OngoingTreatment  string
	Medications       string
	Allergies         string
	ChronicConditions string
	CreatedAt         time.Time
	Reports           []ReportReference
}

// Store fetches patient records by their externally assigned key.
// Implementations return ErrRecordNotFound when the key does not exist.
type Store interface {
	Get(ctx context.Context, patientKey string) (*PatientRecord, error)
}
