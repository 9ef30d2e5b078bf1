// Package normalizer turns a patient record plus its extracted report
// texts into one canonical text blob. The output is deterministic: the
// same record and the same extraction results always produce byte-identical
// text, which is what makes re-ingestion idempotent downstream.
package normalizer

import (
	"fmt"
	"strings"

	"github.com/tanay2406/doctor-rag/internal/record"
)

// Placeholder stands in for any absent scalar field so the blob always has
// a stable shape for the generation model to reason over.
const Placeholder = "N/A"

// NoReadableData marks a report whose extraction failed or yielded nothing.
const NoReadableData = "[No readable data found]"

// Normalize renders the record's scalar fields in a fixed order followed by
// one labeled block per report. extracted must be aligned index-for-index
// with rec.Reports; an empty string at position i renders as the
// NoReadableData marker for "Report i+1".
func Normalize(rec *record.PatientRecord, extracted []string) string {
	var b strings.Builder

	writeField(&b, "Patient ID", rec.PatientKey)
	writeField(&b, "Name", rec.Name)
	writeField(&b, "Gender", rec.Gender)
	writeField(&b, "Age", renderAge(rec.Age))
	writeField(&b, "Blood Group", rec.BloodGroup)
	writeField(&b, "Symptoms", rec.Symptoms)
	writeField(&b, "Medical History", rec.History)
	writeField(&b, "Ongoing Treatment", rec.OngoingTreatment)
	writeField(&b, "Medications", rec.Medications)
	writeField(&b, "Allergies", rec.Allergies)
	writeField(&b, "Chronic Conditions", rec.ChronicConditions)

	b.WriteString("\n---- Extracted Report Details ----\n")
	if len(rec.Reports) == 0 {
		b.WriteString("Reports: None\n")
	}
	for i := range rec.Reports {
		text := ""
		if i < len(extracted) {
			text = strings.TrimSpace(extracted[i])
		}
		if text == "" {
			fmt.Fprintf(&b, "Report %d: %s\n\n", i+1, NoReadableData)
			continue
		}
		fmt.Fprintf(&b, "Report %d:\n%s\n\n", i+1, text)
	}

	created := Placeholder
	if !rec.CreatedAt.IsZero() {
		created = rec.CreatedAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	writeField(&b, "Record Created At", created)

	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if value == "" {
		value = Placeholder
	}
	fmt.Fprintf(b, "%s: %s\n", label, value)
}

// renderAge treats only an unset or negative age as absent; zero is a
// valid recorded age (a newborn).
func renderAge(age *int) string {
	if age == nil || *age < 0 {
		return ""
	}
	return fmt.Sprintf("%d", *age)
}
