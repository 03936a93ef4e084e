package model

import (
	"time"

	"github.com/google/uuid"
)

type Severity string

const (
	SeverityMild         Severity = "mild"
	SeverityModerate     Severity = "moderate"
	SeveritySevere       Severity = "severe"
	SeverityAnaphylactic Severity = "anaphylactic"
)

var severityRank = map[Severity]int{
	SeverityMild:         1,
	SeverityModerate:     2,
	SeveritySevere:       3,
	SeverityAnaphylactic: 4,
}

// SeverityRank returns the comparison rank of s; unknown severities rank 0.
func SeverityRank(s Severity) int {
	return severityRank[s]
}

// ValidSeverity reports whether s is one of the known severity grades.
func ValidSeverity(s Severity) bool {
	_, ok := severityRank[s]
	return ok
}

// BlockingSeverity reports whether a conflict of severity s must block
// dispensation outright. There is no override path for these grades.
func BlockingSeverity(s Severity) bool {
	return s == SeveritySevere || s == SeverityAnaphylactic
}

// AllergyRecord ties a patient to a normalized active ingredient. At most one
// record may exist per (patient, normalized ingredient) pair; duplicates are
// rejected at creation.
type AllergyRecord struct {
	ID                   uuid.UUID `json:"id" db:"id"`
	PatientID            uuid.UUID `json:"patient_id" db:"patient_id"`
	NormalizedIngredient string    `json:"normalized_ingredient" db:"normalized_ingredient"`
	DisplayAllergenName  string    `json:"display_allergen_name" db:"display_allergen_name"`
	Severity             Severity  `json:"severity" db:"severity"`
	ReactionNote         string    `json:"reaction_note,omitempty" db:"reaction_note"`
	DiagnosedBy          string    `json:"diagnosed_by,omitempty" db:"diagnosed_by"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
}

// Conflict is a single allergy match found by the cross-check engine.
type Conflict struct {
	AllergenName string   `json:"allergen_name"`
	Severity     Severity `json:"severity"`
	ReactionNote string   `json:"reaction_note,omitempty"`
	DiagnosedBy  string   `json:"diagnosed_by,omitempty"`
}

// CheckResult is the structured verdict of an allergy cross-check.
type CheckResult struct {
	Safe                bool       `json:"safe"`
	Conflicts           []Conflict `json:"conflicts,omitempty"`
	HasBlockingConflict bool       `json:"has_blocking_conflict"`
	WarningOnly         bool       `json:"warning_only"`
	MostSevere          *Conflict  `json:"most_severe,omitempty"`
}
