package model

import (
	"time"

	"github.com/google/uuid"
)

type EpisodeStatus string

const (
	EpisodeOpen           EpisodeStatus = "open"
	EpisodeDispensed      EpisodeStatus = "dispensed"
	EpisodeReferred       EpisodeStatus = "referred"
	EpisodeClosed         EpisodeStatus = "closed"
	EpisodeBlockedAllergy EpisodeStatus = "blocked_allergy"
)

// episodeTransitions is the full state machine. Every non-open status is
// terminal; a blocked episode cannot be retried without clinical override
// outside this service.
var episodeTransitions = map[EpisodeStatus][]EpisodeStatus{
	EpisodeOpen: {EpisodeDispensed, EpisodeReferred, EpisodeClosed, EpisodeBlockedAllergy},
}

// ValidEpisodeTransition reports whether from → to is a legal status change.
func ValidEpisodeTransition(from, to EpisodeStatus) bool {
	for _, next := range episodeTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ClinicalEpisode is a single clinical encounter, from opening to one of the
// terminal statuses.
type ClinicalEpisode struct {
	ID         uuid.UUID     `json:"id" db:"id"`
	PatientID  uuid.UUID     `json:"patient_id" db:"patient_id"`
	OperatorID uuid.UUID     `json:"operator_id" db:"operator_id"`
	Complaint  string        `json:"complaint,omitempty" db:"complaint"`
	Status     EpisodeStatus `json:"status" db:"status"`
	OpenedAt   time.Time     `json:"opened_at" db:"opened_at"`
	ClosedAt   *time.Time    `json:"closed_at,omitempty" db:"closed_at"`
}
