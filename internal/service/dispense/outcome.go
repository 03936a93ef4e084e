package dispense

import (
	"github.com/lbarbosa/infirmary-api/internal/model"
)

// OutcomeKind enumerates the closed set of dispensation results. Domain
// outcomes are returned values, not errors; only infrastructure trouble
// surfaces as KindInternal.
type OutcomeKind string

const (
	KindSuccess           OutcomeKind = "success"
	KindBlocked           OutcomeKind = "blocked"
	KindEpisodeClosed     OutcomeKind = "episode_closed"
	KindBatchExpired      OutcomeKind = "batch_expired"
	KindStockInsufficient OutcomeKind = "stock_insufficient"
	KindNotFound          OutcomeKind = "not_found"
	KindInternal          OutcomeKind = "internal"
)

// Outcome carries enough structured data for the caller to explain the
// result to a human without re-querying.
type Outcome struct {
	Kind OutcomeKind `json:"kind"`

	// Success fields.
	Record         *model.DispensationRecord `json:"record,omitempty"`
	RemainingStock int                       `json:"remaining_stock,omitempty"`
	StockAlert     *model.StockAlert         `json:"stock_alert,omitempty"`
	// Warning conflicts the operator proceeded through, if any.
	Warnings []model.Conflict `json:"warnings,omitempty"`

	// Blocked fields.
	Conflicts  []model.Conflict `json:"conflicts,omitempty"`
	MostSevere *model.Conflict  `json:"most_severe,omitempty"`

	// StockInsufficient fields.
	Requested int `json:"requested,omitempty"`
	Available int `json:"available,omitempty"`

	// KindInternal detail; never serialized across the boundary.
	err error
}

// Err returns the underlying infrastructure error for KindInternal outcomes.
func (o *Outcome) Err() error {
	return o.err
}

func successOutcome(rec *model.DispensationRecord, remaining int, warnings []model.Conflict) *Outcome {
	return &Outcome{
		Kind:           KindSuccess,
		Record:         rec,
		RemainingStock: remaining,
		Warnings:       warnings,
	}
}

func blockedOutcome(check *model.CheckResult) *Outcome {
	return &Outcome{
		Kind:       KindBlocked,
		Conflicts:  check.Conflicts,
		MostSevere: check.MostSevere,
	}
}

func episodeClosedOutcome() *Outcome {
	return &Outcome{Kind: KindEpisodeClosed}
}

func batchExpiredOutcome() *Outcome {
	return &Outcome{Kind: KindBatchExpired}
}

func stockInsufficientOutcome(requested, available int) *Outcome {
	return &Outcome{Kind: KindStockInsufficient, Requested: requested, Available: available}
}

func notFoundOutcome() *Outcome {
	return &Outcome{Kind: KindNotFound}
}

func internalOutcome(err error) *Outcome {
	return &Outcome{Kind: KindInternal, err: err}
}
