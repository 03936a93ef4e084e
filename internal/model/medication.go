package model

import (
	"time"

	"github.com/google/uuid"
)

// Medication is a catalog entry. NormalizedIngredient is derived from
// ActiveIngredient at creation, by the same pipeline used for comparison.
type Medication struct {
	ID                   uuid.UUID `json:"id" db:"id"`
	Name                 string    `json:"name" db:"name"`
	ActiveIngredient     string    `json:"active_ingredient" db:"active_ingredient"`
	NormalizedIngredient string    `json:"normalized_ingredient" db:"normalized_ingredient"`
	MinStockLevel        int       `json:"min_stock_level" db:"min_stock_level"`
	Active               bool      `json:"active" db:"active"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
}

// InventoryLot is a receipted batch. QuantityAvailable is mutated only by the
// dispensation orchestrator inside an atomic unit; lots are never deleted so
// exhausted batches remain for chain-of-custody history.
type InventoryLot struct {
	ID                uuid.UUID `json:"id" db:"id"`
	MedicationID      uuid.UUID `json:"medication_id" db:"medication_id"`
	LotNumber         string    `json:"lot_number" db:"lot_number"`
	QuantityTotal     int       `json:"quantity_total" db:"quantity_total"`
	QuantityAvailable int       `json:"quantity_available" db:"quantity_available"`
	ExpiryDate        time.Time `json:"expiry_date" db:"expiry_date"`
	AlertWindowDays   int       `json:"alert_window_days" db:"alert_window_days"`
	ReceivedAt        time.Time `json:"received_at" db:"received_at"`
}

// LotExpired reports whether the lot may no longer be dispensed from.
func LotExpired(lot *InventoryLot, now time.Time) bool {
	return lot.ExpiryDate.Before(now)
}

// LotExhausted reports whether the lot has no remaining stock.
func LotExhausted(lot *InventoryLot) bool {
	return lot.QuantityAvailable <= 0
}

// LotExpiringSoon reports whether the lot falls inside its own alert window.
func LotExpiringSoon(lot *InventoryLot, now time.Time) bool {
	if LotExpired(lot, now) {
		return false
	}
	window := time.Duration(lot.AlertWindowDays) * 24 * time.Hour
	return lot.ExpiryDate.Sub(now) <= window
}

type AlertLevel string

const (
	AlertCritical AlertLevel = "critical"
	AlertWarning  AlertLevel = "warning"
	AlertInfo     AlertLevel = "info"
)

// Alert reason codes.
const (
	AlertReasonExpiredStock = "EXPIRED_STOCK"
	AlertReasonOutOfStock   = "OUT_OF_STOCK"
	AlertReasonLowStock     = "LOW_STOCK"
	AlertReasonExpiringSoon = "EXPIRING_SOON"
)

// StockAlert is a derived inventory condition; it is computed, never stored.
type StockAlert struct {
	Level          AlertLevel `json:"level"`
	Reason         string     `json:"reason"`
	MedicationID   uuid.UUID  `json:"medication_id"`
	MedicationName string     `json:"medication_name"`
	LotID          *uuid.UUID `json:"lot_id,omitempty"`
	LotNumber      string     `json:"lot_number,omitempty"`
	TotalStock     int        `json:"total_stock"`
}
