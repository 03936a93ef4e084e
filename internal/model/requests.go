package model

import (
	"time"

	"github.com/google/uuid"
)

// Request DTOs. Shape and range validation happens at the HTTP boundary;
// services receive these already validated.

type CreateAllergyRequest struct {
	Allergen     string `json:"allergen" binding:"required" validate:"required"`
	Severity     string `json:"severity" binding:"required,oneof=mild moderate severe anaphylactic" validate:"required"`
	ReactionNote string `json:"reaction_note"`
	DiagnosedBy  string `json:"diagnosed_by"`
}

type CreateMedicationRequest struct {
	Name             string `json:"name" binding:"required" validate:"required"`
	ActiveIngredient string `json:"active_ingredient" binding:"required" validate:"required"`
	MinStockLevel    int    `json:"min_stock_level" binding:"min=0" validate:"min=0"`
}

type ReceiveLotRequest struct {
	LotNumber       string    `json:"lot_number" binding:"required" validate:"required"`
	Quantity        int       `json:"quantity" binding:"required,gt=0" validate:"required,gt=0"`
	ExpiryDate      time.Time `json:"expiry_date" binding:"required" validate:"required"`
	AlertWindowDays int       `json:"alert_window_days" binding:"min=0" validate:"min=0"`
}

type OpenEpisodeRequest struct {
	PatientID uuid.UUID `json:"patient_id" binding:"required" validate:"required"`
	Complaint string    `json:"complaint"`
}

type CloseEpisodeRequest struct {
	Outcome string `json:"outcome" binding:"required,oneof=referred closed" validate:"required"`
	Notes   string `json:"notes"`
}

type DispenseHTTPRequest struct {
	LotID              uuid.UUID `json:"lot_id" binding:"required" validate:"required"`
	Quantity           int       `json:"quantity" binding:"required,gt=0" validate:"required,gt=0"`
	DosageInstructions string    `json:"dosage_instructions" binding:"required" validate:"required"`
}
