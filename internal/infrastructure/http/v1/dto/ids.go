package dto

import (
	"time"

	"salonid/internal/core/identifier"
)

// GenerateRequest asks for one identifier.
type GenerateRequest struct {
	EntityType string         `json:"entityType" binding:"required"`
	Scope      *string        `json:"scope"`
	Metadata   map[string]any `json:"metadata"`
}

// GenerateBatchRequest asks for up to Count identifiers from one sequence key.
type GenerateBatchRequest struct {
	EntityType string         `json:"entityType" binding:"required"`
	Scope      *string        `json:"scope"`
	Count      int            `json:"count" binding:"required,min=1"`
	Metadata   map[string]any `json:"metadata"`
}

// IDResponse returns a freshly issued identifier.
type IDResponse struct {
	ID string `json:"id"`
}

// BatchResponse returns the identifiers of a batch. Count may be below the
// requested amount when collisions were dropped.
type BatchResponse struct {
	IDs       []string `json:"ids"`
	Count     int      `json:"count"`
	Requested int      `json:"requested"`
}

// ValidateQuery narrows validation to one entity type.
type ValidateQuery struct {
	EntityType *string `form:"entityType"`
}

// ValidateResponse reports whether ID was issued (for EntityType, if given).
type ValidateResponse struct {
	ID         string  `json:"id"`
	EntityType *string `json:"entityType,omitempty"`
	Valid      bool    `json:"valid"`
}

// StatsQuery narrows Stats.
type StatsQuery struct {
	EntityType *string `form:"entityType"`
	Scope      *string `form:"scope"`
}

// IDRecordResponse is the registry record of an identifier.
type IDRecordResponse struct {
	ID          string         `json:"id"`
	EntityType  string         `json:"entityType"`
	Prefix      string         `json:"prefix"`
	Number      string         `json:"number"`
	DigitLength int            `json:"digitLength"`
	Scope       string         `json:"scope,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// FromGeneratedID maps a registry record to its response.
func FromGeneratedID(rec *identifier.GeneratedID) IDRecordResponse {
	return IDRecordResponse{
		ID:          rec.ID,
		EntityType:  rec.EntityType,
		Prefix:      rec.Prefix,
		Number:      rec.Number,
		DigitLength: rec.DigitLength,
		Scope:       rec.Scope,
		CreatedAt:   rec.CreatedAt,
		Metadata:    rec.Metadata,
	}
}

// EntityResponse is one entry of the prefix table.
type EntityResponse struct {
	EntityType string `json:"entityType"`
	Prefix     string `json:"prefix"`
}

// ResetQuery selects the scope of a sequence reset.
type ResetQuery struct {
	Scope *string `form:"scope"`
}
