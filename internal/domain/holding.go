package domain

import "time"

// Holding one non-fungible unit of ownership of a BOOM.
type Holding struct {
	ID         string    `json:"id"`
	AssetID    string    `json:"asset_id"`
	AssetName  string    `json:"asset_name,omitempty"`
	AcquiredAt time.Time `json:"acquired_at"`
	Sold       bool      `json:"sold,omitempty"`
}
