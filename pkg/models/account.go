package models

import "time"

// Account links a user to an external authentication provider.
type Account struct {
	ID         string    `json:"id" db:"id"`                   // Provider account row id
	UserID     int64     `json:"user_id" db:"user_id"`         // Owning user
	Provider   string    `json:"provider" db:"provider"`       // e.g. "google"
	ProviderID string    `json:"provider_id" db:"provider_id"` // Subject id at the provider
	CreatedAt  time.Time `json:"created_at" db:"created_at"`   // Link timestamp
}
