package models

import "time"

// Session is a login session row. Deleting a user's sessions forces
// re-authentication, which is how access changes take effect.
type Session struct {
	ID        string    `json:"id" db:"id"`                 // Session token identifier
	UserID    int64     `json:"user_id" db:"user_id"`       // Owning user
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"` // Expiry timestamp
	CreatedAt time.Time `json:"created_at" db:"created_at"` // Creation timestamp
}
