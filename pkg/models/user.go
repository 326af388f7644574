package models

import "time"

// User is an account holder as persisted in the users table. The numeric ID
// comes from the auth layer and is also the key used in the access file.
type User struct {
	ID          int64     `json:"id" db:"id"`                     // Numeric primary key
	Email       string    `json:"email" db:"email"`               // Login email, unique
	Name        *string   `json:"name" db:"name"`                 // Display name, nullable
	AccessLevel int       `json:"access_level" db:"access_level"` // 0 = no access
	CreatedAt   time.Time `json:"created_at" db:"created_at"`     // Signup time, immutable
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`     // Last modification
}
