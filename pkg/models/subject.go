package models

import "time"

type SubjectStatus string

const (
	GeneratingSubjectStatus SubjectStatus = "GENERATING"
	ReadySubjectStatus      SubjectStatus = "READY"
	FailedSubjectStatus     SubjectStatus = "FAILED"
)

// Subject is a course of study a user has uploaded material for. Status
// tracks the generation pipeline: GENERATING until both the decomposition
// and extraction stages finish, then READY (or FAILED).
type Subject struct {
	ID        string        `json:"id" db:"id"`                 // UUID
	UserID    int64         `json:"user_id" db:"user_id"`       // Owning user
	Name      string        `json:"name" db:"name"`             // e.g. "A-level Physics"
	Status    SubjectStatus `json:"status" db:"status"`         // "GENERATING", "READY", "FAILED"
	CreatedAt time.Time     `json:"created_at" db:"created_at"` // Creation timestamp
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"` // Last update timestamp
	Topics    []Topic       `json:"topics,omitempty"`           // Populated at runtime, not a column
}
