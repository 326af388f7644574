package models

import "time"

// Topic is one unit of a subject's syllabus, produced by the decomposition
// stage of the generation pipeline.
type Topic struct {
	ID        string    `json:"id" db:"id"`                 // UUID
	SubjectID string    `json:"subject_id" db:"subject_id"` // Parent subject
	Name      string    `json:"name" db:"name"`             // e.g. "Electromagnetic induction"
	Summary   string    `json:"summary" db:"summary"`       // One-paragraph outline
	Position  int       `json:"position" db:"position"`     // Syllabus order, 0-based
	CreatedAt time.Time `json:"created_at" db:"created_at"` // Creation timestamp
}
