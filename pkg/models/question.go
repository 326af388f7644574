package models

import "time"

// Question is a practice question extracted for a topic. MasteryScore is the
// user's running score on it; 0 means unseen.
type Question struct {
	ID           string    `json:"id" db:"id"`                       // UUID
	TopicID      string    `json:"topic_id" db:"topic_id"`           // Parent topic
	SubjectID    string    `json:"subject_id" db:"subject_id"`       // Denormalized for subject-wide listing
	Prompt       string    `json:"prompt" db:"prompt"`               // Question text
	Answer       string    `json:"answer" db:"answer"`               // Model answer
	Difficulty   int       `json:"difficulty" db:"difficulty"`       // 1 (easy) to 5 (hard)
	MasteryScore int       `json:"mastery_score" db:"mastery_score"` // 0..100
	CreatedAt    time.Time `json:"created_at" db:"created_at"`       // Creation timestamp
}
