package ai

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// TopicDraft is one revision topic proposed by the model for a subject.
type TopicDraft struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
}

// QuestionDraft is one practice question proposed by the model for a topic.
type QuestionDraft struct {
	Prompt     string `json:"prompt"`
	Answer     string `json:"answer"`
	Difficulty int    `json:"difficulty"`
}

// Generator produces study content. Implementations must be safe for
// concurrent use; the queue may process several subjects at once.
type Generator interface {
	// DecomposeSubject breaks a subject into revision topics. material is
	// optional student-provided source text (syllabus, notes).
	DecomposeSubject(ctx context.Context, subject, material string) ([]TopicDraft, error)
	// ExtractQuestions writes practice questions for one topic.
	ExtractQuestions(ctx context.Context, subject string, topic TopicDraft) ([]QuestionDraft, error)
}

// topicsResponse is the JSON shape the model is asked to return for topic
// decomposition.
type topicsResponse struct {
	Topics []TopicDraft `json:"topics"`
}

func (r topicsResponse) validate() error {
	if len(r.Topics) == 0 {
		return errors.New("model returned no topics")
	}
	for i, topic := range r.Topics {
		if strings.TrimSpace(topic.Name) == "" {
			return errors.Errorf("topic %d has no name", i)
		}
	}
	return nil
}

// questionsResponse is the JSON shape the model is asked to return for
// question generation.
type questionsResponse struct {
	Questions []QuestionDraft `json:"questions"`
}

func (r *questionsResponse) validate() error {
	if len(r.Questions) == 0 {
		return errors.New("model returned no questions")
	}
	for i := range r.Questions {
		q := &r.Questions[i]
		if strings.TrimSpace(q.Prompt) == "" {
			return errors.Errorf("question %d has no prompt", i)
		}
		if strings.TrimSpace(q.Answer) == "" {
			return errors.Errorf("question %d has no answer", i)
		}
		// Models drift outside the requested range now and then.
		if q.Difficulty < 1 {
			q.Difficulty = 1
		}
		if q.Difficulty > 5 {
			q.Difficulty = 5
		}
	}
	return nil
}
