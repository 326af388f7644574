package pipeline

import (
	"context"
	"fmt"

	"github.com/ehtbanton/exammer/internal/ai"
	"github.com/ehtbanton/exammer/pkg/models"
	"github.com/ehtbanton/exammer/pkg/queue"
	"github.com/ehtbanton/exammer/pkg/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Logger defines the logging interface for the pipeline service.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Service runs the study-material pipeline. A subject is decomposed into
// topics, then every topic gets practice questions. The stages run as queue
// tasks: several subjects may generate concurrently while each subject's
// extract stage waits on its own decompose stage.
type Service struct {
	store  storage.Store
	queue  *queue.Queue
	gen    ai.Generator
	logger Logger
}

func NewService(store storage.Store, q *queue.Queue, gen ai.Generator, logger Logger) *Service {
	return &Service{store: store, queue: q, gen: gen, logger: logger}
}

// DecomposeTaskID returns the queue id of a subject's topic stage.
func DecomposeTaskID(subjectID string) string {
	return "decompose:" + subjectID
}

// ExtractTaskID returns the queue id of a subject's question stage.
func ExtractTaskID(subjectID string) string {
	return "extract:" + subjectID
}

// EnqueueSubject creates a subject row and admits its generation chain.
// The call returns once both tasks are admitted; generation continues in
// the background and the subject flips to READY or FAILED when it ends.
func (s *Service) EnqueueSubject(ctx context.Context, userID int64, name, material string) (string, error) {
	if name == "" {
		return "", errors.New("empty subject name")
	}

	subject := models.Subject{
		ID:     uuid.NewString(),
		UserID: userID,
		Name:   name,
		Status: models.GeneratingSubjectStatus,
	}
	if err := s.store.CreateSubject(subject); err != nil {
		return "", errors.Wrap(err, "creating subject")
	}

	decomposeID := DecomposeTaskID(subject.ID)
	err := s.queue.Add(queue.Descriptor{
		ID:          decomposeID,
		Type:        "decompose",
		DisplayName: fmt.Sprintf("Decompose '%s' into topics", name),
		SubjectID:   subject.ID,
		Execute: func(ctx context.Context, deps queue.Results) (any, error) {
			topics, err := s.decompose(ctx, subject.ID, name, material)
			if err != nil {
				s.markFailed(subject.ID)
				return nil, err
			}
			return topics, nil
		},
	})
	if err != nil {
		s.markFailed(subject.ID)
		return "", errors.Wrap(err, "admitting decompose task")
	}

	err = s.queue.Add(queue.Descriptor{
		ID:          ExtractTaskID(subject.ID),
		Type:        "extract",
		DisplayName: fmt.Sprintf("Write questions for '%s'", name),
		SubjectID:   subject.ID,
		DependsOn:   decomposeID,
		Execute: func(ctx context.Context, deps queue.Results) (any, error) {
			count, err := s.extract(ctx, subject.ID, name, deps)
			if err != nil {
				s.markFailed(subject.ID)
				return nil, err
			}
			return count, nil
		},
	})
	if err != nil {
		s.markFailed(subject.ID)
		return "", errors.Wrap(err, "admitting extract task")
	}

	s.logger.Infof("Enqueued generation for subject '%s' (%s)", name, subject.ID)
	return subject.ID, nil
}

// decompose asks the model for topics and persists them in one
// transaction. The returned slice feeds the extract stage through the
// queue, so the dependent never re-reads them from storage.
func (s *Service) decompose(ctx context.Context, subjectID, name, material string) ([]models.Topic, error) {
	drafts, err := s.gen.DecomposeSubject(ctx, name, material)
	if err != nil {
		return nil, errors.Wrap(err, "decomposing subject")
	}

	tx, err := s.store.Begin()
	if err != nil {
		return nil, errors.Wrap(err, "starting transaction")
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Errorf("Failed to rollback topics of subject %s: %v", subjectID, rbErr)
			}
		}
	}()

	topics := make([]models.Topic, 0, len(drafts))
	for i, d := range drafts {
		topic := models.Topic{
			ID:        uuid.NewString(),
			SubjectID: subjectID,
			Name:      d.Name,
			Summary:   d.Summary,
			Position:  i,
		}
		if err := tx.CreateTopic(topic); err != nil {
			return nil, errors.Wrapf(err, "persisting topic '%s'", d.Name)
		}
		topics = append(topics, topic)
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "committing topics")
	}
	committed = true

	s.logger.Infof("Decomposed subject %s into %d topics", subjectID, len(topics))
	return topics, nil
}

// extract generates questions for every topic of the subject, persists
// them, and marks the subject ready. All model calls happen before the
// transaction opens so no write lock is held during generation.
func (s *Service) extract(ctx context.Context, subjectID, name string, deps queue.Results) (int, error) {
	topics, err := queue.ResultAs[[]models.Topic](deps)
	if err != nil {
		return 0, errors.Wrap(err, "reading decompose result")
	}

	var questions []models.Question
	for _, topic := range topics {
		drafts, err := s.gen.ExtractQuestions(ctx, name, ai.TopicDraft{Name: topic.Name, Summary: topic.Summary})
		if err != nil {
			return 0, errors.Wrapf(err, "generating questions for topic '%s'", topic.Name)
		}
		for _, d := range drafts {
			questions = append(questions, models.Question{
				ID:         uuid.NewString(),
				TopicID:    topic.ID,
				SubjectID:  subjectID,
				Prompt:     d.Prompt,
				Answer:     d.Answer,
				Difficulty: d.Difficulty,
			})
		}
	}

	tx, err := s.store.Begin()
	if err != nil {
		return 0, errors.Wrap(err, "starting transaction")
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Errorf("Failed to rollback questions of subject %s: %v", subjectID, rbErr)
			}
		}
	}()

	for _, q := range questions {
		if err := tx.CreateQuestion(q); err != nil {
			return 0, errors.Wrap(err, "persisting question")
		}
	}
	if err := tx.UpdateSubjectStatus(subjectID, models.ReadySubjectStatus); err != nil {
		return 0, errors.Wrap(err, "marking subject ready")
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "committing questions")
	}
	committed = true

	s.logger.Infof("Subject %s ready: %d questions across %d topics", subjectID, len(questions), len(topics))
	return len(questions), nil
}

func (s *Service) markFailed(subjectID string) {
	if err := s.store.UpdateSubjectStatus(subjectID, models.FailedSubjectStatus); err != nil {
		s.logger.Errorf("Failed to mark subject %s as failed: %v", subjectID, err)
	}
}

// SubjectState is a subject together with its live queue records.
type SubjectState struct {
	Subject models.Subject   `json:"subject"`
	Tasks   []queue.Snapshot `json:"tasks"`
}

// SubjectState reports a subject plus the queue tasks working on it. Queue
// records vanish on restart while the subject row survives, so a subject
// stuck in GENERATING with no tasks means the process died mid-run.
func (s *Service) SubjectState(subjectID string) (SubjectState, error) {
	subject, err := s.GetSubject(subjectID)
	if err != nil {
		return SubjectState{}, err
	}
	return SubjectState{
		Subject: subject,
		Tasks:   s.queue.BySubject(subjectID),
	}, nil
}

// GetSubject returns a subject with its topics populated.
func (s *Service) GetSubject(subjectID string) (models.Subject, error) {
	subject, err := s.store.GetSubject(subjectID)
	if err != nil {
		return models.Subject{}, err
	}
	topics, err := s.store.ListTopicsBySubject(subjectID)
	if err != nil {
		return models.Subject{}, errors.Wrap(err, "listing topics")
	}
	subject.Topics = topics
	return subject, nil
}

// ListSubjects returns all subjects, topics not populated.
func (s *Service) ListSubjects() ([]models.Subject, error) {
	return s.store.ListSubjects()
}

// Questions returns every question of a subject.
func (s *Service) Questions(subjectID string) ([]models.Question, error) {
	return s.store.ListQuestionsBySubject(subjectID)
}

// Task returns the queue record for one task id, reporting absence for
// unknown ids.
func (s *Service) Task(id string) (queue.Snapshot, bool) {
	return s.queue.Get(id)
}

// RecordScore stores a self-marked mastery score for a question.
func (s *Service) RecordScore(questionID string, score int) error {
	if score < 0 || score > 100 {
		return errors.Errorf("invalid mastery score %d", score)
	}
	return s.store.UpdateQuestionScore(questionID, score)
}
