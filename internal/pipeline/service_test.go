package pipeline_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ehtbanton/exammer/internal/ai"
	"github.com/ehtbanton/exammer/internal/pipeline"
	"github.com/ehtbanton/exammer/pkg/models"
	"github.com/ehtbanton/exammer/pkg/queue"
	"github.com/ehtbanton/exammer/pkg/storage"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type logger struct{}

func (l logger) Infof(format string, args ...interface{}) {
	// no-op
}

func (l logger) Errorf(format string, args ...interface{}) {
	// no-op
}

// stubGenerator returns canned drafts, or fails a stage on demand.
type stubGenerator struct {
	mu           sync.Mutex
	topics       []ai.TopicDraft
	questionsPer int
	decomposeErr error
	extractErr   error

	decomposeCalls int
	extractCalls   int
}

func (g *stubGenerator) DecomposeSubject(ctx context.Context, subject, material string) ([]ai.TopicDraft, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.decomposeCalls++
	if g.decomposeErr != nil {
		return nil, g.decomposeErr
	}
	return g.topics, nil
}

func (g *stubGenerator) ExtractQuestions(ctx context.Context, subject string, topic ai.TopicDraft) ([]ai.QuestionDraft, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.extractCalls++
	if g.extractErr != nil {
		return nil, g.extractErr
	}
	drafts := make([]ai.QuestionDraft, 0, g.questionsPer)
	for i := 0; i < g.questionsPer; i++ {
		drafts = append(drafts, ai.QuestionDraft{
			Prompt:     "Explain " + topic.Name,
			Answer:     "Because " + topic.Summary,
			Difficulty: i + 1,
		})
	}
	return drafts, nil
}

func awaitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newService(t *testing.T, gen ai.Generator) (*pipeline.Service, storage.Store, *queue.Queue) {
	t.Helper()
	store := storage.NewMockStore()
	q := queue.New(logger{})
	t.Cleanup(q.Close)
	return pipeline.NewService(store, q, gen, logger{}), store, q
}

func TestService_EnqueueSubjectGeneratesEverything(t *testing.T) {
	gen := &stubGenerator{
		topics: []ai.TopicDraft{
			{Name: "Waves", Summary: "Wave motion and interference."},
			{Name: "Fields", Summary: "Gravitational and electric fields."},
		},
		questionsPer: 2,
	}
	svc, store, q := newService(t, gen)

	subjectID, err := svc.EnqueueSubject(context.Background(), 1, "A-level Physics", "syllabus text")
	assert.NoError(t, err)
	assert.NotEmpty(t, subjectID)

	snap, err := q.Await(awaitCtx(t), pipeline.ExtractTaskID(subjectID))
	assert.NoError(t, err)
	assert.Equal(t, queue.StatusCompleted, snap.Status)
	assert.Equal(t, 4, snap.Result)

	subject, err := svc.GetSubject(subjectID)
	assert.NoError(t, err)
	assert.Equal(t, models.ReadySubjectStatus, subject.Status)
	assert.Len(t, subject.Topics, 2)
	assert.Equal(t, "Waves", subject.Topics[0].Name)
	assert.Equal(t, 0, subject.Topics[0].Position)
	assert.Equal(t, 1, subject.Topics[1].Position)

	questions, err := store.ListQuestionsBySubject(subjectID)
	assert.NoError(t, err)
	assert.Len(t, questions, 4)

	assert.Equal(t, 1, gen.decomposeCalls)
	assert.Equal(t, 2, gen.extractCalls)
}

func TestService_DecomposeFailureFailsSubject(t *testing.T) {
	gen := &stubGenerator{decomposeErr: errors.New("model unavailable")}
	svc, store, q := newService(t, gen)

	subjectID, err := svc.EnqueueSubject(context.Background(), 1, "A-level Physics", "")
	assert.NoError(t, err)

	snap, err := q.Await(awaitCtx(t), pipeline.ExtractTaskID(subjectID))
	assert.NoError(t, err)
	assert.Equal(t, queue.StatusFailed, snap.Status)

	// the dependent never ran
	assert.Equal(t, 0, gen.extractCalls)

	subject, err := store.GetSubject(subjectID)
	assert.NoError(t, err)
	assert.Equal(t, models.FailedSubjectStatus, subject.Status)

	topics, err := store.ListTopicsBySubject(subjectID)
	assert.NoError(t, err)
	assert.Empty(t, topics)
}

func TestService_ExtractFailureFailsSubject(t *testing.T) {
	gen := &stubGenerator{
		topics:     []ai.TopicDraft{{Name: "Waves", Summary: "Wave motion."}},
		extractErr: errors.New("model unavailable"),
	}
	svc, store, q := newService(t, gen)

	subjectID, err := svc.EnqueueSubject(context.Background(), 1, "A-level Physics", "")
	assert.NoError(t, err)

	snap, err := q.Await(awaitCtx(t), pipeline.ExtractTaskID(subjectID))
	assert.NoError(t, err)
	assert.Equal(t, queue.StatusFailed, snap.Status)

	subject, err := store.GetSubject(subjectID)
	assert.NoError(t, err)
	assert.Equal(t, models.FailedSubjectStatus, subject.Status)

	// topics from the completed first stage survive
	topics, err := store.ListTopicsBySubject(subjectID)
	assert.NoError(t, err)
	assert.Len(t, topics, 1)

	questions, err := store.ListQuestionsBySubject(subjectID)
	assert.NoError(t, err)
	assert.Empty(t, questions)
}

func TestService_SubjectState(t *testing.T) {
	gen := &stubGenerator{
		topics:       []ai.TopicDraft{{Name: "Waves", Summary: "Wave motion."}},
		questionsPer: 1,
	}
	svc, _, q := newService(t, gen)

	subjectID, err := svc.EnqueueSubject(context.Background(), 1, "A-level Physics", "")
	assert.NoError(t, err)
	_, err = q.Await(awaitCtx(t), pipeline.ExtractTaskID(subjectID))
	assert.NoError(t, err)

	state, err := svc.SubjectState(subjectID)
	assert.NoError(t, err)
	assert.Equal(t, models.ReadySubjectStatus, state.Subject.Status)
	assert.Len(t, state.Tasks, 2)

	_, err = svc.SubjectState("unknown")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestService_TaskLookup(t *testing.T) {
	gen := &stubGenerator{
		topics:       []ai.TopicDraft{{Name: "Waves", Summary: "Wave motion."}},
		questionsPer: 1,
	}
	svc, _, q := newService(t, gen)

	subjectID, err := svc.EnqueueSubject(context.Background(), 1, "A-level Physics", "")
	assert.NoError(t, err)
	_, err = q.Await(awaitCtx(t), pipeline.DecomposeTaskID(subjectID))
	assert.NoError(t, err)

	snap, ok := svc.Task(pipeline.DecomposeTaskID(subjectID))
	assert.True(t, ok)
	assert.Equal(t, "decompose", snap.Type)

	_, ok = svc.Task("no-such-task")
	assert.False(t, ok)
}

func TestService_EnqueueValidation(t *testing.T) {
	svc, _, _ := newService(t, &stubGenerator{})

	_, err := svc.EnqueueSubject(context.Background(), 1, "", "")
	assert.Error(t, err)
}

func TestService_RecordScore(t *testing.T) {
	gen := &stubGenerator{
		topics:       []ai.TopicDraft{{Name: "Waves", Summary: "Wave motion."}},
		questionsPer: 1,
	}
	svc, store, q := newService(t, gen)

	subjectID, err := svc.EnqueueSubject(context.Background(), 1, "A-level Physics", "")
	assert.NoError(t, err)
	_, err = q.Await(awaitCtx(t), pipeline.ExtractTaskID(subjectID))
	assert.NoError(t, err)

	questions, err := store.ListQuestionsBySubject(subjectID)
	assert.NoError(t, err)
	assert.Len(t, questions, 1)

	assert.NoError(t, svc.RecordScore(questions[0].ID, 80))
	questions, err = store.ListQuestionsBySubject(subjectID)
	assert.NoError(t, err)
	assert.Equal(t, 80, questions[0].MasteryScore)

	assert.Error(t, svc.RecordScore(questions[0].ID, 101))
	assert.Error(t, svc.RecordScore(questions[0].ID, -1))
	assert.ErrorIs(t, svc.RecordScore("no-such-question", 10), storage.ErrNotFound)
}
