package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/pkg/errors"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "llama3.1"

// DefaultGenerationTimeout caps a single model call when the caller's
// context carries no deadline.
const DefaultGenerationTimeout = 2 * time.Minute

// OllamaGenerator talks to a local Ollama instance. The endpoint comes
// from OLLAMA_HOST, with the client defaulting to localhost:11434.
type OllamaGenerator struct {
	client *api.Client
	model  string
}

// NewOllamaGenerator builds a Generator backed by Ollama.
func NewOllamaGenerator(model string) (*OllamaGenerator, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, errors.Wrap(err, "creating ollama client")
	}
	if model == "" {
		model = DefaultModel
	}
	return &OllamaGenerator{client: client, model: model}, nil
}

// DecomposeSubject asks the model to break a subject into revision topics.
func (g *OllamaGenerator) DecomposeSubject(ctx context.Context, subject, material string) ([]TopicDraft, error) {
	raw, err := g.generate(ctx, buildTopicsPrompt(subject, material))
	if err != nil {
		return nil, err
	}
	var resp topicsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errors.Wrap(err, "parsing topics response")
	}
	if err := resp.validate(); err != nil {
		return nil, err
	}
	return resp.Topics, nil
}

// ExtractQuestions asks the model for practice questions on one topic.
func (g *OllamaGenerator) ExtractQuestions(ctx context.Context, subject string, topic TopicDraft) ([]QuestionDraft, error) {
	raw, err := g.generate(ctx, buildQuestionsPrompt(subject, topic))
	if err != nil {
		return nil, err
	}
	var resp questionsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errors.Wrap(err, "parsing questions response")
	}
	if err := resp.validate(); err != nil {
		return nil, err
	}
	return resp.Questions, nil
}

func (g *OllamaGenerator) generate(ctx context.Context, prompt string) ([]byte, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultGenerationTimeout)
		defer cancel()
	}

	stream := false
	req := &api.GenerateRequest{
		Model:  g.model,
		Prompt: prompt,
		Format: json.RawMessage(`"json"`),
		Stream: &stream,
	}

	var sb strings.Builder
	err := g.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "ollama generate with model %s", g.model)
	}

	return extractJSON([]byte(sb.String()))
}

func buildTopicsPrompt(subject, material string) string {
	materialSection := "The student provided no source material; rely on the standard curriculum for the subject."
	if strings.TrimSpace(material) != "" {
		materialSection = "SOURCE MATERIAL:\n" + material
	}
	return fmt.Sprintf(`You are an exam preparation tutor. Break the subject below into the distinct topics a student must revise.

SUBJECT:
%s

%s

OUTPUT REQUIREMENTS:
Return a JSON object with this exact structure:
{
  "topics": [
    {
      "name": "Short topic name (e.g., 'Simple harmonic motion')",
      "summary": "Two or three sentences covering what the topic involves."
    }
  ]
}

TOPIC GUIDELINES:
- Cover the whole subject with 4-8 topics
- Order topics from foundational to advanced
- Keep names short enough for a revision checklist

Return ONLY the JSON, no markdown formatting or explanation.`, subject, materialSection)
}

func buildQuestionsPrompt(subject string, topic TopicDraft) string {
	return fmt.Sprintf(`You are an exam preparation tutor writing practice questions for a student revising %s.

TOPIC:
%s

TOPIC SUMMARY:
%s

OUTPUT REQUIREMENTS:
Return a JSON object with this exact structure:
{
  "questions": [
    {
      "prompt": "The question as shown to the student",
      "answer": "A model answer the student can mark themselves against",
      "difficulty": 3
    }
  ]
}

QUESTION GUIDELINES:
- Write 3-6 questions for the topic
- difficulty is an integer from 1 (recall) to 5 (synthesis)
- Mix difficulties so the student can warm up
- Answers must be self-contained; the student sees no other material

Return ONLY the JSON, no markdown formatting or explanation.`, subject, topic.Name, topic.Summary)
}

// extractJSON pulls a JSON object out of possibly noisy model output.
// Local models occasionally wrap the payload in markdown fences or add a
// sentence around it even when told not to.
func extractJSON(data []byte) ([]byte, error) {
	s := strings.TrimSpace(string(data))
	for _, prefix := range []string{"```json", "```"} {
		if cut, found := strings.CutPrefix(s, prefix); found {
			s = cut
			break
		}
	}
	if cut, found := strings.CutSuffix(s, "```"); found {
		s = cut
	}
	s = strings.TrimSpace(s)

	if json.Valid([]byte(s)) {
		return []byte(s), nil
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || start >= end {
		return nil, errors.New("no JSON object found in model output")
	}
	candidate := s[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return nil, errors.New("model output is not valid JSON")
	}
	return []byte(candidate), nil
}
