package content

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/p-n-ai/muse/internal/ai"
	"github.com/p-n-ai/muse/internal/curriculum"
)

// BlankMarker is the minimum run of underscores a fill-in-the-blank question
// must contain.
const BlankMarker = "___"

// ErrInvalidTest is wrapped by unit test validation failures.
var ErrInvalidTest = errors.New("invalid unit test")

// ErrInvalidQuiz is wrapped by quiz validation failures.
var ErrInvalidQuiz = errors.New("invalid quiz")

var (
	topicsSchema = ai.StringArraySchema("topics")

	answerSchema = ai.ObjectSchema("answer", map[string]any{
		"answer": map[string]any{"type": "string"},
	})

	visualPromptSchema = ai.ObjectSchema("visual_prompt", map[string]any{
		"prompt": map[string]any{"type": "string"},
	})

	exampleSchema = ai.ObjectSchema("real_world_example", map[string]any{
		"example": map[string]any{"type": "string"},
	})

	summarySchema = ai.ObjectSchema("summary", map[string]any{
		"summary": map[string]any{"type": "string"},
	})

	mcqItem = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"question":      map[string]any{"type": "string"},
			"options":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"correctAnswer": map[string]any{"type": "string"},
		},
		"required": []string{"correctAnswer", "options", "question"},
	}

	mcqSchema = &ai.Schema{
		Name:       "mcqs",
		Definition: map[string]any{"type": "array", "items": mcqItem},
	}

	questionItem = map[string]any{
		"type":       "object",
		"properties": map[string]any{"question": map[string]any{"type": "string"}},
		"required":   []string{"question"},
	}

	unitTestSchema = ai.ObjectSchema("unit_test", map[string]any{
		"mcqs": map[string]any{"type": "array", "items": mcqItem},
		"fillInTheBlanks": map[string]any{"type": "array", "items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"question": map[string]any{"type": "string"},
				"answer":   map[string]any{"type": "string"},
			},
			"required": []string{"answer", "question"},
		}},
		"twoMarkQuestions":   map[string]any{"type": "array", "items": questionItem},
		"threeMarkQuestions": map[string]any{"type": "array", "items": questionItem},
		"fiveMarkQuestions":  map[string]any{"type": "array", "items": questionItem},
	})
)

// FetchTopics asks for 7 to 10 new topics for a chapter, steering away from
// existing ones. An empty result means the chapter is exhausted. Returned
// topics are trimmed and blank entries dropped; duplicates are kept.
func (s *Service) FetchTopics(ctx context.Context, chapter, subject, standard string, existing []string) ([]string, error) {
	var raw []string
	err := s.generateJSON(ctx, ai.CompletionRequest{
		Messages:        userPrompt(topicsPrompt(chapter, subject, standard, s.style(subject), existing)),
		Task:            ai.TaskTopics,
		Schema:          topicsSchema,
		DisableThinking: true,
	}, &raw)
	if err != nil {
		return nil, providerError("topics", fmt.Sprintf("Failed to get topics for %q.", chapter), err)
	}

	topics := make([]string, 0, len(raw))
	for _, t := range raw {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics, nil
}

// FetchExplanation returns a 2 to 3 paragraph Markdown explanation of a
// topic.
func (s *Service) FetchExplanation(ctx context.Context, topic, chapter, subject, standard string) (string, error) {
	var out struct {
		Answer string `json:"answer"`
	}
	err := s.generateJSON(ctx, ai.CompletionRequest{
		Messages: userPrompt(explanationPrompt(topic, chapter, subject, standard, s.style(subject))),
		Task:     ai.TaskExplanation,
		Schema:   answerSchema,
	}, &out)
	if err == nil && strings.TrimSpace(out.Answer) == "" {
		err = errEmpty
	}
	if err != nil {
		return "", providerError("explanation", fmt.Sprintf("Failed to get content for topic: %q.", topic), err)
	}
	return strings.TrimSpace(out.Answer), nil
}

// FetchVisualPrompt returns a one-sentence description of a diagram for the
// topic.
func (s *Service) FetchVisualPrompt(ctx context.Context, topic, subject string) (string, error) {
	var out struct {
		Prompt string `json:"prompt"`
	}
	err := s.generateJSON(ctx, ai.CompletionRequest{
		Messages:    userPrompt(visualPromptPrompt(topic, subject, s.style(subject))),
		Task:        ai.TaskVisualPrompt,
		Schema:      visualPromptSchema,
		Temperature: 0.2,
	}, &out)
	if err == nil && strings.TrimSpace(out.Prompt) == "" {
		err = errEmpty
	}
	if err != nil {
		return "", providerError("visual_prompt", "Failed to create a visualization prompt. Please try again.", err)
	}
	return strings.TrimSpace(out.Prompt), nil
}

// FetchMCQs returns four validated multiple-choice questions.
func (s *Service) FetchMCQs(ctx context.Context, topic, subject string) ([]curriculum.MCQ, error) {
	var mcqs []curriculum.MCQ
	err := s.generateJSON(ctx, ai.CompletionRequest{
		Messages: userPrompt(mcqPrompt(topic, subject)),
		Task:     ai.TaskQuiz,
		Schema:   mcqSchema,
	}, &mcqs)
	if err == nil {
		mcqs, err = ValidateQuiz(mcqs)
	}
	if err != nil {
		return nil, providerError("mcqs", fmt.Sprintf("Failed to generate a quiz for: %q. Please try again.", topic), err)
	}
	return mcqs, nil
}

// FetchRealWorldExample returns a short everyday example of the topic.
func (s *Service) FetchRealWorldExample(ctx context.Context, topic, subject, standard, chapter string) (string, error) {
	var out struct {
		Example string `json:"example"`
	}
	err := s.generateJSON(ctx, ai.CompletionRequest{
		Messages:    userPrompt(realWorldPrompt(topic, chapter, subject, standard, s.style(subject))),
		Task:        ai.TaskRealWorldExample,
		Schema:      exampleSchema,
		Temperature: 0.5,
	}, &out)
	if err == nil && strings.TrimSpace(out.Example) == "" {
		err = errEmpty
	}
	if err != nil {
		return "", providerError("real_world_example", fmt.Sprintf("Failed to get a real-world example for: %q.", topic), err)
	}
	return strings.TrimSpace(out.Example), nil
}

// FetchUnitTest returns a chapter-wide test of the fixed shape.
func (s *Service) FetchUnitTest(ctx context.Context, chapter, subject, standard string) (curriculum.UnitTest, error) {
	var test curriculum.UnitTest
	err := s.generateJSON(ctx, ai.CompletionRequest{
		Messages: userPrompt(unitTestPrompt(chapter, subject, standard)),
		Task:     ai.TaskUnitTest,
		Schema:   unitTestSchema,
	}, &test)
	if err == nil {
		test, err = ValidateUnitTest(test)
	}
	if err != nil {
		return curriculum.UnitTest{}, providerError("unit_test", fmt.Sprintf("Failed to generate a unit test for: %q. Please try again.", chapter), err)
	}
	return test, nil
}

// ValidateQuiz checks a topic quiz: exactly four questions, each a valid MCQ.
// It returns the questions with surrounding whitespace trimmed.
func ValidateQuiz(mcqs []curriculum.MCQ) ([]curriculum.MCQ, error) {
	if len(mcqs) != 4 {
		return nil, fmt.Errorf("%w: got %d questions, want 4", ErrInvalidQuiz, len(mcqs))
	}
	out := make([]curriculum.MCQ, len(mcqs))
	for i, q := range mcqs {
		q, err := validateMCQ(q)
		if err != nil {
			return nil, fmt.Errorf("%w: question %d: %w", ErrInvalidQuiz, i+1, err)
		}
		out[i] = q
	}
	return out, nil
}

func validateMCQ(q curriculum.MCQ) (curriculum.MCQ, error) {
	q.Question = strings.TrimSpace(q.Question)
	q.CorrectAnswer = strings.TrimSpace(q.CorrectAnswer)
	if q.Question == "" {
		return q, errors.New("empty question")
	}
	if len(q.Options) != curriculum.MCQOptions {
		return q, fmt.Errorf("got %d options, want %d", len(q.Options), curriculum.MCQOptions)
	}

	opts := make([]string, len(q.Options))
	matches := 0
	for i, o := range q.Options {
		o = strings.TrimSpace(o)
		if o == "" {
			return q, fmt.Errorf("option %d is empty", i+1)
		}
		if o == q.CorrectAnswer {
			matches++
		}
		opts[i] = o
	}
	if matches != 1 {
		return q, fmt.Errorf("correct answer %q matches %d options, want 1", q.CorrectAnswer, matches)
	}
	q.Options = opts
	return q, nil
}

// ValidateUnitTest checks the section sizes and question shapes of a unit
// test. It returns the test with surrounding whitespace trimmed.
func ValidateUnitTest(t curriculum.UnitTest) (curriculum.UnitTest, error) {
	if err := wantCount("mcqs", len(t.MCQs), curriculum.UnitTestMCQs); err != nil {
		return t, err
	}
	if err := wantCount("fillInTheBlanks", len(t.FillInTheBlanks), curriculum.UnitTestBlanks); err != nil {
		return t, err
	}
	if err := wantCount("twoMarkQuestions", len(t.TwoMarkQuestions), curriculum.UnitTestTwoMarks); err != nil {
		return t, err
	}
	if err := wantCount("threeMarkQuestions", len(t.ThreeMarkQuestions), curriculum.UnitTestThreeMarks); err != nil {
		return t, err
	}
	if err := wantCount("fiveMarkQuestions", len(t.FiveMarkQuestions), curriculum.UnitTestFiveMarks); err != nil {
		return t, err
	}

	out := curriculum.UnitTest{
		MCQs:            make([]curriculum.MCQ, len(t.MCQs)),
		FillInTheBlanks: make([]curriculum.FillInTheBlank, len(t.FillInTheBlanks)),
	}
	for i, q := range t.MCQs {
		q, err := validateMCQ(q)
		if err != nil {
			return t, fmt.Errorf("%w: mcq %d: %w", ErrInvalidTest, i+1, err)
		}
		out.MCQs[i] = q
	}
	for i, b := range t.FillInTheBlanks {
		b.Question = strings.TrimSpace(b.Question)
		b.Answer = strings.TrimSpace(b.Answer)
		if !strings.Contains(b.Question, BlankMarker) {
			return t, fmt.Errorf("%w: blank %d has no blank marker", ErrInvalidTest, i+1)
		}
		if b.Answer == "" {
			return t, fmt.Errorf("%w: blank %d has no answer", ErrInvalidTest, i+1)
		}
		out.FillInTheBlanks[i] = b
	}

	var err error
	if out.TwoMarkQuestions, err = validateQuestions("twoMarkQuestions", t.TwoMarkQuestions); err != nil {
		return t, err
	}
	if out.ThreeMarkQuestions, err = validateQuestions("threeMarkQuestions", t.ThreeMarkQuestions); err != nil {
		return t, err
	}
	if out.FiveMarkQuestions, err = validateQuestions("fiveMarkQuestions", t.FiveMarkQuestions); err != nil {
		return t, err
	}
	return out, nil
}

func wantCount(section string, got, want int) error {
	if got != want {
		return fmt.Errorf("%w: %s has %d questions, want %d", ErrInvalidTest, section, got, want)
	}
	return nil
}

func validateQuestions(section string, qs []curriculum.ShortAnswerQuestion) ([]curriculum.ShortAnswerQuestion, error) {
	out := make([]curriculum.ShortAnswerQuestion, len(qs))
	for i, q := range qs {
		q.Question = strings.TrimSpace(q.Question)
		if q.Question == "" {
			return nil, fmt.Errorf("%w: %s %d is empty", ErrInvalidTest, section, i+1)
		}
		out[i] = q
	}
	return out, nil
}
