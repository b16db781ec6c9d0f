package quiz

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DefaultGenerationTimeout = 45 * time.Second
	maxTopicLength           = 200
)

// TextGenerator is the external text-generation capability. It is called
// exactly once per quiz.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

type Generator struct {
	text    TextGenerator
	timeout time.Duration
}

func NewGenerator(text TextGenerator, timeout time.Duration) *Generator {
	if timeout <= 0 {
		timeout = DefaultGenerationTimeout
	}
	return &Generator{
		text:    text,
		timeout: timeout,
	}
}

// Generate returns exactly QuestionsPerQuiz validated questions or an error
// wrapping ErrGenerationFailed. There is no retry: callers decide whether to
// try again.
func (g *Generator) Generate(ctx context.Context, topic string, difficulty Difficulty) ([]Question, error) {
	if g == nil || g.text == nil {
		return nil, ErrGeneratorNotReady
	}

	topic, err := normalizeTopic(topic)
	if err != nil {
		return nil, err
	}
	if _, ok := ParseDifficulty(string(difficulty)); !ok {
		return nil, fmt.Errorf("%w: difficulty must be easy, medium or hard", ErrInvalidRequest)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := g.text.GenerateText(callCtx, BuildPrompt(topic, difficulty))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	questions, err := ParseGeneratedQuestions(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	return questions, nil
}

func normalizeTopic(topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", fmt.Errorf("%w: topic is required", ErrInvalidRequest)
	}
	if utf8.RuneCountInString(topic) > maxTopicLength {
		return "", fmt.Errorf("%w: topic must be at most %d characters", ErrInvalidRequest, maxTopicLength)
	}
	return topic, nil
}

func BuildPrompt(topic string, difficulty Difficulty) string {
	var b strings.Builder
	b.WriteString("You are an expert educational content creator.\n\n")
	fmt.Fprintf(&b, "Generate exactly %d multiple-choice quiz questions about the topic %q at %s difficulty.\n\n",
		QuestionsPerQuiz, topic, difficulty)
	b.WriteString("Output rules:\n")
	b.WriteString("- Return ONLY a raw JSON array. No markdown, no code fences, no explanation.\n")
	fmt.Fprintf(&b, "- The array must contain exactly %d objects.\n", QuestionsPerQuiz)
	b.WriteString("- Each object must have exactly this shape:\n")
	b.WriteString(`  {"id": number, "question": string, "options": [string, string, string, string], "answer": string}` + "\n")
	fmt.Fprintf(&b, "- id runs from 1 to %d with no repeats.\n", QuestionsPerQuiz)
	fmt.Fprintf(&b, "- options has exactly %d distinct entries.\n", OptionsPerQuestion)
	b.WriteString("- answer must be copied verbatim from one of the options.\n\n")
	b.WriteString("Content rules:\n")
	b.WriteString("- Exactly one correct option per question.\n")
	fmt.Fprintf(&b, "- Match the %s difficulty level.\n", difficulty)
	b.WriteString("- Keep questions concise and avoid repetition.\n")
	b.WriteString("- No controversial or harmful content and no external URLs.\n")
	return b.String()
}
