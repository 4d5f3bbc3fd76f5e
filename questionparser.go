package paidquiz

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// buildPrompt asks for count questions for a category and difficulty in the
// JSON shape parseQuestions understands
func buildPrompt(category string, difficulty Difficulty, count int) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Generate %d multiple choice trivia questions about: %s\n\n", count, category))
	sb.WriteString(fmt.Sprintf("Difficulty level: %s\n\n", difficulty))

	sb.WriteString("Requirements:\n")
	sb.WriteString("- Each question must have exactly 4 options\n")
	sb.WriteString("- Exactly one option is correct; the others are plausible but clearly wrong\n")
	sb.WriteString("- The answer must not be given away in the question text\n")
	sb.WriteString("- Provide a brief explanation of why the correct answer is right\n")
	sb.WriteString(fmt.Sprintf("- Match the %s difficulty level consistently\n\n", difficulty))

	sb.WriteString("Respond with a JSON object of this shape:\n")
	sb.WriteString(`{"questions":[{"question":"...","options":["...","...","...","..."],"correct_answer":"A","explanation":"...","topic":"..."}]}`)
	sb.WriteString("\n")
	sb.WriteString("correct_answer is the label (A, B, C or D) of the correct option.\n")

	return sb.String()
}

type rawQuestion struct {
	Question         string          `json:"question"`
	Text             string          `json:"text"`
	Options          []string        `json:"options"`
	CorrectAnswer    json.RawMessage `json:"correct_answer"`
	CorrectOption    json.RawMessage `json:"correct_option"`
	Explanation      string          `json:"explanation"`
	Topic            string          `json:"topic"`
	TimeLimitSeconds int             `json:"time_limit_seconds"`
}

// parseQuestions decodes generation output. It accepts a {"questions": [...]}
// object or a bare array, optionally wrapped in a markdown code fence, and
// correct answers given either as a label or as a 0-based index.
func parseQuestions(text string) ([]Question, error) {
	body := []byte(stripCodeFence(text))

	var raws []rawQuestion
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, fmt.Errorf("failed to parse question array: %w", err)
		}
	} else {
		var envelope struct {
			Questions []rawQuestion `json:"questions"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, fmt.Errorf("failed to parse question object: %w", err)
		}
		raws = envelope.Questions
	}

	questions := make([]Question, 0, len(raws))
	for i, raw := range raws {
		prompt := raw.Question
		if prompt == "" {
			prompt = raw.Text
		}

		answer := raw.CorrectAnswer
		if len(answer) == 0 {
			answer = raw.CorrectOption
		}
		label, err := parseCorrectLabel(answer)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}

		options := make([]string, len(raw.Options))
		for j, option := range raw.Options {
			options[j] = strings.TrimSpace(option)
		}

		questions = append(questions, Question{
			Prompt:           strings.TrimSpace(prompt),
			Options:          options,
			CorrectOption:    label,
			Explanation:      strings.TrimSpace(raw.Explanation),
			Topic:            strings.TrimSpace(raw.Topic),
			TimeLimitSeconds: raw.TimeLimitSeconds,
		})
	}
	return questions, nil
}

func parseCorrectLabel(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("missing correct_answer")
	}

	var label string
	if err := json.Unmarshal(raw, &label); err == nil {
		label = normalizeLabel(label)
		// "C) Paris" and "C." style answers
		if len(label) > 1 && isOptionLabel(label[:1]) && strings.ContainsAny(label[1:2], ").: ") {
			label = label[:1]
		}
		return label, nil
	}

	index, err := strconv.Atoi(string(raw))
	if err != nil {
		return "", fmt.Errorf("unsupported correct_answer %s", string(raw))
	}
	if index < 0 || index >= len(OptionLabels) {
		return "", fmt.Errorf("correct_answer index %d out of range", index)
	}
	return OptionLabels[index], nil
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if newline := strings.IndexByte(text, '\n'); newline >= 0 {
		text = text[newline+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// ValidateQuestions enforces the structural rules every stored set obeys:
// 1..20 questions with distinct non-empty prompts, exactly 4 non-empty
// options and a correct option among A-D. Prompts are compared trimmed and
// case-folded.
func ValidateQuestions(questions []Question) error {
	if len(questions) < 1 || len(questions) > MaxQuestionsPerSet {
		return fmt.Errorf("question count %d outside [1,%d]", len(questions), MaxQuestionsPerSet)
	}
	seen := make(map[string]int, len(questions))
	for i, q := range questions {
		prompt := strings.ToLower(strings.TrimSpace(q.Prompt))
		if prompt == "" {
			return fmt.Errorf("question %d: empty prompt", i+1)
		}
		if first, dup := seen[prompt]; dup {
			return fmt.Errorf("question %d: duplicates question %d", i+1, first+1)
		}
		seen[prompt] = i
		if len(q.Options) != len(OptionLabels) {
			return fmt.Errorf("question %d: expected %d options, got %d", i+1, len(OptionLabels), len(q.Options))
		}
		for j, option := range q.Options {
			if strings.TrimSpace(option) == "" {
				return fmt.Errorf("question %d: option %s is empty", i+1, OptionLabels[j])
			}
		}
		if !isOptionLabel(q.CorrectOption) {
			return fmt.Errorf("question %d: correct option %q is not one of A-D", i+1, q.CorrectOption)
		}
	}
	return nil
}
