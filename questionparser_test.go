package paidquiz

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPrompt(t *testing.T) {
	prompt := buildPrompt("science", DifficultyHard, 7)

	assert.Contains(t, prompt, "Generate 7 multiple choice trivia questions about: science")
	assert.Contains(t, prompt, "Difficulty level: hard")
	assert.Contains(t, prompt, `"correct_answer":"A"`)
}

func TestParseQuestionsEnvelope(t *testing.T) {
	questions, err := parseQuestions(questionsJSON("science", 3))
	require.NoError(t, err)
	require.Len(t, questions, 3)

	assert.Equal(t, "science question 1?", questions[0].Prompt)
	assert.Equal(t, []string{"first", "second", "third", "fourth"}, questions[0].Options)
	assert.Equal(t, "A", questions[0].CorrectOption)
	assert.Equal(t, "B", questions[1].CorrectOption)
	assert.Equal(t, "because of fact 3", questions[2].Explanation)
}

func TestParseQuestionsVariants(t *testing.T) {
	raw := "```json\n" + `[
		{"question": " Capital of France? ", "options": ["Berlin","Madrid","Paris","Rome"], "correct_answer": 2},
		{"text": "Largest planet?", "options": ["Jupiter","Mars","Venus","Earth"], "correct_option": "a) Jupiter"},
		{"question": "H2O is?", "options": ["Water","Salt","Gold","Iron"], "correct_answer": " d "}
	]` + "\n```"

	questions, err := parseQuestions(raw)
	require.NoError(t, err)
	require.Len(t, questions, 3)

	assert.Equal(t, "Capital of France?", questions[0].Prompt)
	assert.Equal(t, "C", questions[0].CorrectOption)
	assert.Equal(t, "Largest planet?", questions[1].Prompt)
	assert.Equal(t, "A", questions[1].CorrectOption)
	assert.Equal(t, "D", questions[2].CorrectOption)
}

func TestParseQuestionsRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":        "here are your questions",
		"index too large": `{"questions":[{"question":"q","options":["a","b","c","d"],"correct_answer":4}]}`,
		"missing answer":  `{"questions":[{"question":"q","options":["a","b","c","d"]}]}`,
		"object answer":   `{"questions":[{"question":"q","options":["a","b","c","d"],"correct_answer":{"x":1}}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseQuestions(raw)
			assert.Error(t, err)
		})
	}
}

func TestValidateQuestions(t *testing.T) {
	valid := sampleQuestions("science", 2)
	require.NoError(t, ValidateQuestions(valid))

	mutate := func(fn func(q *Question)) []Question {
		questions := copyQuestions(sampleQuestions("science", 2))
		fn(&questions[1])
		return questions
	}

	cases := map[string][]Question{
		"empty set":        nil,
		"too many":         sampleQuestions("science", MaxQuestionsPerSet+1),
		"three options":    mutate(func(q *Question) { q.Options = q.Options[:3] }),
		"five options":     mutate(func(q *Question) { q.Options = append(q.Options, "fifth") }),
		"blank option":     mutate(func(q *Question) { q.Options[2] = "   " }),
		"blank prompt":     mutate(func(q *Question) { q.Prompt = "" }),
		"label E":          mutate(func(q *Question) { q.CorrectOption = "E" }),
		"lowercase label":  mutate(func(q *Question) { q.CorrectOption = "a" }),
		"duplicate prompt": mutate(func(q *Question) { q.Prompt = "  " + strings.ToUpper(sampleQuestions("science", 1)[0].Prompt) + " " }),
	}
	for name, questions := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, ValidateQuestions(questions))
		})
	}

	assert.NoError(t, ValidateQuestions(sampleQuestions("science", MaxQuestionsPerSet)))
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("  {\"a\":1}  "))
	assert.False(t, strings.Contains(stripCodeFence("```\n[]\n```"), "`"))
}
