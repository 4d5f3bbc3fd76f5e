package paidquiz

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptRecorder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "transcripts")
	recorder, err := NewTranscriptRecorder(dir)
	require.NoError(t, err)

	at := time.Date(2026, 3, 10, 14, 5, 0, 0, time.UTC)
	req := GenerationRequest{Category: "world history/europe", Difficulty: DifficultyHard, Count: 3, Prompt: "the prompt"}

	path := recorder.Path(req, at)
	assert.Equal(t, filepath.Join(dir, "world_history_europe_hard_"+strconv.FormatInt(HourBucket(at), 10)+".log"), path)

	require.NoError(t, recorder.Record(req, &Generation{Text: `{"questions":[]}`, Model: "gpt-4o-mini", TokensUsed: 42}, nil, at))
	require.NoError(t, recorder.Record(req, nil, errors.New("rate limited"), at.Add(time.Minute)))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(content)
	assert.Contains(t, text, "Prompt:\nthe prompt")
	assert.Contains(t, text, "Tokens: 42")
	assert.Contains(t, text, "Error: rate limited")
}
