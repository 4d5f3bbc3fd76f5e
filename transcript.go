package paidquiz

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TranscriptRecorder appends every generation request and response to a
// per-bucket log file, one file per category, difficulty and hour.
type TranscriptRecorder struct {
	dir string
	mu  sync.Mutex
}

// NewTranscriptRecorder creates a recorder writing under dir
func NewTranscriptRecorder(dir string) (*TranscriptRecorder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}
	return &TranscriptRecorder{dir: dir}, nil
}

// Path returns the transcript file for a request made at t
func (tr *TranscriptRecorder) Path(req GenerationRequest, t time.Time) string {
	name := fmt.Sprintf("%s_%s_%d.log", sanitizeFileName(req.Category), req.Difficulty, HourBucket(t))
	return filepath.Join(tr.dir, name)
}

// Record writes one exchange. A failed call is recorded with its error.
func (tr *TranscriptRecorder) Record(req GenerationRequest, gen *Generation, callErr error, started time.Time) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	file, err := os.OpenFile(tr.Path(req, started), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open transcript: %w", err)
	}
	defer file.Close()

	fmt.Fprintf(file, "=== GENERATION %s ===\n", started.UTC().Format(time.RFC3339))
	fmt.Fprintf(file, "Category: %s\nDifficulty: %s\nCount: %d\n", req.Category, req.Difficulty, req.Count)
	fmt.Fprintf(file, "Prompt:\n%s\n", req.Prompt)
	if callErr != nil {
		fmt.Fprintf(file, "Error: %v\n", callErr)
	} else if gen != nil {
		fmt.Fprintf(file, "Model: %s\nTokens: %d\n", gen.Model, gen.TokensUsed)
		fmt.Fprintf(file, "Response:\n%s\n", gen.Text)
	}
	fmt.Fprintf(file, "Elapsed: %s\n\n", time.Since(started).Round(time.Millisecond))
	return nil
}

func sanitizeFileName(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
