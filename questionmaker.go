package paidquiz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	openai "github.com/sashabaranov/go-openai"
)

// GenerationRequest asks the generation service for a batch of questions
type GenerationRequest struct {
	Category   string     `json:"category"`
	Difficulty Difficulty `json:"difficulty"`
	Count      int        `json:"count"`
	Prompt     string     `json:"prompt"`
}

// Generation is the raw output of one generation call
type Generation struct {
	Text       string `json:"text"`
	Model      string `json:"model"`
	TokensUsed int    `json:"tokens_used"`
}

// Generator produces raw question text for a prompt. Implementations hold no
// state between calls; the caller owns parsing and validation.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (*Generation, error)
}

const defaultGenerationTimeout = 45 * time.Second

// QuestionMaker generates questions through an OpenAI-compatible chat
// completion endpoint
type QuestionMaker struct {
	client     *openai.Client
	model      string
	timeout    time.Duration
	transcript *TranscriptRecorder
	logger     log.Logger
}

// NewQuestionMaker creates a new question maker from the OpenAI settings
func NewQuestionMaker(cfg OpenAIConfig, transcript *TranscriptRecorder, logger log.Logger) *QuestionMaker {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultGenerationTimeout
	}

	return &QuestionMaker{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      model,
		timeout:    timeout,
		transcript: transcript,
		logger:     orNop(logger),
	}
}

// Generate sends the prompt and returns the model's text. Every failure,
// including the timeout, is reported as GenerationFailed.
func (qm *QuestionMaker) Generate(ctx context.Context, req GenerationRequest) (*Generation, error) {
	started := time.Now()
	level.Debug(qm.logger).Log("msg", "requesting questions", "category", req.Category, "difficulty", req.Difficulty, "count", req.Count, "model", qm.model)

	gen, err := qm.generate(ctx, req)
	if qm.transcript != nil {
		if terr := qm.transcript.Record(req, gen, err, started); terr != nil {
			level.Warn(qm.logger).Log("msg", "failed to record transcript", "err", terr)
		}
	}
	if err != nil {
		return nil, err
	}

	level.Debug(qm.logger).Log("msg", "received questions", "category", req.Category, "tokens", gen.TokensUsed, "elapsed", time.Since(started))
	return gen, nil
}

func (qm *QuestionMaker) generate(ctx context.Context, req GenerationRequest) (*Generation, error) {
	ctx, cancel := context.WithTimeout(ctx, qm.timeout)
	defer cancel()

	resp, err := qm.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: qm.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: "You are an expert trivia question writer. Respond with JSON only. Every question has exactly 4 options labelled A, B, C and D.",
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: req.Prompt,
				},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Temperature: 0.7,
		},
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, generationFailed(err, "generation timed out after %s", qm.timeout)
		}
		return nil, generationFailed(err, "chat completion request failed")
	}

	if len(resp.Choices) == 0 {
		return nil, generationFailed(nil, "no choices in response")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, generationFailed(nil, "empty response content")
	}

	model := resp.Model
	if model == "" {
		model = qm.model
	}

	return &Generation{
		Text:       text,
		Model:      model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// String identifies the maker in logs
func (qm *QuestionMaker) String() string {
	return fmt.Sprintf("question_maker(%s)", qm.model)
}
