package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"paidquiz"
)

type options struct {
	configPath   string
	category     string
	difficulty   string
	numQuestions int
	outputFile   string
	playMode     bool
	username     string
	invalidate   bool
	verbose      bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Config file (defaults and PAIDQUIZ_* env vars otherwise)")
	flag.StringVar(&opts.category, "category", "", "Quiz category (required)")
	flag.StringVar(&opts.difficulty, "difficulty", "medium", "Difficulty level (easy, medium, hard)")
	flag.IntVar(&opts.numQuestions, "questions", 10, "Number of questions to resolve")
	flag.StringVar(&opts.outputFile, "output", "", "Output file for questions JSON (default: stdout)")
	flag.BoolVar(&opts.playMode, "play", false, "Play a paid session interactively against the local wallet")
	flag.StringVar(&opts.username, "user", "player", "Username for -play")
	flag.BoolVar(&opts.invalidate, "invalidate", false, "Invalidate cached sets for the category instead of resolving")
	flag.BoolVar(&opts.verbose, "verbose", false, "Enable verbose debugging output")

	flag.Parse()

	logger := paidquiz.NewLogger(os.Stderr, opts.verbose)
	if err := run(logger, opts); err != nil {
		level.Error(logger).Log("msg", "quizgenerator failed", "err", err)
		os.Exit(1)
	}
}

// run does all the work so that deferred cleanup happens before main exits
func run(logger log.Logger, opts options) error {
	if opts.category == "" {
		return errors.New("category is required, use -category")
	}

	cfg, err := paidquiz.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Verbose && !opts.verbose {
		logger = paidquiz.NewLogger(os.Stderr, true)
	}

	engine, err := paidquiz.NewEngine(cfg, logger, localGateway{})
	if err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			level.Warn(logger).Log("msg", "failed to close engine", "err", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	diff := paidquiz.Difficulty(strings.ToLower(opts.difficulty))

	if opts.invalidate {
		n, err := engine.Cache.Invalidate(ctx, opts.category, diff)
		if err != nil {
			return publicError("failed to invalidate", err, cfg.DevMode)
		}
		fmt.Printf("Invalidated %d question sets for %s\n", n, opts.category)
		return nil
	}

	if opts.playMode {
		if err := playQuiz(ctx, engine, opts.username, opts.category, diff); err != nil {
			return publicError("quiz aborted", err, cfg.DevMode)
		}
		return nil
	}

	level.Debug(logger).Log("msg", "resolving questions", "category", opts.category, "difficulty", diff, "count", opts.numQuestions)

	questions, err := engine.Cache.GetQuestions(ctx, opts.category, diff, opts.numQuestions)
	if err != nil {
		return publicError("failed to get questions", err, cfg.DevMode)
	}

	output, err := json.MarshalIndent(questions, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal questions: %w", err)
	}

	if opts.outputFile == "" {
		fmt.Println(string(output))
		return nil
	}
	if err := os.WriteFile(opts.outputFile, output, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	level.Info(logger).Log("msg", "questions saved", "path", opts.outputFile)
	return nil
}

// localGateway approves every payment. It lets -play run against a local
// database without a payment provider.
type localGateway struct{}

func (localGateway) InitializePayment(_ context.Context, intent paidquiz.PaymentIntent) (*paidquiz.PaymentInit, error) {
	return &paidquiz.PaymentInit{Reference: "LOCAL_" + uuid.NewString()}, nil
}

func (localGateway) VerifyPayment(_ context.Context, reference, method string) (*paidquiz.PaymentVerification, error) {
	return &paidquiz.PaymentVerification{
		Success: true,
		Data:    paidquiz.Metadata{"provider": "local", "method": method},
	}, nil
}

func ensureUser(ctx context.Context, engine *paidquiz.Engine, username string) (string, error) {
	id := "local-" + username
	if _, err := engine.DB.GetUser(ctx, id); err == nil {
		return id, nil
	}
	return id, engine.DB.CreateUser(ctx, &paidquiz.User{ID: id, Username: username})
}

func playQuiz(ctx context.Context, engine *paidquiz.Engine, username, category string, difficulty paidquiz.Difficulty) error {
	userID, err := ensureUser(ctx, engine, username)
	if err != nil {
		return err
	}

	fee := engine.EntryFee
	fmt.Printf("Starting paid quiz on: %s (%s)\n", category, difficulty)
	fmt.Printf("Entry fee: %s\n", fee.StringFixed(2))
	fmt.Println("Generating questions... (this may take a moment)")
	fmt.Println()

	payment, _, err := engine.Wallet.InitiatePayment(ctx, paidquiz.PaymentIntent{
		UserID:      userID,
		Amount:      fee,
		Method:      "local",
		Description: "Quiz entry deposit",
	})
	if err != nil {
		return err
	}
	if _, err := engine.Wallet.VerifyPayment(ctx, payment.PaymentReference); err != nil {
		return err
	}

	session, err := engine.Sessions.Start(ctx, userID, category, difficulty, payment.PaymentReference)
	if err != nil {
		return err
	}
	if _, err := engine.Wallet.PayEntryFee(ctx, userID, session.ID, fee); err != nil {
		return err
	}

	scanner := bufio.NewScanner(os.Stdin)
	for i, question := range session.Questions {
		fmt.Printf("Question %d/%d:\n", i+1, session.TotalQuestions)
		fmt.Printf("%s\n\n", question.Prompt)
		for j, option := range question.Options {
			fmt.Printf("%s) %s\n", paidquiz.OptionLabels[j], option)
		}
		fmt.Println()

		var result *paidquiz.AnswerResult
		for {
			fmt.Print("Your answer (A/B/C/D): ")
			if !scanner.Scan() {
				return fmt.Errorf("input closed")
			}
			result, err = engine.Sessions.SubmitAnswer(ctx, session.ID, userID, i, scanner.Text())
			if err == nil {
				break
			}
			if paidquiz.KindOf(err) != paidquiz.KindInvalidAnswer {
				return err
			}
			fmt.Println("Please enter A, B, C, or D")
		}

		if result.IsCorrect {
			fmt.Println("Correct!")
		} else {
			fmt.Println("Incorrect.")
		}
		if result.Explanation != "" {
			fmt.Printf("Explanation: %s\n", result.Explanation)
		}
		fmt.Println()
		fmt.Println(strings.Repeat("─", 50))
		fmt.Println()
	}

	completion, err := engine.Sessions.Complete(ctx, session.ID, userID)
	if err != nil {
		return err
	}

	view := paidquiz.NewSessionView(completion.Session)
	fmt.Println("Quiz completed!")
	fmt.Printf("Score: %d/%d\n", completion.Session.Score, completion.Session.TotalQuestions)
	for _, q := range view.Questions {
		if q.IsCorrect != nil && !*q.IsCorrect {
			fmt.Printf("  Q%d: you answered %q, correct was %s\n", q.Index+1, q.SubmittedAnswer, *q.CorrectOption)
		}
	}

	reward := completion.Settlement.Reward
	fmt.Printf("Reward: %s (base %s, time bonus %s, streak bonus %s)\n",
		reward.Total.StringFixed(2), reward.Base.StringFixed(2), reward.TimeBonus.StringFixed(2), reward.StreakBonus.StringFixed(2))
	fmt.Printf("Wallet balance: %s\n", completion.Settlement.Balance.StringFixed(2))
	return nil
}

// publicError reports err the way a client of the engine would see it
func publicError(msg string, err error, devMode bool) error {
	pub := paidquiz.Public(err, devMode)
	if pub.Detail != "" {
		return fmt.Errorf("%s: %s: %s (%s)", msg, pub.Kind, pub.Message, pub.Detail)
	}
	return fmt.Errorf("%s: %s: %s", msg, pub.Kind, pub.Message)
}
