package paidquiz

import (
	"context"
	"errors"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	defaultSessionQuestions = 10
	defaultSessionMaxAge    = 2 * time.Hour
)

// QuestionProvider supplies question snapshots for new sessions
type QuestionProvider interface {
	GetQuestions(ctx context.Context, category string, difficulty Difficulty, count int) ([]Question, error)
}

// SessionManager drives quiz sessions from start to a terminal state
type SessionManager struct {
	store         Store
	questions     QuestionProvider
	settler       *Settler
	questionCount int
	maxAge        time.Duration
	now           func() time.Time
	logger        log.Logger
}

// SessionManagerConfig configures a SessionManager
type SessionManagerConfig struct {
	QuestionCount int
	MaxAge        time.Duration
	Now           func() time.Time
	Logger        log.Logger
}

// NewSessionManager creates a new session manager
func NewSessionManager(store Store, questions QuestionProvider, settler *Settler, cfg SessionManagerConfig) *SessionManager {
	sm := &SessionManager{
		store:         store,
		questions:     questions,
		settler:       settler,
		questionCount: cfg.QuestionCount,
		maxAge:        cfg.MaxAge,
		now:           cfg.Now,
		logger:        orNop(cfg.Logger),
	}
	if sm.questionCount <= 0 {
		sm.questionCount = defaultSessionQuestions
	}
	if sm.maxAge <= 0 {
		sm.maxAge = defaultSessionMaxAge
	}
	if sm.now == nil {
		sm.now = time.Now
	}
	return sm
}

// Start opens a session paid for by paymentReference. The reference must
// name a completed external payment credit owned by userID; reward credits
// and entry fees do not count. Starting again with the same
// reference returns the session already created for it.
func (sm *SessionManager) Start(ctx context.Context, userID, category string, difficulty Difficulty, paymentReference string) (*Session, error) {
	category = normalizeCategory(category)
	if userID == "" || paymentReference == "" {
		return nil, newError(ErrInvalidRequest, "user and payment reference are required", nil)
	}

	payment, err := sm.store.FindTransaction(ctx, paymentReference)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return nil, newError(ErrPaymentNotVerified, paymentReference, nil)
		}
		return nil, err
	}
	if payment.UserID != userID || payment.Status != TransactionCompleted || !isPaymentCredit(payment) {
		return nil, newError(ErrPaymentNotVerified, paymentReference, nil)
	}

	existing, err := sm.store.FindSessionByPaymentReference(ctx, paymentReference)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.UserID != userID {
			return nil, newError(ErrPaymentNotVerified, paymentReference, nil)
		}
		return existing, nil
	}

	questions, err := sm.questions.GetQuestions(ctx, category, difficulty, sm.questionCount)
	if err != nil {
		return nil, err
	}

	session := &Session{
		ID:               uuid.NewString(),
		UserID:           userID,
		Category:         category,
		Difficulty:       difficulty,
		Questions:        datatypes.JSONSlice[Question](copyQuestions(questions)),
		UserAnswers:      make(datatypes.JSONSlice[string], len(questions)),
		TotalQuestions:   len(questions),
		Status:           SessionActive,
		PaymentReference: paymentReference,
		RewardEarned:     decimal.Zero,
		TimeStarted:      sm.now().UTC(),
	}
	if err := sm.store.CreateSession(ctx, session); err != nil {
		// a concurrent Start with the same reference won
		if errors.Is(err, ErrDuplicateReference) {
			if existing, ferr := sm.store.FindSessionByPaymentReference(ctx, paymentReference); ferr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}

	level.Info(sm.logger).Log("msg", "session started", "session_id", session.ID, "user_id", userID, "category", category, "difficulty", difficulty, "reference", paymentReference)
	return session, nil
}

// AnswerResult is returned for each submitted answer. It never carries the
// correct option.
type AnswerResult struct {
	Index       int    `json:"index"`
	Answer      string `json:"answer"`
	IsCorrect   bool   `json:"is_correct"`
	Explanation string `json:"explanation,omitempty"`
}

// SubmitAnswer records the answer for one question. Resubmitting an index
// overwrites the earlier answer.
func (sm *SessionManager) SubmitAnswer(ctx context.Context, sessionID, userID string, index int, answer string) (*AnswerResult, error) {
	answer = normalizeLabel(answer)
	if !isOptionLabel(answer) {
		return nil, newError(ErrInvalidAnswer, answer, nil)
	}

	var result *AnswerResult
	err := sm.store.RunInTransaction(ctx, func(tx Store) error {
		session, err := lockOwnedSession(ctx, tx, sessionID, userID)
		if err != nil {
			return err
		}
		if session.Status != SessionActive {
			return newError(ErrSessionNotActive, string(session.Status), nil)
		}
		if index < 0 || index >= session.TotalQuestions || index >= len(session.Questions) {
			return newError(ErrInvalidQuestionIndex, "", nil)
		}

		for len(session.UserAnswers) < len(session.Questions) {
			session.UserAnswers = append(session.UserAnswers, "")
		}
		session.UserAnswers[index] = answer
		if err := tx.SaveSession(ctx, session); err != nil {
			return err
		}

		question := session.Questions[index]
		result = &AnswerResult{
			Index:       index,
			Answer:      answer,
			IsCorrect:   answer == question.CorrectOption,
			Explanation: question.Explanation,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Completion is the result of finishing a session
type Completion struct {
	Session    *Session    `json:"session"`
	Settlement *Settlement `json:"settlement"`
}

// Complete scores the session from scratch and settles its reward. The
// status change, the wallet credit and the ledger row commit together.
func (sm *SessionManager) Complete(ctx context.Context, sessionID, userID string) (*Completion, error) {
	var completion *Completion
	err := sm.store.RunInTransaction(ctx, func(tx Store) error {
		session, err := lockOwnedSession(ctx, tx, sessionID, userID)
		if err != nil {
			return err
		}
		switch session.Status {
		case SessionCompleted:
			return newError(ErrDuplicateSettlement, RewardReference(session.ID), nil)
		case SessionAbandoned:
			return newError(ErrSessionNotActive, string(session.Status), nil)
		}

		completedAt := sm.now().UTC()
		session.Score = session.CorrectCount()
		session.Status = SessionCompleted
		session.TimeCompleted = &completedAt

		settlement, err := sm.settler.settleTx(ctx, tx, session)
		if err != nil {
			return err
		}
		if err := tx.SaveSession(ctx, session); err != nil {
			return err
		}

		completion = &Completion{Session: session, Settlement: settlement}
		return nil
	})
	if err != nil {
		return nil, err
	}

	level.Info(sm.logger).Log("msg", "session completed", "session_id", sessionID, "user_id", userID, "score", completion.Session.Score, "total", completion.Session.TotalQuestions)
	return completion, nil
}

// Abandon ends an active session without a reward
func (sm *SessionManager) Abandon(ctx context.Context, sessionID, userID string) (*Session, error) {
	var session *Session
	err := sm.store.RunInTransaction(ctx, func(tx Store) error {
		var err error
		session, err = lockOwnedSession(ctx, tx, sessionID, userID)
		if err != nil {
			return err
		}
		if session.Status != SessionActive {
			return newError(ErrSessionNotActive, string(session.Status), nil)
		}
		session.Status = SessionAbandoned
		return tx.SaveSession(ctx, session)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// AbandonStale abandons active sessions older than the maximum age
func (sm *SessionManager) AbandonStale(ctx context.Context) (int64, error) {
	cutoff := sm.now().UTC().Add(-sm.maxAge)
	n, err := sm.store.AbandonSessionsStartedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		level.Info(sm.logger).Log("msg", "abandoned stale sessions", "sessions", n, "cutoff", cutoff)
	}
	return n, nil
}

// QuestionView is one question as shown to the player
type QuestionView struct {
	Index           int      `json:"index"`
	Prompt          string   `json:"question"`
	Options         []string `json:"options"`
	SubmittedAnswer string   `json:"submitted_answer,omitempty"`
	CorrectOption   *string  `json:"correct_option,omitempty"`
	Explanation     string   `json:"explanation,omitempty"`
	IsCorrect       *bool    `json:"is_correct,omitempty"`
}

// SessionView is the read-only view of a session. Correct options and
// explanations only appear once the session is completed.
type SessionView struct {
	ID             string           `json:"id"`
	Category       string           `json:"category"`
	Difficulty     Difficulty       `json:"difficulty"`
	Status         SessionStatus    `json:"status"`
	TotalQuestions int              `json:"total_questions"`
	Answered       int              `json:"answered"`
	Score          *int             `json:"score,omitempty"`
	RewardEarned   *decimal.Decimal `json:"reward_earned,omitempty"`
	TimeStarted    time.Time        `json:"time_started"`
	TimeCompleted  *time.Time       `json:"time_completed,omitempty"`
	Questions      []QuestionView   `json:"questions"`
}

// View returns the session as the owner may see it
func (sm *SessionManager) View(ctx context.Context, sessionID, userID string) (*SessionView, error) {
	session, err := sm.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, newError(ErrSessionNotFound, sessionID, nil)
	}
	return NewSessionView(session), nil
}

// NewSessionView applies the reveal policy to a session
func NewSessionView(session *Session) *SessionView {
	reveal := session.Status == SessionCompleted

	view := &SessionView{
		ID:             session.ID,
		Category:       session.Category,
		Difficulty:     session.Difficulty,
		Status:         session.Status,
		TotalQuestions: session.TotalQuestions,
		TimeStarted:    session.TimeStarted,
		TimeCompleted:  session.TimeCompleted,
		Questions:      make([]QuestionView, len(session.Questions)),
	}
	if reveal {
		score := session.Score
		reward := session.RewardEarned
		view.Score = &score
		view.RewardEarned = &reward
	}

	for i, q := range session.Questions {
		qv := QuestionView{
			Index:   i,
			Prompt:  q.Prompt,
			Options: append([]string(nil), q.Options...),
		}
		if i < len(session.UserAnswers) {
			qv.SubmittedAnswer = session.UserAnswers[i]
		}
		if qv.SubmittedAnswer != "" {
			view.Answered++
		}
		if reveal {
			correct := q.CorrectOption
			isCorrect := qv.SubmittedAnswer == correct
			qv.CorrectOption = &correct
			qv.Explanation = q.Explanation
			qv.IsCorrect = &isCorrect
		}
		view.Questions[i] = qv
	}
	return view
}

// lockOwnedSession locks the session and hides sessions of other users
func lockOwnedSession(ctx context.Context, tx Store, sessionID, userID string) (*Session, error) {
	session, err := tx.LockSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, newError(ErrSessionNotFound, sessionID, nil)
	}
	return session, nil
}
