package paidquiz

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Difficulty is the difficulty tier a question set is generated for
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the known tiers
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// OptionLabels are the answer labels, in option order
var OptionLabels = []string{"A", "B", "C", "D"}

// MaxQuestionsPerSet bounds a single generated question set
const MaxQuestionsPerSet = 20

// Question represents a single multiple choice question
type Question struct {
	Prompt           string   `json:"question"`
	Options          []string `json:"options"`
	CorrectOption    string   `json:"correct_answer"` // one of OptionLabels
	Explanation      string   `json:"explanation,omitempty"`
	Topic            string   `json:"topic,omitempty"`
	TimeLimitSeconds int      `json:"time_limit_seconds,omitempty"`
}

// QuestionSet is a generated batch of questions stored in the durable cache
// tier. Rows are never deleted; expiry and invalidation flip IsActive.
type QuestionSet struct {
	ID            uint                          `gorm:"primaryKey" json:"id"`
	CacheKey      string                        `gorm:"type:varchar(191);index;not null" json:"cache_key"`
	Category      string                        `gorm:"type:varchar(100);index:idx_question_sets_lookup,priority:1;not null" json:"category"`
	Difficulty    Difficulty                    `gorm:"type:varchar(10);index:idx_question_sets_lookup,priority:2;not null" json:"difficulty"`
	Questions     datatypes.JSONSlice[Question] `gorm:"not null" json:"questions"`
	QuestionCount int                           `gorm:"not null" json:"question_count"`
	AIModel       string                        `gorm:"type:varchar(100)" json:"ai_model"`
	TokensUsed    int                           `json:"tokens_used"`
	Cost          decimal.Decimal               `gorm:"type:numeric(18,6);not null;default:0" json:"cost"`
	CreatedAt     time.Time                     `gorm:"not null" json:"created_at"`
	ExpiresAt     time.Time                     `gorm:"index;not null" json:"expires_at"`
	UsageCount    int                           `gorm:"not null;default:0" json:"usage_count"`
	LastUsed      *time.Time                    `json:"last_used,omitempty"`
	IsActive      bool                          `gorm:"index;not null;default:true" json:"is_active"`
}

// NewQuestionSet derives the cache key, expiry and cost of a freshly
// generated set. ExpiresAt is fixed here and never extended.
func NewQuestionSet(category string, difficulty Difficulty, questions []Question, gen *Generation, now time.Time, ttl time.Duration) *QuestionSet {
	now = now.UTC()
	set := &QuestionSet{
		CacheKey:      DurableCacheKey(category, difficulty, now),
		Category:      category,
		Difficulty:    difficulty,
		Questions:     append(datatypes.JSONSlice[Question](nil), questions...),
		QuestionCount: len(questions),
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
		IsActive:      true,
	}
	if gen != nil {
		set.AIModel = gen.Model
		set.TokensUsed = gen.TokensUsed
		set.Cost = EstimateCost(gen.Model, gen.TokensUsed)
	}
	return set
}

// SessionStatus is the state of a quiz session
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionAbandoned SessionStatus = "abandoned"
)

// Session is one paid quiz attempt. Questions is a snapshot taken at start
// and carries no reference back to the cache entry it came from.
type Session struct {
	ID               string                        `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserID           string                        `gorm:"type:varchar(64);index;not null" json:"user_id"`
	Category         string                        `gorm:"type:varchar(100);not null" json:"category"`
	Difficulty       Difficulty                    `gorm:"type:varchar(10);not null" json:"difficulty"`
	Questions        datatypes.JSONSlice[Question] `gorm:"not null" json:"questions"`
	UserAnswers      datatypes.JSONSlice[string]   `gorm:"not null" json:"user_answers"`
	Score            int                           `gorm:"not null;default:0" json:"score"`
	TotalQuestions   int                           `gorm:"not null" json:"total_questions"`
	Status           SessionStatus                 `gorm:"type:varchar(20);index;not null" json:"status"`
	PaymentReference string                        `gorm:"type:varchar(191);uniqueIndex;not null" json:"payment_reference"`
	RewardEarned     decimal.Decimal               `gorm:"type:numeric(18,2);not null;default:0" json:"reward_earned"`
	TimeStarted      time.Time                     `gorm:"index;not null" json:"time_started"`
	TimeCompleted    *time.Time                    `gorm:"index" json:"time_completed,omitempty"`
	UpdatedAt        time.Time                     `json:"updated_at"`
}

// TableName keeps quiz sessions apart from any auth session table.
func (Session) TableName() string { return "quiz_sessions" }

// Terminal reports whether the session can no longer change
func (s *Session) Terminal() bool {
	return s.Status == SessionCompleted || s.Status == SessionAbandoned
}

// CorrectCount re-scans every submitted answer against the snapshot
func (s *Session) CorrectCount() int {
	correct := 0
	for i, question := range s.Questions {
		if i < len(s.UserAnswers) && s.UserAnswers[i] != "" && s.UserAnswers[i] == question.CorrectOption {
			correct++
		}
	}
	return correct
}

// TransactionType is the ledger side of a transaction
type TransactionType string

const (
	TransactionDebit  TransactionType = "debit"
	TransactionCredit TransactionType = "credit"
)

// TransactionStatus is the lifecycle state of a transaction
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

// Transaction is an append-only ledger row. PaymentReference is the
// idempotency key and is unique across all transactions.
type Transaction struct {
	ID               string            `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserID           string            `gorm:"type:varchar(64);index;not null" json:"user_id"`
	Amount           decimal.Decimal   `gorm:"type:numeric(18,2);not null" json:"amount"`
	Type             TransactionType   `gorm:"type:varchar(10);not null" json:"type"`
	Status           TransactionStatus `gorm:"type:varchar(20);index;not null" json:"status"`
	PaymentMethod    string            `gorm:"type:varchar(50)" json:"payment_method"`
	PaymentReference string            `gorm:"type:varchar(191);uniqueIndex;not null" json:"payment_reference"`
	Description      string            `gorm:"type:text" json:"description"`
	Metadata         datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// User holds the wallet balance. Balance is only written inside settlement
// or payment-verification units and is never recomputed from the ledger.
type User struct {
	ID        string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Username  string          `gorm:"type:varchar(100);uniqueIndex;not null" json:"username"`
	Balance   decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0" json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Payment methods of ledger rows written by the engine itself
const (
	RewardPaymentMethod = "reward"
	WalletPaymentMethod = "wallet"
)

// RewardReference is the ledger reference of a session's reward credit
func RewardReference(sessionID string) string {
	return "REWARD_" + sessionID
}

// EntryFeeReference is the ledger reference of a session's fee debit
func EntryFeeReference(sessionID string) string {
	return "quiz_fee_" + sessionID
}

// isPaymentCredit reports whether txn is money received from outside the
// wallet, as opposed to a settlement reward or a fee
func isPaymentCredit(txn *Transaction) bool {
	if txn.Type != TransactionCredit || txn.PaymentMethod == RewardPaymentMethod {
		return false
	}
	return !strings.HasPrefix(txn.PaymentReference, RewardReference("")) &&
		!strings.HasPrefix(txn.PaymentReference, EntryFeeReference(""))
}

func normalizeCategory(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

func normalizeLabel(answer string) string {
	return strings.ToUpper(strings.TrimSpace(answer))
}

func isOptionLabel(label string) bool {
	for _, l := range OptionLabels {
		if l == label {
			return true
		}
	}
	return false
}
