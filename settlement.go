package paidquiz

import (
	"context"
	"errors"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Settlement is the outcome of paying out one session
type Settlement struct {
	SessionID   string          `json:"session_id"`
	Reward      Reward          `json:"reward"`
	PriorWins   int             `json:"prior_wins"`
	Reference   string          `json:"reference"`
	Transaction *Transaction    `json:"transaction"`
	Balance     decimal.Decimal `json:"balance"`
}

// Settler credits session rewards to the wallet and the ledger in one unit
type Settler struct {
	store  Store
	policy RewardPolicy
	logger log.Logger
}

// NewSettler creates a new settler
func NewSettler(store Store, policy RewardPolicy, logger log.Logger) *Settler {
	return &Settler{store: store, policy: policy, logger: orNop(logger)}
}

// Policy returns the reward parameters in use
func (s *Settler) Policy() RewardPolicy {
	return s.policy
}

// Settle pays out an already completed session in its own transaction.
// A session that was settled before is rejected with DUPLICATE_SETTLEMENT
// and the wallet is left untouched.
func (s *Settler) Settle(ctx context.Context, sessionID string) (*Settlement, error) {
	var settlement *Settlement
	err := s.store.RunInTransaction(ctx, func(tx Store) error {
		session, err := tx.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.Status != SessionCompleted {
			return newError(ErrSessionNotActive, "only completed sessions settle", nil)
		}

		settlement, err = s.settleTx(ctx, tx, session)
		if err != nil {
			return err
		}
		return tx.SaveSession(ctx, session)
	})
	if err != nil {
		return nil, err
	}
	return settlement, nil
}

// settleTx performs the settlement inside the caller's transaction. The
// session must already carry its final score and completion time; its
// RewardEarned is set but not saved.
func (s *Settler) settleTx(ctx context.Context, tx Store, session *Session) (*Settlement, error) {
	reference := RewardReference(session.ID)
	logger := log.With(s.logger, "session_id", session.ID, "user_id", session.UserID, "reference", reference)

	if _, err := tx.FindTransaction(ctx, reference); err == nil {
		return nil, newError(ErrDuplicateSettlement, reference, nil)
	} else if !errors.Is(err, ErrTransactionNotFound) {
		return nil, err
	}

	completed := session.TimeStarted
	if session.TimeCompleted != nil {
		completed = *session.TimeCompleted
	}

	results, err := tx.RecentSessionResults(ctx, session.UserID, completed.Add(-s.policy.StreakWindow), completed, session.ID)
	if err != nil {
		return nil, err
	}
	wins := 0
	for _, r := range results {
		if s.policy.IsWin(r.Score, r.TotalQuestions) {
			wins++
		}
	}

	spent := completed.Sub(session.TimeStarted)
	if spent < 0 {
		spent = 0
	}
	reward := s.policy.Compute(RewardInput{
		TotalQuestions: session.TotalQuestions,
		CorrectCount:   session.Score,
		TimeSpent:      spent,
		PriorWins:      wins,
	})

	balance, err := creditWallet(ctx, tx, session.UserID, reward.Total)
	if err != nil {
		return nil, err
	}

	metadata, err := Metadata{
		"session_id":   session.ID,
		"category":     session.Category,
		"difficulty":   string(session.Difficulty),
		"score":        session.Score,
		"total":        session.TotalQuestions,
		"base":         reward.Base,
		"time_bonus":   reward.TimeBonus.StringFixed(2),
		"streak_bonus": reward.StreakBonus,
		"prior_wins":   wins,
		"time_spent":   int64(spent / time.Second),
		"completed_at": completed,
	}.Normalize()
	if err != nil {
		return nil, err
	}

	txn := &Transaction{
		ID:               uuid.NewString(),
		UserID:           session.UserID,
		Amount:           reward.Total,
		Type:             TransactionCredit,
		Status:           TransactionCompleted,
		PaymentMethod:    RewardPaymentMethod,
		PaymentReference: reference,
		Description:      "Quiz reward for session " + session.ID,
		Metadata:         metadata,
	}
	if err := tx.CreateTransaction(ctx, txn); err != nil {
		if errors.Is(err, ErrDuplicateReference) {
			return nil, newError(ErrDuplicateSettlement, reference, err)
		}
		return nil, err
	}

	session.RewardEarned = reward.Total
	level.Info(logger).Log("msg", "settled session", "score", session.Score, "total", session.TotalQuestions, "reward", reward.Total.StringFixed(2), "prior_wins", wins)

	return &Settlement{
		SessionID:   session.ID,
		Reward:      reward,
		PriorWins:   wins,
		Reference:   reference,
		Transaction: txn,
		Balance:     balance,
	}, nil
}
