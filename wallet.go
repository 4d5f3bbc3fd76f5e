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

// PaymentIntent describes a payment to start with the gateway
type PaymentIntent struct {
	UserID      string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method"`
	Description string          `json:"description"`
}

// PaymentInit is the gateway's answer to a payment intent
type PaymentInit struct {
	Reference  string `json:"reference"`
	PaymentURL string `json:"payment_url,omitempty"`
}

// PaymentVerification is the gateway's verdict on a payment
type PaymentVerification struct {
	Success bool     `json:"success"`
	Data    Metadata `json:"data,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// PaymentGateway is the external payment provider. Wire protocols live
// behind this interface.
type PaymentGateway interface {
	InitializePayment(ctx context.Context, intent PaymentIntent) (*PaymentInit, error)
	VerifyPayment(ctx context.Context, reference, method string) (*PaymentVerification, error)
}

// Wallet moves money between the payment gateway, user balances and the
// ledger
type Wallet struct {
	store   Store
	gateway PaymentGateway
	now     func() time.Time
	logger  log.Logger
}

// NewWallet creates a new wallet. gateway may be nil when only internal
// movements (fees, withdrawals) are needed.
func NewWallet(store Store, gateway PaymentGateway, now func() time.Time, logger log.Logger) *Wallet {
	if now == nil {
		now = time.Now
	}
	return &Wallet{store: store, gateway: gateway, now: now, logger: orNop(logger)}
}

// Balance returns the user's current balance
func (w *Wallet) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	user, err := w.store.GetUser(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return user.Balance, nil
}

// InitiatePayment starts a deposit with the gateway and records it as a
// pending credit under the gateway's reference
func (w *Wallet) InitiatePayment(ctx context.Context, intent PaymentIntent) (*Transaction, *PaymentInit, error) {
	if w.gateway == nil {
		return nil, nil, newError(ErrInvalidRequest, "no payment gateway configured", nil)
	}
	if !intent.Amount.IsPositive() {
		return nil, nil, newError(ErrInvalidRequest, "amount must be positive", nil)
	}
	if !isWholeCents(intent.Amount) {
		return nil, nil, newError(ErrInvalidRequest, "amount has more than two decimal places", nil)
	}
	if _, err := w.store.GetUser(ctx, intent.UserID); err != nil {
		return nil, nil, err
	}

	init, err := w.gateway.InitializePayment(ctx, intent)
	if err != nil {
		return nil, nil, newError(ErrPaymentNotVerified, "payment initialization failed", err)
	}
	if init == nil || init.Reference == "" {
		return nil, nil, newError(ErrPaymentNotVerified, "gateway returned no reference", nil)
	}

	txn := &Transaction{
		ID:               uuid.NewString(),
		UserID:           intent.UserID,
		Amount:           intent.Amount,
		Type:             TransactionCredit,
		Status:           TransactionPending,
		PaymentMethod:    intent.Method,
		PaymentReference: init.Reference,
		Description:      intent.Description,
	}
	if err := w.store.CreateTransaction(ctx, txn); err != nil {
		return nil, nil, err
	}

	level.Info(w.logger).Log("msg", "payment initiated", "user_id", intent.UserID, "reference", init.Reference, "amount", txn.Amount.StringFixed(2))
	return txn, init, nil
}

// VerifyPayment asks the gateway about a pending transaction and applies the
// verdict. The status change and any wallet credit commit together;
// transactions that already left pending are returned unchanged.
func (w *Wallet) VerifyPayment(ctx context.Context, reference string) (*Transaction, error) {
	if w.gateway == nil {
		return nil, newError(ErrInvalidRequest, "no payment gateway configured", nil)
	}

	txn, err := w.store.FindTransaction(ctx, reference)
	if err != nil {
		return nil, err
	}
	if txn.Status != TransactionPending {
		return txn, nil
	}

	// the gateway call happens before any row is locked
	verification, verr := w.gateway.VerifyPayment(ctx, reference, txn.PaymentMethod)
	if verr != nil {
		return nil, newError(ErrPaymentNotVerified, "gateway verification failed", verr)
	}

	var result *Transaction
	err = w.store.RunInTransaction(ctx, func(tx Store) error {
		locked, err := tx.LockTransaction(ctx, reference)
		if err != nil {
			return err
		}
		if locked.Status != TransactionPending {
			result = locked
			return nil
		}

		extra := Metadata{"verified_at": w.now().UTC(), "gateway_success": verification.Success}
		if verification.Error != "" {
			extra["gateway_error"] = verification.Error
		}
		if len(verification.Data) > 0 {
			extra["verification"] = verification.Data
		}
		normalized, err := extra.Normalize()
		if err != nil {
			return err
		}
		locked.Metadata = mergeMetadata(locked.Metadata, normalized)

		if verification.Success {
			locked.Status = TransactionCompleted
			if locked.Type == TransactionCredit {
				if _, err := creditWallet(ctx, tx, locked.UserID, locked.Amount); err != nil {
					return err
				}
			}
		} else {
			locked.Status = TransactionFailed
			// a failed payout returns the held funds
			if locked.Type == TransactionDebit {
				if _, err := creditWallet(ctx, tx, locked.UserID, locked.Amount); err != nil {
					return err
				}
			}
		}

		if err := tx.SaveTransaction(ctx, locked); err != nil {
			return err
		}
		result = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	level.Info(w.logger).Log("msg", "payment verified", "reference", reference, "user_id", result.UserID, "status", result.Status)
	return result, nil
}

// PayEntryFee debits the entry fee of a session. Paying again for the same
// session returns the first fee transaction without charging twice.
func (w *Wallet) PayEntryFee(ctx context.Context, userID, sessionID string, amount decimal.Decimal) (*Transaction, error) {
	if amount.IsNegative() {
		return nil, newError(ErrInvalidRequest, "fee cannot be negative", nil)
	}
	if !isWholeCents(amount) {
		return nil, newError(ErrInvalidRequest, "fee has more than two decimal places", nil)
	}
	reference := EntryFeeReference(sessionID)

	var result *Transaction
	err := w.store.RunInTransaction(ctx, func(tx Store) error {
		existing, err := tx.FindTransaction(ctx, reference)
		if err == nil {
			result = existing
			return nil
		}
		if !errors.Is(err, ErrTransactionNotFound) {
			return err
		}

		if _, err := debitWallet(ctx, tx, userID, amount); err != nil {
			return err
		}

		metadata, err := Metadata{"session_id": sessionID}.Normalize()
		if err != nil {
			return err
		}
		result = &Transaction{
			ID:               uuid.NewString(),
			UserID:           userID,
			Amount:           amount,
			Type:             TransactionDebit,
			Status:           TransactionCompleted,
			PaymentMethod:    WalletPaymentMethod,
			PaymentReference: reference,
			Description:      "Quiz entry fee for session " + sessionID,
			Metadata:         metadata,
		}
		return tx.CreateTransaction(ctx, result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Withdraw holds amount from the wallet and records a pending debit for the
// payout provider. A withdrawal larger than the balance changes nothing.
func (w *Wallet) Withdraw(ctx context.Context, userID string, amount decimal.Decimal, method string) (*Transaction, error) {
	if !amount.IsPositive() {
		return nil, newError(ErrInvalidRequest, "amount must be positive", nil)
	}
	if !isWholeCents(amount) {
		return nil, newError(ErrInvalidRequest, "amount has more than two decimal places", nil)
	}

	var result *Transaction
	err := w.store.RunInTransaction(ctx, func(tx Store) error {
		balance, err := debitWallet(ctx, tx, userID, amount)
		if err != nil {
			return err
		}

		metadata, err := Metadata{"balance_after": balance}.Normalize()
		if err != nil {
			return err
		}
		result = &Transaction{
			ID:               uuid.NewString(),
			UserID:           userID,
			Amount:           amount,
			Type:             TransactionDebit,
			Status:           TransactionPending,
			PaymentMethod:    method,
			PaymentReference: "WD_" + uuid.NewString(),
			Description:      "Wallet withdrawal",
			Metadata:         metadata,
		}
		return tx.CreateTransaction(ctx, result)
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			level.Info(w.logger).Log("msg", "withdrawal rejected", "user_id", userID, "amount", amount.StringFixed(2))
		}
		return nil, err
	}
	return result, nil
}

// creditWallet adds amount to the locked balance and returns the new balance
func creditWallet(ctx context.Context, tx Store, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	user, err := tx.LockUser(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	balance := user.Balance.Add(amount)
	if err := tx.SetBalance(ctx, userID, balance); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// debitWallet re-reads the balance under the row lock and refuses to take it
// below zero
func debitWallet(ctx context.Context, tx Store, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	user, err := tx.LockUser(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	if user.Balance.LessThan(amount) {
		return decimal.Zero, newError(ErrInsufficientBalance, "", nil)
	}
	balance := user.Balance.Sub(amount)
	if err := tx.SetBalance(ctx, userID, balance); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// isWholeCents reports whether amount is representable in the ledger's
// two-decimal columns without rounding
func isWholeCents(amount decimal.Decimal) bool {
	return amount.Equal(amount.Round(2))
}
