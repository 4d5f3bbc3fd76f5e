package paidquiz

import (
	"context"

	"github.com/shopspring/decimal"
)

// CreateUser persists a new user
func (db *DB) CreateUser(ctx context.Context, user *User) error {
	if err := db.conn(ctx).Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return newError(ErrInvalidRequest, "user already exists", err)
		}
		return storageError(err, "failed to create user")
	}
	return nil
}

// GetUser retrieves a user by ID
func (db *DB) GetUser(ctx context.Context, id string) (*User, error) {
	var user User
	if err := db.conn(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if isNotFound(err) {
			return nil, newError(ErrUserNotFound, id, nil)
		}
		return nil, storageError(err, "failed to get user %s", id)
	}
	return &user, nil
}

// LockUser retrieves a user and locks the row, so the balance read here is
// the one the transaction will overwrite
func (db *DB) LockUser(ctx context.Context, id string) (*User, error) {
	var user User
	if err := db.forUpdate(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if isNotFound(err) {
			return nil, newError(ErrUserNotFound, id, nil)
		}
		return nil, storageError(err, "failed to lock user %s", id)
	}
	return &user, nil
}

// SetBalance overwrites the wallet balance
func (db *DB) SetBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	result := db.conn(ctx).Model(&User{}).Where("id = ?", id).Update("balance", balance)
	if result.Error != nil {
		return storageError(result.Error, "failed to update balance of %s", id)
	}
	if result.RowsAffected == 0 {
		return newError(ErrUserNotFound, id, nil)
	}
	return nil
}

// CreateTransaction appends a ledger row. A reused payment reference is
// rejected as DUPLICATE_REFERENCE.
func (db *DB) CreateTransaction(ctx context.Context, txn *Transaction) error {
	if err := db.conn(ctx).Create(txn).Error; err != nil {
		if isUniqueViolation(err) {
			return newError(ErrDuplicateReference, txn.PaymentReference, err)
		}
		return storageError(err, "failed to create transaction %s", txn.PaymentReference)
	}
	return nil
}

// FindTransaction returns the transaction with the payment reference
func (db *DB) FindTransaction(ctx context.Context, reference string) (*Transaction, error) {
	var txn Transaction
	if err := db.conn(ctx).Where("payment_reference = ?", reference).First(&txn).Error; err != nil {
		if isNotFound(err) {
			return nil, newError(ErrTransactionNotFound, reference, nil)
		}
		return nil, storageError(err, "failed to get transaction %s", reference)
	}
	return &txn, nil
}

// LockTransaction returns the transaction with the payment reference and
// locks its row
func (db *DB) LockTransaction(ctx context.Context, reference string) (*Transaction, error) {
	var txn Transaction
	if err := db.forUpdate(ctx).Where("payment_reference = ?", reference).First(&txn).Error; err != nil {
		if isNotFound(err) {
			return nil, newError(ErrTransactionNotFound, reference, nil)
		}
		return nil, storageError(err, "failed to lock transaction %s", reference)
	}
	return &txn, nil
}

// SaveTransaction writes the status and metadata of an existing transaction
func (db *DB) SaveTransaction(ctx context.Context, txn *Transaction) error {
	if err := db.conn(ctx).Save(txn).Error; err != nil {
		return storageError(err, "failed to save transaction %s", txn.PaymentReference)
	}
	return nil
}
