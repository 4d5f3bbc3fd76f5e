package paidquiz

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(DriverSQLite, filepath.Join(t.TempDir(), "paidquiz.db"), 1, nil)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestFastTier(t *testing.T) *BadgerTier {
	t.Helper()
	fast, err := OpenBadgerTier("", true, nil)
	require.NoError(t, err)
	t.Cleanup(func() { fast.Close() })
	return fast
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 10, 14, 5, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sampleQuestions builds n valid questions; question i is answered by
// OptionLabels[i%4]
func sampleQuestions(category string, n int) []Question {
	questions := make([]Question, n)
	for i := range questions {
		questions[i] = Question{
			Prompt:        fmt.Sprintf("%s question %d?", category, i+1),
			Options:       []string{"first", "second", "third", "fourth"},
			CorrectOption: OptionLabels[i%len(OptionLabels)],
			Explanation:   fmt.Sprintf("because of fact %d", i+1),
			Topic:         category,
		}
	}
	return questions
}

func correctAnswer(i int) string {
	return OptionLabels[i%len(OptionLabels)]
}

func wrongAnswer(i int) string {
	return OptionLabels[(i+1)%len(OptionLabels)]
}

func questionsJSON(category string, n int) string {
	return encodeQuestions(sampleQuestions(category, n))
}

func encodeQuestions(questions []Question) string {
	raw, err := json.Marshal(map[string]any{"questions": questions})
	if err != nil {
		panic(err)
	}
	return string(raw)
}

type fakeGenerator struct {
	mu       sync.Mutex
	calls    int
	requests []GenerationRequest
	text     string
	extra    int
	err      error
}

func (f *fakeGenerator) Generate(_ context.Context, req GenerationRequest) (*Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	text := f.text
	if text == "" {
		text = questionsJSON(req.Category, req.Count+f.extra)
	}
	return &Generation{Text: text, Model: "gpt-4o-mini", TokensUsed: 1000}, nil
}

func (f *fakeGenerator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func createTestUser(t *testing.T, db *DB, id string, balance string) *User {
	t.Helper()
	user := &User{ID: id, Username: "user-" + id, Balance: decimal.RequireFromString(balance)}
	require.NoError(t, db.CreateUser(context.Background(), user))
	return user
}

func createCompletedPayment(t *testing.T, db *DB, userID, reference string) *Transaction {
	t.Helper()
	txn := &Transaction{
		ID:               "txn-" + reference,
		UserID:           userID,
		Amount:           decimal.RequireFromString("1.00"),
		Type:             TransactionCredit,
		Status:           TransactionCompleted,
		PaymentMethod:    "card",
		PaymentReference: reference,
	}
	require.NoError(t, db.CreateTransaction(context.Background(), txn))
	return txn
}

func userBalance(t *testing.T, db *DB, userID string) decimal.Decimal {
	t.Helper()
	user, err := db.GetUser(context.Background(), userID)
	require.NoError(t, err)
	return user.Balance
}

func countTransactions(t *testing.T, db *DB, userID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.db.Model(&Transaction{}).Where("user_id = ?", userID).Count(&n).Error)
	return n
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(expected).Equal(actual), "expected %s, got %s", expected, actual.String())
}

// failingStore wraps a Store and fails selected operations, including inside
// transactions
type failingStore struct {
	Store
	failCreateTransaction bool
	failLatest            bool
	failSave              bool
}

var errInjected = fmt.Errorf("injected failure")

func (f *failingStore) RunInTransaction(ctx context.Context, fn func(tx Store) error) error {
	return f.Store.RunInTransaction(ctx, func(tx Store) error {
		return fn(&failingStore{
			Store:                 tx,
			failCreateTransaction: f.failCreateTransaction,
			failLatest:            f.failLatest,
			failSave:              f.failSave,
		})
	})
}

func (f *failingStore) CreateTransaction(ctx context.Context, txn *Transaction) error {
	if f.failCreateTransaction {
		return storageError(errInjected, "create transaction")
	}
	return f.Store.CreateTransaction(ctx, txn)
}

func (f *failingStore) LatestActiveQuestionSet(ctx context.Context, category string, difficulty Difficulty, now time.Time) (*QuestionSet, error) {
	if f.failLatest {
		return nil, storageError(errInjected, "latest")
	}
	return f.Store.LatestActiveQuestionSet(ctx, category, difficulty, now)
}

func (f *failingStore) SaveQuestionSet(ctx context.Context, set *QuestionSet) error {
	if f.failSave {
		return storageError(errInjected, "save")
	}
	return f.Store.SaveQuestionSet(ctx, set)
}
