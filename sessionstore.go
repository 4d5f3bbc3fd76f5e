package paidquiz

import (
	"context"
	"time"
)

// SessionResult is the scoring outcome of one completed session
type SessionResult struct {
	SessionID      string
	Score          int
	TotalQuestions int
	TimeCompleted  time.Time
}

// CreateSession persists a new session. A second session for the same
// payment reference is rejected as DUPLICATE_REFERENCE.
func (db *DB) CreateSession(ctx context.Context, session *Session) error {
	if err := db.conn(ctx).Create(session).Error; err != nil {
		if isUniqueViolation(err) {
			return newError(ErrDuplicateReference, session.PaymentReference, err)
		}
		return storageError(err, "failed to create session")
	}
	return nil
}

// GetSession retrieves a session by ID
func (db *DB) GetSession(ctx context.Context, id string) (*Session, error) {
	var session Session
	if err := db.conn(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		if isNotFound(err) {
			return nil, newError(ErrSessionNotFound, id, nil)
		}
		return nil, storageError(err, "failed to get session %s", id)
	}
	return &session, nil
}

// LockSession retrieves a session and locks its row for the rest of the
// transaction
func (db *DB) LockSession(ctx context.Context, id string) (*Session, error) {
	var session Session
	if err := db.forUpdate(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		if isNotFound(err) {
			return nil, newError(ErrSessionNotFound, id, nil)
		}
		return nil, storageError(err, "failed to lock session %s", id)
	}
	return &session, nil
}

// FindSessionByPaymentReference returns nil, nil when no session was
// started with the reference
func (db *DB) FindSessionByPaymentReference(ctx context.Context, reference string) (*Session, error) {
	var sessions []Session
	if err := db.conn(ctx).Where("payment_reference = ?", reference).Limit(1).Find(&sessions).Error; err != nil {
		return nil, storageError(err, "failed to look up session for %s", reference)
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return &sessions[0], nil
}

// SaveSession writes every field of an existing session
func (db *DB) SaveSession(ctx context.Context, session *Session) error {
	if err := db.conn(ctx).Save(session).Error; err != nil {
		return storageError(err, "failed to save session %s", session.ID)
	}
	return nil
}

// RecentSessionResults lists the user's sessions completed in [since, until),
// excluding excludeID
func (db *DB) RecentSessionResults(ctx context.Context, userID string, since, until time.Time, excludeID string) ([]SessionResult, error) {
	var sessions []Session
	err := db.conn(ctx).
		Select("id", "score", "total_questions", "time_completed").
		Where("user_id = ? AND status = ? AND id <> ?", userID, SessionCompleted, excludeID).
		Where("time_completed >= ? AND time_completed < ?", since.UTC(), until.UTC()).
		Order("time_completed").
		Find(&sessions).Error
	if err != nil {
		return nil, storageError(err, "failed to load recent sessions for %s", userID)
	}

	results := make([]SessionResult, 0, len(sessions))
	for _, s := range sessions {
		result := SessionResult{SessionID: s.ID, Score: s.Score, TotalQuestions: s.TotalQuestions}
		if s.TimeCompleted != nil {
			result.TimeCompleted = *s.TimeCompleted
		}
		results = append(results, result)
	}
	return results, nil
}

// AbandonSessionsStartedBefore moves active sessions started before cutoff
// to abandoned
func (db *DB) AbandonSessionsStartedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := db.conn(ctx).Model(&Session{}).
		Where("status = ? AND time_started < ?", SessionActive, cutoff.UTC()).
		Update("status", SessionAbandoned)
	if result.Error != nil {
		return 0, storageError(result.Error, "failed to abandon stale sessions")
	}
	return result.RowsAffected, nil
}
