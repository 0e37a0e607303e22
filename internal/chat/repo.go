package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// InsertThreadIfAbsent inserts t unless a thread for the same pair exists.
// It reports whether this call created the row.
func (r *Repo) InsertThreadIfAbsent(ctx context.Context, t *Thread) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(t)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repo) GetThreadByPair(ctx context.Context, p Pair) (*Thread, error) {
	var t Thread
	if err := r.db.WithContext(ctx).
		Where("user_low = ? AND user_high = ?", p.Low, p.High).
		First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repo) GetThreadByID(ctx context.Context, id string) (*Thread, error) {
	var t Thread
	if err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// ListThreadsPage returns up to limit threads of userID with id > afterID, ASC by id.
func (r *Repo) ListThreadsPage(ctx context.Context, userID string, afterID string, limit int) ([]Thread, error) {
	q := r.db.WithContext(ctx).
		Where("(user_low = ? OR user_high = ?)", userID, userID).
		Order("id ASC").
		Limit(limit)
	if afterID != "" {
		q = q.Where("id > ?", afterID)
	}

	var threads []Thread
	if err := q.Find(&threads).Error; err != nil {
		return nil, err
	}
	return threads, nil
}

// AppendMessage runs build against the row-locked thread and persists the
// message it returns, all in one transaction. Nothing is written when build
// fails.
func (r *Repo) AppendMessage(ctx context.Context, chatID string, build func(t *Thread) (*Message, error)) (*Thread, *Message, error) {
	var (
		thread Thread
		msg    *Message
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", chatID).
			First(&thread).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrThreadNotFound
			}
			return fmt.Errorf("lock thread: %w", err)
		}

		m, err := build(&thread)
		if err != nil {
			return err
		}
		if err := tx.Create(m).Error; err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		if err := tx.Model(&Thread{}).
			Where("id = ?", thread.ID).
			Updates(map[string]any{
				"last_message_id": m.ID,
				"last_message_at": m.CreatedAt,
			}).Error; err != nil {
			return fmt.Errorf("touch thread: %w", err)
		}
		thread.LastMessageID = &m.ID
		thread.LastMessageAt = &m.CreatedAt
		msg = m
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &thread, msg, nil
}

// Cursor marks a position in a thread's (created_at, id) order.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// ListMessages returns messages in ASC (created_at, id) order, strictly after
// since when given. limit <= 0 means no limit.
func (r *Repo) ListMessages(ctx context.Context, chatID string, since *Cursor, limit int) ([]Message, error) {
	q := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC").
		Order("id ASC")
	if since != nil {
		q = q.Where("(created_at > ? OR (created_at = ? AND id > ?))", since.CreatedAt, since.CreatedAt, since.ID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var msgs []Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}
