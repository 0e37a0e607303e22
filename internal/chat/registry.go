package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/suPer8Hu/gopherchat/internal/common"
	"github.com/suPer8Hu/gopherchat/internal/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GetOrCreateThread returns the thread for the unordered pair {userA, userB},
// creating it on first contact. created is false when the thread existed or
// a concurrent caller won the insert.
func (s *Service) GetOrCreateThread(ctx context.Context, userA, userB string) (t *Thread, created bool, err error) {
	pair, err := NewPair(userA, userB)
	if err != nil {
		return nil, false, err
	}

	unlock := s.pairLocks.Lock(pair.Key())
	defer unlock()

	existing, err := s.repo.GetThreadByPair(ctx, pair)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("find thread: %w", err)
	}

	id, err := s.ids.Next(ulid.ULID{})
	if err != nil {
		return nil, false, err
	}
	thread := &Thread{
		ID:        id.String(),
		UserLow:   pair.Low,
		UserHigh:  pair.High,
		CreatedAt: common.TimeOf(id),
	}

	inserted, insertErr := s.repo.InsertThreadIfAbsent(ctx, thread)
	if insertErr == nil && inserted {
		metrics.ThreadsCreated.Inc()
		s.log.Info("thread created",
			zap.String("chat_id", thread.ID),
			zap.String("user_low", pair.Low),
			zap.String("user_high", pair.High),
		)
		return thread, true, nil
	}

	// lost the race (or the insert failed): whoever won owns the pair
	winner, getErr := s.repo.GetThreadByPair(ctx, pair)
	if getErr == nil {
		return winner, false, nil
	}
	if insertErr != nil {
		return nil, false, fmt.Errorf("insert thread: %w", insertErr)
	}
	return nil, false, fmt.Errorf("find thread after conflict: %w", getErr)
}

// ListThreadsFor lazily pages through every thread userID takes part in,
// ordered by thread id. Each range over the result starts from the top.
func (s *Service) ListThreadsFor(ctx context.Context, userID string) iter.Seq2[Thread, error] {
	pageSize := s.threadPageSize
	return func(yield func(Thread, error) bool) {
		if userID == "" {
			return
		}
		after := ""
		for {
			page, err := s.repo.ListThreadsPage(ctx, userID, after, pageSize)
			if err != nil {
				yield(Thread{}, fmt.Errorf("list threads: %w", err))
				return
			}
			for _, t := range page {
				if !yield(t, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			after = page[len(page)-1].ID
		}
	}
}

// GetThread returns the thread when userID participates in it.
func (s *Service) GetThread(ctx context.Context, userID, chatID string) (*Thread, error) {
	userID = strings.TrimSpace(userID)
	t, err := s.repo.GetThreadByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrThreadNotFound
		}
		return nil, err
	}
	if !t.Has(userID) {
		// hide existence
		return nil, ErrThreadNotFound
	}
	return t, nil
}
