package chat

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/suPer8Hu/gopherchat/internal/common"
	"github.com/suPer8Hu/gopherchat/internal/metrics"
	"go.uber.org/zap"
)

// Append persists a message from senderID into chatID and hands it to the
// notifier once committed. Validation failures never write anything.
func (s *Service) Append(ctx context.Context, chatID, senderID, content string) (*Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > s.maxContentLength {
		return nil, ErrContentTooLong
	}
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil, ErrThreadNotFound
	}

	senderID = strings.TrimSpace(senderID)

	unlock := s.threadLocks.Lock(chatID)
	defer unlock()

	thread, msg, err := s.repo.AppendMessage(ctx, chatID, func(t *Thread) (*Message, error) {
		if !t.Has(senderID) {
			return nil, ErrNotAParticipant
		}

		var floor ulid.ULID
		if t.LastMessageID != nil {
			if last, err := ulid.ParseStrict(*t.LastMessageID); err == nil {
				floor = last
			}
		}
		id, err := s.ids.Next(floor)
		if err != nil {
			return nil, err
		}
		return &Message{
			ID:        id.String(),
			ChatID:    t.ID,
			SenderID:  senderID,
			Content:   content,
			CreatedAt: common.TimeOf(id),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	metrics.MessagesAppended.Inc()
	if s.notifier != nil {
		s.notifier.Forward(*thread, *msg)
	}
	return msg, nil
}

type HistoryQuery struct {
	// Since is a message id; only messages strictly after it are returned.
	// Anything that is not a message id reads from the start.
	Since string
	// Limit <= 0 returns everything after Since.
	Limit int
}

// History returns the messages of chatID in (created_at, id) order. An
// unknown or blank chatID yields an empty result, not an error.
func (s *Service) History(ctx context.Context, chatID string, q HistoryQuery) ([]Message, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return []Message{}, nil
	}

	var since *Cursor
	if id, err := ulid.ParseStrict(q.Since); err == nil {
		since = &Cursor{CreatedAt: common.TimeOf(id), ID: id.String()}
	}

	limit := q.Limit
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	msgs, err := s.repo.ListMessages(ctx, chatID, since, limit)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, nil
}

// HistoryFor is History as seen by callerID: threads the caller is not part
// of look exactly like unknown ones.
func (s *Service) HistoryFor(ctx context.Context, callerID, chatID string, q HistoryQuery) ([]Message, error) {
	if _, err := s.GetThread(ctx, callerID, strings.TrimSpace(chatID)); err != nil {
		if errors.Is(err, ErrThreadNotFound) {
			return []Message{}, nil
		}
		s.log.Error("history thread lookup failed", zap.String("chat_id", chatID), zap.Error(err))
		return nil, err
	}
	return s.History(ctx, chatID, q)
}

// ValidSince returns since when it is a usable history cursor, "" otherwise.
func ValidSince(since string) string {
	if _, err := ulid.ParseStrict(since); err != nil {
		return ""
	}
	return since
}
