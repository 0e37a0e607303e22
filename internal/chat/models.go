package chat

import (
	"encoding/json"
	"time"
)

// Thread is a direct conversation between exactly two users. The pair is
// stored canonicalized so the unique index covers both orderings.
type Thread struct {
	ID            string     `gorm:"type:varchar(26);primaryKey"`
	UserLow       string     `gorm:"type:varchar(64);not null;uniqueIndex:uniq_chat_thread_pair,priority:1"`
	UserHigh      string     `gorm:"type:varchar(64);not null;uniqueIndex:uniq_chat_thread_pair,priority:2;index:idx_chat_thread_user_high"`
	LastMessageID *string    `gorm:"type:varchar(26)"`
	LastMessageAt *time.Time
	CreatedAt     time.Time
}

func (Thread) TableName() string { return "chat_threads" }

func (t Thread) Participants() [2]string { return [2]string{t.UserLow, t.UserHigh} }

func (t Thread) Has(userID string) bool {
	return userID != "" && (userID == t.UserLow || userID == t.UserHigh)
}

// Counterpart returns the participant that is not userID.
func (t Thread) Counterpart(userID string) (string, bool) {
	switch userID {
	case t.UserLow:
		return t.UserHigh, true
	case t.UserHigh:
		return t.UserLow, true
	}
	return "", false
}

type threadJSON struct {
	ID            string     `json:"id"`
	Participants  [2]string  `json:"participants"`
	CreatedAt     time.Time  `json:"created_at"`
	LastMessageID *string    `json:"last_message_id,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

func (t Thread) MarshalJSON() ([]byte, error) {
	return json.Marshal(threadJSON{
		ID:            t.ID,
		Participants:  t.Participants(),
		CreatedAt:     t.CreatedAt,
		LastMessageID: t.LastMessageID,
		LastMessageAt: t.LastMessageAt,
	})
}

func (t *Thread) UnmarshalJSON(b []byte) error {
	var v threadJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*t = Thread{
		ID:            v.ID,
		UserLow:       v.Participants[0],
		UserHigh:      v.Participants[1],
		CreatedAt:     v.CreatedAt,
		LastMessageID: v.LastMessageID,
		LastMessageAt: v.LastMessageAt,
	}
	return nil
}

// Message is immutable once stored. CreatedAt always equals the timestamp
// encoded in ID, so (CreatedAt, ID) and ID sort the same way.
type Message struct {
	ID        string    `gorm:"type:varchar(26);primaryKey;index:idx_chat_msg_order,priority:3" json:"id"`
	ChatID    string    `gorm:"type:varchar(26);not null;index:idx_chat_msg_order,priority:1" json:"chat_id"`
	SenderID  string    `gorm:"type:varchar(64);not null" json:"sender_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"not null;index:idx_chat_msg_order,priority:2" json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }
