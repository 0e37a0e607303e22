package chat

import "errors"

var (
	ErrInvalidParticipants = errors.New("chat: a thread needs two distinct users")
	ErrThreadNotFound      = errors.New("chat: thread not found")
	ErrNotAParticipant     = errors.New("chat: sender is not a participant of the thread")
	ErrEmptyContent        = errors.New("chat: message content is empty")
	ErrContentTooLong      = errors.New("chat: message content is too long")
)
