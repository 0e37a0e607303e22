package chat

import (
	"github.com/suPer8Hu/gopherchat/internal/common"
	"go.uber.org/zap"
)

// Notifier receives every successfully persisted message. Implementations
// must not block: Forward is called on the append path after commit.
type Notifier interface {
	Forward(t Thread, m Message)
}

type Service struct {
	repo             *Repo
	notifier         Notifier
	log              *zap.Logger
	ids              *common.IDGenerator
	pairLocks        *keyedMutex
	threadLocks      *keyedMutex
	maxContentLength int
	threadPageSize   int
}

const (
	defaultMaxContentLength = 4000
	defaultThreadPageSize   = 100
	maxHistoryLimit         = 500
)

func NewService(repo *Repo, notifier Notifier, log *zap.Logger, maxContentLength int) *Service {
	if maxContentLength <= 0 {
		maxContentLength = defaultMaxContentLength
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:             repo,
		notifier:         notifier,
		log:              log.Named("chat"),
		ids:              common.NewIDGenerator(nil),
		pairLocks:        newKeyedMutex(),
		threadLocks:      newKeyedMutex(),
		maxContentLength: maxContentLength,
		threadPageSize:   defaultThreadPageSize,
	}
}
