package common

import (
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDGenerator issues ULIDs that are strictly increasing for the lifetime of
// the process, even when the wall clock stalls or steps backwards.
type IDGenerator struct {
	mu      sync.Mutex
	now     func() time.Time
	entropy *ulid.MonotonicEntropy
	last    ulid.ULID
}

func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{
		now:     now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

var defaultIDs = NewIDGenerator(nil)

func NewULID() (string, error) {
	id, err := defaultIDs.Next(ulid.ULID{})
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Next returns an id greater than every id issued before and greater than floor.
// Pass the zero ULID when there is no external floor.
func (g *IDGenerator) Next(floor ulid.ULID) (ulid.ULID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	lower := g.last
	if floor.Compare(lower) > 0 {
		lower = floor
	}

	ms := ulid.Timestamp(g.now())
	if t := lower.Time(); t > ms {
		ms = t
	}

	id, err := ulid.New(ms, g.entropy)
	if err != nil && !errors.Is(err, ulid.ErrMonotonicOverflow) {
		return ulid.ULID{}, err
	}
	if err != nil || id.Compare(lower) <= 0 {
		id, err = successor(lower)
		if err != nil {
			return ulid.ULID{}, err
		}
	}

	g.last = id
	return id, nil
}

// successor increments the 80-bit entropy, carrying into the timestamp.
func successor(u ulid.ULID) (ulid.ULID, error) {
	next := u
	for i := len(next) - 1; i >= 6; i-- {
		next[i]++
		if next[i] != 0 {
			return next, nil
		}
	}
	if err := next.SetTime(u.Time() + 1); err != nil {
		return ulid.ULID{}, err
	}
	return next, nil
}

// TimeOf returns the millisecond timestamp encoded in id, in UTC.
func TimeOf(id ulid.ULID) time.Time {
	return ulid.Time(id.Time()).UTC()
}
