package common

import (
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

func TestIDGenerator_StrictlyIncreasingWithFrozenClock(t *testing.T) {
	frozen := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	g := NewIDGenerator(func() time.Time { return frozen })

	var prev ulid.ULID
	for i := 0; i < 1000; i++ {
		id, err := g.Next(ulid.ULID{})
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if id.Compare(prev) <= 0 {
			t.Fatalf("id %d not increasing: %s <= %s", i, id, prev)
		}
		if got := TimeOf(id); !got.Equal(frozen) {
			t.Fatalf("unexpected timestamp %s", got)
		}
		prev = id
	}
}

func TestIDGenerator_ClockGoingBackwards(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	g := NewIDGenerator(func() time.Time { return now })

	first, err := g.Next(ulid.ULID{})
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	now = now.Add(-time.Hour)
	second, err := g.Next(ulid.ULID{})
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if second.Compare(first) <= 0 {
		t.Fatalf("expected %s > %s", second, first)
	}
	if TimeOf(second).Before(TimeOf(first)) {
		t.Fatalf("timestamp went backwards")
	}
}

func TestIDGenerator_RespectsFloor(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	g := NewIDGenerator(func() time.Time { return now })

	floor := ulid.MustNew(ulid.Timestamp(now.Add(time.Minute)), ulid.DefaultEntropy())
	id, err := g.Next(floor)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if id.Compare(floor) <= 0 {
		t.Fatalf("expected %s > floor %s", id, floor)
	}
}

func TestSuccessor_CarriesIntoTimestamp(t *testing.T) {
	var u ulid.ULID
	if err := u.SetTime(42); err != nil {
		t.Fatalf("set time: %v", err)
	}
	for i := 6; i < len(u); i++ {
		u[i] = 0xff
	}
	next, err := successor(u)
	if err != nil {
		t.Fatalf("successor: %v", err)
	}
	if next.Time() != 43 {
		t.Fatalf("expected carry into time, got %d", next.Time())
	}
	if next.Compare(u) <= 0 {
		t.Fatalf("successor not greater")
	}
}

func TestIDGenerator_ConcurrentUnique(t *testing.T) {
	g := NewIDGenerator(nil)
	const n = 64
	ids := make(chan ulid.ULID, n*50)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id, err := g.Next(ulid.ULID{})
				if err != nil {
					t.Errorf("next: %v", err)
					return
				}
				ids <- id
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[ulid.ULID]struct{})
	for id := range ids {
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}
