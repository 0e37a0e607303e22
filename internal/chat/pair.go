package chat

import "strings"

// Pair is an unordered user pair normalized so that Low < High.
type Pair struct {
	Low  string
	High string
}

func NewPair(a, b string) (Pair, error) {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" || a == b {
		return Pair{}, ErrInvalidParticipants
	}
	if b < a {
		a, b = b, a
	}
	return Pair{Low: a, High: b}, nil
}

func (p Pair) Key() string { return p.Low + ":" + p.High }
