package discovery

import (
	"sync"

	"github.com/gagliardetto/solana-go"
)

const (
	sigSetCap  = 10_000
	sigSetTrim = 5_000
)

// sigSet is a bounded seen-signature set. Insertion order is tracked so
// that on overflow the oldest half is dropped and the most recent 5,000
// signatures are retained.
type sigSet struct {
	mu    sync.Mutex
	seen  map[solana.Signature]struct{}
	order []solana.Signature
}

func newSigSet() *sigSet {
	return &sigSet{
		seen: make(map[solana.Signature]struct{}, sigSetCap),
	}
}

// Add inserts a signature, returning false when it was already present.
func (s *sigSet) Add(sig solana.Signature) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[sig]; ok {
		return false
	}
	s.seen[sig] = struct{}{}
	s.order = append(s.order, sig)

	if len(s.order) > sigSetCap {
		cut := len(s.order) - sigSetTrim
		for _, old := range s.order[:cut] {
			delete(s.seen, old)
		}
		s.order = append([]solana.Signature(nil), s.order[cut:]...)
	}
	return true
}

// Len returns the number of retained signatures.
func (s *sigSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
