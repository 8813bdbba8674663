package spectrum

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultSmoothing is the weight given to the newest vector.
const DefaultSmoothing = 0.3

var (
	ErrLengthMismatch = errors.New("spectrum vector length mismatch")
	ErrBinOutOfRange  = errors.New("spectrum bin out of range")
)

// Store holds the single published vector. The capture worker is the only
// writer; any number of goroutines may read.
type Store struct {
	alpha float64

	mu      sync.RWMutex
	values  Vector
	updated time.Time
	updates uint64
}

// NewStore returns a zeroed store of bins values. alpha outside (0,1] falls
// back to DefaultSmoothing.
func NewStore(bins int, alpha float64) *Store {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultSmoothing
	}
	return &Store{
		alpha:  alpha,
		values: make(Vector, bins),
	}
}

// Alpha returns the smoothing weight of the newest vector.
func (s *Store) Alpha() float64 {
	return s.alpha
}

// Len returns the number of bins.
func (s *Store) Len() int {
	return len(s.values)
}

// Publish merges v into the stored vector. The first non-zero publish
// replaces the zero vector directly; later ones are smoothed as
// alpha*v + (1-alpha)*previous.
func (s *Store) Publish(v Vector) error {
	if len(v) != len(s.values) {
		return fmt.Errorf("%w: got %d bins, want %d", ErrLengthMismatch, len(v), len(s.values))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.values.IsZero() {
		copy(s.values, v)
	} else {
		for i := range s.values {
			s.values[i] = s.alpha*v[i] + (1-s.alpha)*s.values[i]
		}
	}

	s.updated = time.Now()
	s.updates++
	return nil
}

// Snapshot returns a copy of the current vector.
func (s *Store) Snapshot() Vector {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values.Clone()
}

// SnapshotAt returns a copy of the current vector with its update time.
func (s *Store) SnapshotAt() (Vector, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values.Clone(), s.updated
}

// Bin returns a single bin value.
func (s *Store) Bin(i int) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i < 0 || i >= len(s.values) {
		return 0, fmt.Errorf("%w: %d not in [0,%d)", ErrBinOutOfRange, i, len(s.values))
	}
	return s.values[i], nil
}

// Updates returns how many vectors have been published.
func (s *Store) Updates() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updates
}

// Reset zeroes the vector so the next publish is taken as is.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.values {
		s.values[i] = 0
	}
	s.updated = time.Time{}
}
