package workflow

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/safar/warehouse-ops/internal/models"
)

var ErrSubmissionFailed = errors.New("external system rejected the order")

// Submitter hands one order to the external order system and reports how
// long the system took to process it.
type Submitter interface {
	Submit(ctx context.Context, o models.Order) (time.Duration, error)
}

// SimulatedSubmitter stands in for the external system. Each submission
// fails with probability failureRate and reports a processing time between
// one and three seconds without actually waiting.
type SimulatedSubmitter struct {
	mu          sync.Mutex
	rng         *rand.Rand
	failureRate float64
}

// NewSimulatedSubmitter seeds the outcome source with seed, or with the
// current time when seed is zero.
func NewSimulatedSubmitter(failureRate float64, seed int64) *SimulatedSubmitter {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimulatedSubmitter{
		rng:         rand.New(rand.NewSource(seed)),
		failureRate: failureRate,
	}
}

func (s *SimulatedSubmitter) Submit(ctx context.Context, o models.Order) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	failed := s.rng.Float64() < s.failureRate
	took := time.Duration((1 + s.rng.Float64()*2) * float64(time.Second))
	s.mu.Unlock()

	if failed {
		return took, fmt.Errorf("order %s: %w", o.OrderNumber, ErrSubmissionFailed)
	}
	return took, nil
}

// StaticSubmitter returns scripted outcomes. Failures maps an order number to
// the number of attempts that fail before one succeeds; a negative count
// fails every attempt.
type StaticSubmitter struct {
	Duration time.Duration
	Failures map[string]int

	mu    sync.Mutex
	calls []string
	seen  map[string]int
}

func (s *StaticSubmitter) Submit(ctx context.Context, o models.Order) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen == nil {
		s.seen = make(map[string]int)
	}
	s.calls = append(s.calls, o.OrderNumber)
	attempt := s.seen[o.OrderNumber]
	s.seen[o.OrderNumber]++

	n, ok := s.Failures[o.OrderNumber]
	if ok && (n < 0 || attempt < n) {
		return s.Duration, fmt.Errorf("order %s: %w", o.OrderNumber, ErrSubmissionFailed)
	}
	return s.Duration, nil
}

// Calls returns the order numbers submitted so far, in order.
func (s *StaticSubmitter) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}
