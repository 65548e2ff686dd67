// Package undo keeps a bounded log of formula operations and reverses them.
// There is no redo.
package undo

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/formulary/internal/apperr"
	"github.com/starford/formulary/internal/models"
)

// DefaultLimit is the number of operations kept when no limit is given.
const DefaultLimit = 50

// Reverser applies the structural inverse of an operation.
type Reverser interface {
	// ReverseInsert removes the inserted node.
	ReverseInsert(op models.Operation) error
	// ReverseDelete re-inserts op.Before.
	ReverseDelete(op models.Operation) error
	// ReverseUpdate restores op.Before.
	ReverseUpdate(op models.Operation) error
}

// Option configures a Stack.
type Option func(*Stack)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Stack) {
		if l != nil {
			s.logger = l
		}
	}
}

// Stack is a ring of the most recent operations. It is not safe for
// concurrent use.
type Stack struct {
	buf    []models.Operation
	start  int
	n      int
	logger *slog.Logger
}

// New creates a Stack keeping at most limit operations.
func New(limit int, opts ...Option) *Stack {
	if limit <= 0 {
		limit = DefaultLimit
	}
	s := &Stack{buf: make([]models.Operation, limit), logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Record appends op, evicting the oldest entry when the ring is full.
func (s *Stack) Record(op models.Operation) {
	if s.n == len(s.buf) {
		s.buf[s.start] = op
		s.start = (s.start + 1) % len(s.buf)
		return
	}
	s.buf[(s.start+s.n)%len(s.buf)] = op
	s.n++
}

// Undo pops the most recent operation and reverses it through r. It reports
// false when there is nothing to undo. A reversal that no longer applies
// because the node is already gone or already back is a silent no-op.
func (s *Stack) Undo(r Reverser) (models.Operation, bool, error) {
	if s.n == 0 {
		return models.Operation{}, false, nil
	}
	i := (s.start + s.n - 1) % len(s.buf)
	op := s.buf[i]
	s.buf[i] = models.Operation{}
	s.n--

	var err error
	switch op.Kind {
	case models.OpInsert:
		err = r.ReverseInsert(op)
	case models.OpDelete:
		err = r.ReverseDelete(op)
	case models.OpUpdate:
		err = r.ReverseUpdate(op)
	default:
		err = fmt.Errorf("undo: unknown operation kind %q", op.Kind)
	}
	if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrAlreadyExists) {
		s.logger.Debug("undo: operation no longer applies",
			slog.String("kind", string(op.Kind)),
			slog.String("id", op.NodeID),
			slog.String("reason", err.Error()),
		)
		err = nil
	}
	return op, true, err
}

// CanUndo reports whether an operation is available.
func (s *Stack) CanUndo() bool {
	return s.n > 0
}

// CanRedo always reports false.
func (s *Stack) CanRedo() bool {
	return false
}

// Len returns the number of recorded operations.
func (s *Stack) Len() int {
	return s.n
}

// Limit returns the capacity of the ring.
func (s *Stack) Limit() int {
	return len(s.buf)
}

// Clear drops every recorded operation.
func (s *Stack) Clear() {
	clear(s.buf)
	s.start, s.n = 0, 0
}

// Operations returns the recorded operations, oldest first.
func (s *Stack) Operations() []models.Operation {
	out := make([]models.Operation, 0, s.n)
	for i := range s.n {
		out = append(out, s.buf[(s.start+i)%len(s.buf)])
	}
	return out
}
