package arr

import (
	"context"
	"fmt"
	"log/slog"
)

// Specialization is one fast path of an operation: Impl may only run when
// Guard accepts the arguments.
type Specialization[A, R any] struct {
	Name  string
	Guard func(A) bool
	Impl  func(context.Context, A) (R, error)
}

const (
	uninitialized = -1
	generic       = -2
)

// Specializer is the per-site state of a self-specializing operation.
//
// The first execution picks the first specialization whose guard accepts,
// in declaration order. When the active guard later rejects, only the
// specializations declared after it are considered, and when none accepts
// the site falls to the generic implementation for good. The state
// therefore only ever moves forward.
type Specializer[A, R any] struct {
	site     string
	specs    []Specialization[A, R]
	generic  func(context.Context, A) (R, error)
	state    int
	rewrites int
}

// NewSpecializer creates a specializer for one operation site. Specs are
// ordered narrowest first.
func NewSpecializer[A, R any](site string, generic func(context.Context, A) (R, error), specs ...Specialization[A, R]) *Specializer[A, R] {
	return &Specializer[A, R]{
		site:    site,
		specs:   specs,
		generic: generic,
		state:   uninitialized,
	}
}

// Execute runs the operation, rewriting the site as needed.
func (s *Specializer[A, R]) Execute(ctx context.Context, args A) (R, error) {
	if !specializationEnabled(ctx) {
		return s.runGeneric(ctx, args)
	}
	if s.state >= 0 {
		if spec := s.specs[s.state]; spec.Guard(args) {
			return spec.Impl(ctx, args)
		}
	}
	if s.state != generic {
		start := 0
		if s.state >= 0 {
			start = s.state + 1
		}
		for i := start; i < len(s.specs); i++ {
			if s.specs[i].Guard(args) {
				s.rewrite(i)
				return s.specs[i].Impl(ctx, args)
			}
		}
		s.rewrite(generic)
	}
	return s.runGeneric(ctx, args)
}

func (s *Specializer[A, R]) runGeneric(ctx context.Context, args A) (R, error) {
	if s.generic == nil {
		var zero R
		return zero, &InternalError{Message: fmt.Sprintf("%s: no generic implementation", s.site)}
	}
	return s.generic(ctx, args)
}

func (s *Specializer[A, R]) rewrite(to int) {
	from := s.State()
	s.state = to
	s.rewrites++
	slog.Debug("rewrite", "site", s.site, "from", from, "to", s.State(), "rewrites", s.rewrites)
}

// State names the active implementation.
func (s *Specializer[A, R]) State() string {
	switch s.state {
	case uninitialized:
		return "uninitialized"
	case generic:
		return "generic"
	default:
		return s.specs[s.state].Name
	}
}

// IsGeneric reports whether the site has given up on specialization.
func (s *Specializer[A, R]) IsGeneric() bool { return s.state == generic }

// Rewrites counts state transitions so far.
func (s *Specializer[A, R]) Rewrites() int { return s.rewrites }
