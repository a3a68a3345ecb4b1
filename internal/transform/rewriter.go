// Package transform rewrites unittest-style test modules into pytest
// style. Every rewrite is a function from an immutable tree to a new tree;
// rewrites that cannot prove a change safe decline and return their input.
package transform

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/QTest-hq/pytestify/internal/parser"
)

// ErrInternal wraps failures a rewrite absorbed, surfaced only in strict
// mode.
var ErrInternal = errors.New("internal transformation error")

// DefaultMaxParamValues caps how many values a materialized range may
// produce before parametrization declines.
const DefaultMaxParamValues = 20

// Options selects which passes run.
type Options struct {
	Assertions           bool
	Fixtures             bool
	Decorators           bool
	Subtests             bool
	Parametrize          bool
	RemoveUnittestImport bool
	RemoveMainBlock      bool
	MaxParamValues       int
	// Strict surfaces absorbed failures as errors instead of logging them.
	Strict bool
}

// DefaultOptions enables every pass.
func DefaultOptions() Options {
	return Options{
		Assertions:           true,
		Fixtures:             true,
		Decorators:           true,
		Subtests:             true,
		Parametrize:          true,
		RemoveUnittestImport: true,
		RemoveMainBlock:      true,
		MaxParamValues:       DefaultMaxParamValues,
	}
}

// Rewriter holds the state shared by the rewrite passes over one file.
// It is not safe for concurrent use; create one per file.
type Rewriter struct {
	opts   Options
	parser *parser.Parser

	mu       sync.Mutex
	failures []error
}

// NewRewriter creates a rewriter
func NewRewriter(opts Options) *Rewriter {
	if opts.MaxParamValues <= 0 {
		opts.MaxParamValues = DefaultMaxParamValues
	}
	return &Rewriter{opts: opts, parser: parser.NewParser()}
}

// Failures returns the failures absorbed so far.
func (r *Rewriter) Failures() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.failures...)
}

// Err returns the absorbed failures as one error in strict mode, nil
// otherwise.
func (r *Rewriter) Err() error {
	if !r.opts.Strict {
		return nil
	}
	failures := r.Failures()
	if len(failures) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInternal, errors.Join(failures...))
}

func (r *Rewriter) absorb(op string, err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	r.failures = append(r.failures, fmt.Errorf("%s: %w", op, err))
	r.mu.Unlock()
	log.Debug().Err(err).Str("rewrite", op).Msg("absorbed rewrite failure")
}

// guard runs fn, turning a panic into an absorbed failure. It reports
// whether fn completed.
func (r *Rewriter) guard(op string, fn func()) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.absorb(op, fmt.Errorf("panic: %v", rec))
			ok = false
		}
	}()
	fn()
	return true
}

func decline(op, reason string) {
	log.Debug().Str("rewrite", op).Str("reason", reason).Msg("declined")
}
