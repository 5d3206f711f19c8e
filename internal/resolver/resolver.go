// Package resolver looks up an external resource by trying a list of
// candidate names in order and keeping the first one that works.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ErrResourceUnavailable is matched by every exhaustion error.
var ErrResourceUnavailable = errors.New("resource unavailable")

// UnavailableError is returned when no candidate resolved. Individual
// failure causes are logged, not returned.
type UnavailableError struct {
	Attempts int
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("resource unavailable after %d attempt(s)", e.Attempts)
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrResourceUnavailable
}

// ResolveFunc turns a candidate name into a usable handle.
type ResolveFunc[T any] func(ctx context.Context, candidate string) (T, error)

// Observer is notified after every attempt; err is nil on success.
type Observer func(candidate string, err error)

// Options tune a resolution run. The zero value is usable.
type Options struct {
	Logger log.FieldLogger
	// Redact rewrites a candidate before it is logged or observed.
	Redact    func(candidate string) string
	OnAttempt Observer
}

// Resolve tries candidates in order and returns the first handle that
// resolves together with the candidate that produced it. Blank and repeated
// candidates are skipped so no name is attempted twice.
func Resolve[T any](ctx context.Context, candidates []string, fn ResolveFunc[T], opts Options) (T, string, error) {
	var zero T
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	redact := opts.Redact
	if redact == nil {
		redact = func(s string) string { return s }
	}

	seen := make(map[string]struct{}, len(candidates))
	attempts := 0
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if _, dup := seen[candidate]; dup {
			continue
		}
		seen[candidate] = struct{}{}

		if err := ctx.Err(); err != nil {
			return zero, "", err
		}

		attempts++
		handle, err := fn(ctx, candidate)
		if opts.OnAttempt != nil {
			opts.OnAttempt(redact(candidate), err)
		}
		if err == nil {
			if attempts > 1 {
				logger.WithFields(log.Fields{
					"candidate": redact(candidate),
					"attempt":   attempts,
				}).Info("resolved resource using fallback candidate")
			}
			return handle, candidate, nil
		}
		logger.WithError(err).WithFields(log.Fields{
			"candidate": redact(candidate),
			"attempt":   attempts,
		}).Warn("resource lookup failed")
	}

	return zero, "", &UnavailableError{Attempts: attempts}
}

// Resolver caches the handle produced by Resolve until it is invalidated.
// It is safe for concurrent use.
type Resolver[T any] struct {
	mu         sync.Mutex
	candidates []string
	fn         ResolveFunc[T]
	opts       Options

	resolved bool
	handle   T
	source   string
}

// New constructs a Resolver over a fixed candidate list.
func New[T any](candidates []string, fn ResolveFunc[T], opts Options) *Resolver[T] {
	return &Resolver[T]{
		candidates: append([]string(nil), candidates...),
		fn:         fn,
		opts:       opts,
	}
}

// Get returns the cached handle, resolving it on first use.
func (r *Resolver[T]) Get(ctx context.Context) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resolved {
		return r.handle, nil
	}
	handle, source, err := Resolve(ctx, r.candidates, r.fn, r.opts)
	if err != nil {
		var zero T
		return zero, err
	}
	r.handle = handle
	r.source = source
	r.resolved = true
	return handle, nil
}

// Source reports which candidate produced the cached handle.
func (r *Resolver[T]) Source() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.source, r.resolved
}

// Invalidate drops the cached handle; the next Get resolves again. The old
// handle is returned so the caller can release it.
func (r *Resolver[T]) Invalidate() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, had := r.handle, r.resolved
	var zero T
	r.handle = zero
	r.source = ""
	r.resolved = false
	return old, had
}
