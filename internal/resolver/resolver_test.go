package resolver

import (
	"context"
	"errors"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lookupCall struct {
	candidate string
}

func fakeLookup(ok map[string]int, calls *[]lookupCall) ResolveFunc[int] {
	return func(_ context.Context, candidate string) (int, error) {
		*calls = append(*calls, lookupCall{candidate: candidate})
		if v, found := ok[candidate]; found {
			return v, nil
		}
		return 0, errors.New("no such name " + candidate)
	}
}

func TestResolve_FirstCandidateWins(t *testing.T) {
	logger, hook := test.NewNullLogger()
	var calls []lookupCall

	got, source, err := Resolve(context.Background(), []string{"a", "b"}, fakeLookup(map[string]int{"a": 1, "b": 2}, &calls), Options{Logger: logger})

	require.NoError(t, err)
	assert.Equal(t, 1, got)
	assert.Equal(t, "a", source)
	assert.Len(t, calls, 1)
	assert.Empty(t, hook.AllEntries())
}

func TestResolve_FallsBackInOrder(t *testing.T) {
	logger, hook := test.NewNullLogger()
	var calls []lookupCall

	got, source, err := Resolve(context.Background(), []string{"a", "b", "c", "d"}, fakeLookup(map[string]int{"c": 3, "d": 4}, &calls), Options{Logger: logger})

	require.NoError(t, err)
	assert.Equal(t, 3, got)
	assert.Equal(t, "c", source)
	assert.Equal(t, []lookupCall{{"a"}, {"b"}, {"c"}}, calls)

	warnings := 0
	for _, entry := range hook.AllEntries() {
		if entry.Level == log.WarnLevel {
			warnings++
		}
	}
	assert.Equal(t, 2, warnings)
}

func TestResolve_AllFail(t *testing.T) {
	logger, hook := test.NewNullLogger()
	var calls []lookupCall

	_, _, err := Resolve(context.Background(), []string{"a", "b"}, fakeLookup(nil, &calls), Options{Logger: logger})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResourceUnavailable)
	var unavailable *UnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, 2, unavailable.Attempts)
	assert.Len(t, hook.AllEntries(), 2)
}

func TestResolve_EachCandidateTriedOnce(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var calls []lookupCall

	_, _, err := Resolve(context.Background(), []string{"a", " ", "a", "b", "b"}, fakeLookup(nil, &calls), Options{Logger: logger})

	assert.ErrorIs(t, err, ErrResourceUnavailable)
	assert.Equal(t, []lookupCall{{"a"}, {"b"}}, calls)
}

func TestResolve_EmptyCandidates(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var calls []lookupCall

	_, _, err := Resolve(context.Background(), nil, fakeLookup(nil, &calls), Options{Logger: logger})

	assert.ErrorIs(t, err, ErrResourceUnavailable)
	assert.Empty(t, calls)
}

func TestResolve_StopsOnCancelledContext(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls []lookupCall

	_, _, err := Resolve(ctx, []string{"a"}, fakeLookup(map[string]int{"a": 1}, &calls), Options{Logger: logger})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, calls)
}

func TestResolve_RedactsAndObserves(t *testing.T) {
	logger, hook := test.NewNullLogger()
	var calls []lookupCall
	var observed []string

	_, _, err := Resolve(context.Background(), []string{"secret-a"}, fakeLookup(nil, &calls), Options{
		Logger:    logger,
		Redact:    func(string) string { return "redacted" },
		OnAttempt: func(candidate string, _ error) { observed = append(observed, candidate) },
	})

	assert.Error(t, err)
	assert.Equal(t, []string{"redacted"}, observed)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "redacted", hook.LastEntry().Data["candidate"])
}

func TestResolver_CachesUntilInvalidated(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var calls []lookupCall
	r := New([]string{"a", "b"}, fakeLookup(map[string]int{"b": 2}, &calls), Options{Logger: logger})

	first, err := r.Get(context.Background())
	require.NoError(t, err)
	second, err := r.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, first)
	assert.Equal(t, 2, second)
	assert.Len(t, calls, 2)
	source, ok := r.Source()
	assert.True(t, ok)
	assert.Equal(t, "b", source)

	old, had := r.Invalidate()
	assert.True(t, had)
	assert.Equal(t, 2, old)

	_, err = r.Get(context.Background())
	require.NoError(t, err)
	assert.Len(t, calls, 4)
}

func TestResolver_FailureIsNotCached(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var calls []lookupCall
	available := map[string]int{}
	r := New([]string{"a"}, fakeLookup(available, &calls), Options{Logger: logger})

	_, err := r.Get(context.Background())
	assert.ErrorIs(t, err, ErrResourceUnavailable)

	available["a"] = 7
	got, err := r.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}
