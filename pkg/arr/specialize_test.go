package arr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingSpecializer(calls map[string]int) *Specializer[int, string] {
	impl := func(name string) func(context.Context, int) (string, error) {
		return func(context.Context, int) (string, error) {
			calls[name]++
			return name, nil
		}
	}
	return NewSpecializer("test", impl("generic"),
		Specialization[int, string]{Name: "small", Guard: func(n int) bool { return n < 10 }, Impl: impl("small")},
		Specialization[int, string]{Name: "medium", Guard: func(n int) bool { return n < 100 }, Impl: impl("medium")},
	)
}

func TestSpecializerPicksFirstMatchingGuard(t *testing.T) {
	ctx := WithConfig(context.Background(), DefaultConfig())
	calls := map[string]int{}
	s := countingSpecializer(calls)
	assert.Equal(t, "uninitialized", s.State())

	res, err := s.Execute(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "small", res)
	assert.Equal(t, "small", s.State())
	assert.Equal(t, 1, s.Rewrites())

	// staying within the guard does not rewrite
	_, err = s.Execute(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Rewrites())
	assert.Equal(t, 2, calls["small"])
}

func TestSpecializerOnlyMovesForward(t *testing.T) {
	ctx := WithConfig(context.Background(), DefaultConfig())
	calls := map[string]int{}
	s := countingSpecializer(calls)

	_, err := s.Execute(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, "medium", s.State())

	// "small" would accept, but it was declared before the active state;
	// "medium" still accepts, so it keeps running
	res, err := s.Execute(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "medium", res)
	assert.Equal(t, "medium", s.State())

	res, err = s.Execute(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, "generic", res)
	assert.True(t, s.IsGeneric())

	// once generic, always generic
	res, err = s.Execute(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "generic", res)
	assert.Equal(t, 2, s.Rewrites())
	assert.Equal(t, 0, calls["small"])
}

func TestSpecializerSkipsToLaterSpecialization(t *testing.T) {
	ctx := WithConfig(context.Background(), DefaultConfig())
	s := NewSpecializer("test", nil,
		Specialization[int, string]{Name: "even", Guard: func(n int) bool { return n%2 == 0 }, Impl: func(context.Context, int) (string, error) { return "even", nil }},
		Specialization[int, string]{Name: "any", Guard: func(int) bool { return true }, Impl: func(context.Context, int) (string, error) { return "any", nil }},
	)
	_, err := s.Execute(ctx, 2)
	require.NoError(t, err)
	res, err := s.Execute(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "any", res)
	assert.Equal(t, "any", s.State())
}

func TestSpecializerWithoutGeneric(t *testing.T) {
	ctx := WithConfig(context.Background(), DefaultConfig())
	s := NewSpecializer[int, string]("broken", nil)
	_, err := s.Execute(ctx, 1)
	var internal *InternalError
	require.ErrorAs(t, err, &internal)
	assert.Contains(t, internal.Message, "broken")
}

func TestSpecializerDisabled(t *testing.T) {
	config := DefaultConfig()
	config.Specialize = false
	ctx := WithConfig(context.Background(), config)
	calls := map[string]int{}
	s := countingSpecializer(calls)

	res, err := s.Execute(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "generic", res)
	assert.Equal(t, "uninitialized", s.State())
	assert.Equal(t, 0, s.Rewrites())
}
