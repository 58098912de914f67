package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordLogger struct {
	lines []string
}

func (r *recordLogger) Debug(format string, _ ...any) { r.lines = append(r.lines, "D:"+format) }
func (r *recordLogger) Info(format string, _ ...any)  { r.lines = append(r.lines, "I:"+format) }
func (r *recordLogger) Warn(format string, _ ...any)  { r.lines = append(r.lines, "W:"+format) }
func (r *recordLogger) Error(format string, _ ...any) { r.lines = append(r.lines, "E:"+format) }

func TestOrNop(t *testing.T) {
	require.NotNil(t, OrNop(nil))

	var typedNil *recordLogger
	require.NotNil(t, OrNop(typedNil), "typed nil pointers are treated as absent")

	rec := &recordLogger{}
	require.Same(t, any(rec), any(OrNop(rec)))
}

func TestMulti(t *testing.T) {
	a, b := &recordLogger{}, &recordLogger{}

	multi := Multi(a, nil, b)
	multi.Info("hello")
	multi.Error("boom")

	require.Equal(t, []string{"I:hello", "E:boom"}, a.lines)
	require.Equal(t, []string{"I:hello", "E:boom"}, b.lines)

	// Single survivor collapses to itself; all-nil collapses to a no-op.
	require.Same(t, any(a), any(Multi(a, nil)))
	require.NotNil(t, Multi(nil, nil))
}

func TestFromZap(t *testing.T) {
	require.NotNil(t, FromZap(nil))
	require.NotNil(t, FromZap(zap.NewNop()))

	// Must not panic when logging through the adapter.
	FromZap(zap.NewNop()).Info("formatted %d", 1)
}
