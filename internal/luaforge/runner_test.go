package luaforge

import (
	"bytes"
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newShellRunner(t *testing.T) (*CommandRunner, *Transcript, *bytes.Buffer) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	report, out := newTestReporter()
	transcript := &Transcript{}
	return NewCommandRunner(NewExecutor(), report, NewMemo(), transcript), transcript, out
}

func TestCommandRunner_Query(t *testing.T) {
	r, transcript, _ := newShellRunner(t)
	ctx := context.Background()

	out, err := r.Query(ctx, "", "sh", "-c", "echo '  hi  '")
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
	assert.Contains(t, transcript.buf.String(), "$ sh -c echo '  hi  '\n")

	out, err = r.Query(ctx, "", "sh", "-c", "exit 1")
	require.NoError(t, err, "a silent failure means not found")
	assert.Empty(t, out)

	_, err = r.Query(ctx, "", "sh", "-c", "echo oops; exit 1")
	assert.ErrorIs(t, err, ErrCommandFailed)
}

func TestCommandRunner_Run(t *testing.T) {
	r, _, out := newShellRunner(t)
	ctx := context.Background()

	require.NoError(t, r.Run(ctx, t.TempDir(), "sh", "-c", "true"))

	err := r.Run(ctx, "", "sh", "-c", "echo failing; exit 3")
	require.ErrorIs(t, err, ErrCommandFailed)
	assert.Equal(t, "got exitcode 3 from command sh -c echo failing; exit 3", describe(err))
	assert.Contains(t, out.String(), "failing\n")

	err = r.Run(ctx, "", "luaforge-no-such-binary")
	require.ErrorIs(t, err, ErrCommandNotFound)
	assert.Contains(t, describe(err), "is luaforge-no-such-binary in PATH?")
}

func TestCommandRunner_Cancel(t *testing.T) {
	r, _, _ := newShellRunner(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := r.Run(ctx, "", "sh", "-c", "sleep 10")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCommandRunner_LookPath(t *testing.T) {
	r, _, _ := newShellRunner(t)
	assert.True(t, r.LookPath("sh"))
	assert.False(t, r.LookPath("luaforge-no-such-binary"))
}
