package luaforge

import (
	"context"
	"os"
	"os/exec"
	"time"

	"go.trai.ch/zerr"
)

// Executor starts child processes in their own process group so a cancelled
// context takes down the whole tree (make spawns compilers, git spawns helpers).
type Executor struct {
	// Grace is how long Run waits for a killed group to release its files.
	Grace time.Duration
}

func NewExecutor() *Executor {
	return &Executor{Grace: 100 * time.Millisecond}
}

// Run executes cmd and waits for it. Unset stdio is wired to the parent's.
func (e *Executor) Run(ctx context.Context, cmd *exec.Cmd) error {
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	isolateProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			killProcessGroup(cmd)
		case <-done:
		}
	}()

	if waitErr := cmd.Wait(); waitErr != nil {
		if ctx.Err() != nil {
			time.Sleep(e.Grace)
			return zerr.Wrap(ctx.Err(), "command aborted")
		}
		return waitErr
	}
	return nil
}
