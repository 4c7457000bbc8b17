package luaforge

//go:generate mockgen -source=runner.go -destination=mock_runner_test.go -package=luaforge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"go.trai.ch/zerr"
)

// Runner is the subprocess boundary used by every component.
type Runner interface {
	// Run executes a command and fails on any non-zero exit.
	Run(ctx context.Context, dir string, args ...string) error
	// Query executes a command and returns its trimmed output. A non-zero
	// exit with no output is reported as success with an empty result,
	// which is how git plumbing says "not found".
	Query(ctx context.Context, dir string, args ...string) (string, error)
	// LookPath reports whether a program is on PATH.
	LookPath(name string) bool
}

// CommandRunner runs real processes through an Executor.
type CommandRunner struct {
	exec       *Executor
	report     *Reporter
	memo       *Memo
	transcript *Transcript
}

func NewCommandRunner(exec *Executor, report *Reporter, memo *Memo, transcript *Transcript) *CommandRunner {
	return &CommandRunner{exec: exec, report: report, memo: memo, transcript: transcript}
}

func (r *CommandRunner) Run(ctx context.Context, dir string, args ...string) error {
	_, err := r.run(ctx, dir, false, args)
	return err
}

func (r *CommandRunner) Query(ctx context.Context, dir string, args ...string) (string, error) {
	return r.run(ctx, dir, true, args)
}

func (r *CommandRunner) LookPath(name string) bool {
	return remember(r.memo, "path:"+name, func() bool {
		_, err := exec.LookPath(name)
		return err == nil
	})
}

func (r *CommandRunner) run(ctx context.Context, dir string, capture bool, args []string) (string, error) {
	line := strings.Join(args, " ")
	if r.report.Verbose() {
		r.report.Note("Running %s", line)
	}
	r.transcript.Command(line)

	live := r.report.Verbose() && !capture
	var out bytes.Buffer
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Stdin = strings.NewReader("")
	if live {
		w := io.MultiWriter(r.report.Writer(), r.transcript)
		cmd.Stdout, cmd.Stderr = w, w
	} else {
		cmd.Stdout, cmd.Stderr = &out, &out
	}

	err := r.exec.Run(ctx, cmd)
	if !live {
		_, _ = r.transcript.Write(out.Bytes())
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if capture && strings.TrimSpace(out.String()) == "" {
				return "", nil
			}
			if !live {
				_, _ = r.report.Writer().Write(out.Bytes())
			}
			return "", zerr.With(zerr.Wrap(ErrCommandFailed,
				fmt.Sprintf("got exitcode %d from command %s", exitErr.ExitCode(), line)), "dir", dir)
		}
		if ctx.Err() != nil {
			return "", err
		}
		return "", zerr.With(zerr.Wrap(ErrCommandNotFound,
			fmt.Sprintf("couldn't run %s: is %s in PATH?", line, args[0])), "cause", err.Error())
	}

	if r.report.Verbose() && capture {
		_, _ = r.report.Writer().Write(out.Bytes())
	}
	return strings.TrimSpace(out.String()), nil
}
