package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/kogorman/sdclone/internal/logger"
)

// Result captures what a pipeline invocation produced. Stdout is empty when
// the pipeline wrote to an output file instead. Stderr aggregates every
// stage. ExitCode is 0 on success, the first failing stage's code otherwise,
// and -1 when a stage could not be started at all.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner executes rendered pipelines. The command runner is the only place
// external processes are spawned; tests substitute a recording fake.
type Runner interface {
	Run(ctx context.Context, p *Pipeline) (Result, error)
}

// ExecRunner runs pipelines with os/exec, connecting stages with pipes.
// Stages run concurrently, as a shell pipeline would, but Run blocks until
// every stage has exited.
type ExecRunner struct {
	Log logger.Logger
	// Timeout bounds the whole pipeline. Zero means unbounded.
	Timeout time.Duration
}

var _ Runner = (*ExecRunner)(nil)

// sharedBuffer is an io.Writer safe for the concurrent stderr copy
// goroutines os/exec runs, one per stage.
type sharedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *sharedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *sharedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Bytes()
}

// Run executes the pipeline and waits for completion. A rendered pipeline is
// required: leftover placeholders are refused rather than passed to a tool.
func (r *ExecRunner) Run(ctx context.Context, p *Pipeline) (Result, error) {
	if p == nil || len(p.Stages) == 0 {
		return Result{}, errors.New("run: empty pipeline")
	}
	if err := checkRendered(p); err != nil {
		return Result{ExitCode: -1}, err
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	if r.Log != nil {
		r.Log.Debug("exec", "pipeline", p.String())
	}

	var stderr sharedBuffer
	cmds := make([]*exec.Cmd, len(p.Stages))
	for i, st := range p.Stages {
		cmds[i] = exec.CommandContext(ctx, st.Tool, st.Args...)
		cmds[i].Stderr = &stderr
	}

	if p.Input != "" {
		in, err := os.Open(p.Input)
		if err != nil {
			return Result{ExitCode: -1}, fmt.Errorf("run: open input: %w", err)
		}
		defer in.Close()
		cmds[0].Stdin = in
	}

	for i := 0; i < len(cmds)-1; i++ {
		pipe, err := cmds[i].StdoutPipe()
		if err != nil {
			return Result{ExitCode: -1}, fmt.Errorf("run: pipe stage %d: %w", i, err)
		}
		cmds[i+1].Stdin = pipe
	}

	var stdout bytes.Buffer
	last := cmds[len(cmds)-1]
	if p.Output != "" {
		out, err := os.Create(p.Output)
		if err != nil {
			return Result{ExitCode: -1}, fmt.Errorf("run: create output: %w", err)
		}
		defer out.Close()
		last.Stdout = out
	} else {
		last.Stdout = &stdout
	}

	for i, cmd := range cmds {
		if err := cmd.Start(); err != nil {
			res := Result{Stderr: stderr.Bytes(), ExitCode: -1}
			return res, fmt.Errorf("run: start %s (stage %d): %w", p.Stages[i].Tool, i, err)
		}
	}

	// Wait upstream-first so each stage sees EOF from its predecessor.
	exitCode := 0
	var firstErr error
	for i, cmd := range cmds {
		if err := cmd.Wait(); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("run: %s (stage %d): %w", p.Stages[i].Tool, i, err)
				exitCode = -1
				var exitErr *exec.ExitError
				if errors.As(err, &exitErr) {
					exitCode = exitErr.ExitCode()
				}
			}
		}
	}

	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), ExitCode: exitCode}
	return res, firstErr
}

func checkRendered(p *Pipeline) error {
	check := func(s string) error {
		if m := placeholderPattern.FindString(s); m != "" {
			return fmt.Errorf("%w: pipeline not rendered, found %s", ErrRender, m)
		}
		return nil
	}
	for _, st := range p.Stages {
		for _, a := range st.Args {
			if err := check(a); err != nil {
				return err
			}
		}
	}
	if err := check(p.Input); err != nil {
		return err
	}
	return check(p.Output)
}
