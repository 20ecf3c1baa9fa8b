// Package operations sequences the drive-level clone, restore and list
// entry points. All external-command failures are fatal for the current run;
// there are no retries and no rollback of partial backup directories.
package operations

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/kogorman/sdclone/internal/config"
	"github.com/kogorman/sdclone/internal/inventory"
	"github.com/kogorman/sdclone/internal/logger"
	"github.com/kogorman/sdclone/internal/pipeline"
	"github.com/kogorman/sdclone/internal/plan"
)

var (
	// ErrPrecondition marks validation failures detected before any
	// mutation. Nothing has been written when it is returned.
	ErrPrecondition = errors.New("precondition failed")
	// ErrExternalTool marks a non-zero exit from an invoked command.
	// Partial artifacts may remain; they are not rolled back.
	ErrExternalTool = errors.New("external tool failed")
)

// Operator carries the wiring for clone/restore/list. The function fields
// exist so tests can substitute device I/O and tool lookup without touching
// real block devices.
type Operator struct {
	cfg    config.Config
	log    logger.Logger
	inv    inventory.Querier
	runner pipeline.Runner
	class  *plan.Classifier
	out    io.Writer

	now         func() time.Time
	lookPath    func(file string) (string, error)
	readDevice  func(path string) ([]byte, error)
	writeDevice func(path string, data []byte) error
	exePath     func() (string, error)
}

// NewOperator wires an Operator against the real system.
func NewOperator(cfg config.Config, log logger.Logger) *Operator {
	return &Operator{
		cfg: cfg,
		log: log,
		inv: &inventory.LsblkQuerier{
			Tool:    cfg.Tools.Lsblk,
			Timeout: cfg.Backup.Timeout,
		},
		runner:      &pipeline.ExecRunner{Log: log, Timeout: cfg.Backup.Timeout},
		class:       plan.NewClassifier(cfg.Tools),
		out:         os.Stdout,
		now:         time.Now,
		lookPath:    exec.LookPath,
		readDevice:  readFirstMeg,
		writeDevice: writeFirstMeg,
		exePath:     os.Executable,
	}
}

// preflight verifies that every tool the given pipelines (plus extras) will
// invoke is resolvable. Missing tools accumulate into one error.
func (o *Operator) preflight(pipes []*pipeline.Pipeline, extra ...string) error {
	var merr *multierror.Error
	seen := make(map[string]bool)
	check := func(tool string) {
		if tool == "" || seen[tool] {
			return
		}
		seen[tool] = true
		if _, err := o.lookPath(tool); err != nil {
			merr = multierror.Append(merr, errors.New("required tool not found: "+tool))
		}
	}
	for _, p := range pipes {
		if p == nil {
			continue
		}
		for _, tool := range p.Tools() {
			check(tool)
		}
	}
	for _, tool := range extra {
		check(tool)
	}
	return merr.ErrorOrNil()
}

// single wraps one external command as a pipeline.
func single(tool string, args ...string) *pipeline.Pipeline {
	return &pipeline.Pipeline{Stages: []pipeline.Command{{Tool: tool, Args: args}}}
}
