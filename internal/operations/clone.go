package operations

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/kogorman/sdclone/internal/inventory"
	"github.com/kogorman/sdclone/internal/pipeline"
	"github.com/kogorman/sdclone/internal/plan"
	"github.com/kogorman/sdclone/internal/record"
)

// MinCompressionLevel and MaxCompressionLevel bound the zstd level accepted
// by clone.
const (
	MinCompressionLevel = 1
	MaxCompressionLevel = 19
)

// Clone captures the named drive into a new timestamped run directory under
// destRoot. Every precondition is checked before the first byte is written;
// once past preconditions, any external-command failure aborts the run and
// may leave a partial directory behind.
func (o *Operator) Clone(ctx context.Context, drive, destRoot string, level int) error {
	start := o.now()
	devPath := inventory.DevicePath(drive)

	dev, rawJSON, invErr := o.inv.Device(ctx, drive)

	var merr *multierror.Error
	if level < MinCompressionLevel || level > MaxCompressionLevel {
		merr = multierror.Append(merr, fmt.Errorf("compression level %d out of range [%d,%d]",
			level, MinCompressionLevel, MaxCompressionLevel))
	}
	if invErr != nil {
		merr = multierror.Append(merr, invErr)
	}

	var plans []plan.CopyPlan
	if dev != nil {
		for _, p := range dev.MountedPartitions() {
			merr = multierror.Append(merr, fmt.Errorf("partition %s is mounted at %s; unmount before cloning",
				p.Name, p.Mountpoint))
		}
		var writers []*pipeline.Pipeline
		for _, p := range dev.Children {
			cp := o.class.Classify(p)
			plans = append(plans, cp)
			writers = append(writers, cp.Writer)
		}
		if err := o.preflight(writers, o.cfg.Tools.Sfdisk); err != nil {
			merr = multierror.Append(merr, err)
		}
	}

	runDir := filepath.Join(destRoot, start.Format(record.TimestampLayout))
	if _, err := os.Stat(runDir); err == nil {
		merr = multierror.Append(merr, fmt.Errorf("run directory %s already exists", runDir))
	}

	if err := merr.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %v", ErrPrecondition, err)
	}

	w, err := record.NewWriter(destRoot, start)
	if err != nil {
		return err
	}
	o.log.Info("clone started",
		"drive", drive,
		"run", w.Dir,
		"partitions", len(dev.Children),
		"level", level,
	)

	if err := o.captureTable(ctx, w, devPath); err != nil {
		return err
	}

	firstMeg, err := o.readDevice(devPath)
	if err != nil {
		return fmt.Errorf("capture first megabyte: %w", err)
	}
	if err := w.WriteFirstMeg(firstMeg, level); err != nil {
		return err
	}

	if err := w.WriteFile(record.FileLsblkJSON, rawJSON); err != nil {
		return err
	}
	table, err := o.inv.Table(ctx, drive)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExternalTool, err)
	}
	if err := w.WriteFile(record.FileLsblkBytes, table); err != nil {
		return err
	}

	for i, part := range dev.Children {
		if err := o.clonePartition(ctx, w, i+1, part, plans[i], level); err != nil {
			return err
		}
	}

	exe, err := o.exePath()
	if err != nil {
		return fmt.Errorf("locate own executable: %w", err)
	}
	if err := w.CopySelf(exe); err != nil {
		return err
	}

	o.log.Info("clone completed",
		"drive", drive,
		"run", w.Dir,
		"duration", time.Since(start).String(),
	)
	return nil
}

// captureTable records the partition-table dump (replayable through sfdisk)
// and the structured JSON snapshot, each with stdout/stderr/returncode.
func (o *Operator) captureTable(ctx context.Context, w *record.Writer, devPath string) error {
	dump, dumpErr := o.runner.Run(ctx, single(o.cfg.Tools.Sfdisk, "--dump", devPath))
	if err := w.WriteResult(filepath.Join(record.DirSfdiskDump, "dump"), dump); err != nil {
		return err
	}
	if dumpErr != nil {
		return fmt.Errorf("%w: sfdisk dump: %v", ErrExternalTool, dumpErr)
	}

	backup, backupErr := o.runner.Run(ctx, single(o.cfg.Tools.Sfdisk, "--json", devPath))
	if err := w.WriteResult(filepath.Join(record.DirSfdiskBack, "backup"), backup); err != nil {
		return err
	}
	if backupErr != nil {
		return fmt.Errorf("%w: sfdisk backup: %v", ErrExternalTool, backupErr)
	}
	return nil
}

// clonePartition persists the writer template, executes it when the strategy
// calls for a copy, and persists the instantiated command, its results, and
// the reader template for later replay.
func (o *Operator) clonePartition(ctx context.Context, w *record.Writer, idx int,
	part inventory.Partition, cp plan.CopyPlan, level int,
) error {
	pd := record.PartDir(idx)

	if cp.Warning != "" {
		o.log.Warn(cp.Warning, "partition", part.Name, "parttype", part.PartType)
	}
	o.log.Debug("partition classified",
		"partition", part.Name,
		"strategy", string(cp.Strategy),
	)

	if cp.Writer == nil {
		return w.WritePartitionTemplates(idx, nil, nil, cp.Reader)
	}

	if err := w.WriteFile(filepath.Join(pd, record.FileWriter), pipeline.Encode(cp.Writer)); err != nil {
		return err
	}
	wrote, err := cp.Writer.Render(map[string]string{
		pipeline.PlaceholderSource: inventory.DevicePath(part.Name),
		pipeline.PlaceholderDest:   w.Path(pd),
		pipeline.PlaceholderLevel:  strconv.Itoa(level),
	})
	if err != nil {
		return err
	}
	if err := w.WriteFile(filepath.Join(pd, record.FileWrote), pipeline.Encode(wrote)); err != nil {
		return err
	}

	o.log.Info("partition copy started", "partition", part.Name, "strategy", string(cp.Strategy))
	res, runErr := o.runner.Run(ctx, wrote)
	if err := w.WriteResult(filepath.Join(pd, record.FileWrote), res); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("%w: partition %s writer: %v", ErrExternalTool, part.Name, runErr)
	}
	o.log.Info("partition copy completed", "partition", part.Name)

	return w.WriteFile(filepath.Join(pd, record.FileReader), pipeline.Encode(cp.Reader))
}
