package operations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kogorman/sdclone/internal/inventory"
	"github.com/kogorman/sdclone/internal/pipeline"
	"github.com/kogorman/sdclone/internal/record"
)

// replayStep is one fully validated, rendered partition replay.
type replayStep struct {
	idx       int
	partition string
	cmd       *pipeline.Pipeline
}

// Restore replays a recorded run onto destDrive. date selects the run
// explicitly; empty means the most recent. Every validation (identity,
// mounted partitions, record integrity, tool availability) completes before
// the first byte reaches the device. With dryRun set, the resolved replay is
// printed and nothing is executed.
func (o *Operator) Restore(ctx context.Context, sourceRoot, destDrive, date string, dryRun bool) error {
	start := o.now()

	run, err := record.Open(sourceRoot, date)
	if err != nil {
		return err
	}
	snap, err := run.Snapshot()
	if err != nil {
		return err
	}

	live, _, err := o.inv.Device(ctx, destDrive)
	if err != nil {
		return err
	}

	// Identity rule: the destination must be the recorded drive (serial
	// match) or a blank one. A populated, foreign disk is never touched.
	if live.Serial != snap.Serial && len(live.Children) > 0 {
		return fmt.Errorf("%w: destination %s has serial %q (recorded %q) and %d existing partitions; refusing to overwrite an unrelated populated disk",
			ErrPrecondition, destDrive, live.Serial, snap.Serial, len(live.Children))
	}
	if mounted := live.MountedPartitions(); len(mounted) > 0 {
		return fmt.Errorf("%w: destination %s has mounted partitions (%s at %s); unmount before restoring",
			ErrPrecondition, destDrive, mounted[0].Name, mounted[0].Mountpoint)
	}

	// Load and render everything the replay needs before touching the
	// device, so a malformed record can never abort a half-written restore.
	steps, err := o.buildReplay(run, snap, destDrive)
	if err != nil {
		return err
	}
	table, err := run.SfdiskBackup()
	if err != nil {
		return err
	}
	if _, err := run.SfdiskDump(); err != nil {
		return err
	}
	firstMeg, err := run.FirstMeg()
	if err != nil {
		return err
	}

	var pipes []*pipeline.Pipeline
	for _, s := range steps {
		pipes = append(pipes, s.cmd)
	}
	if err := o.preflight(pipes, o.cfg.Tools.Sfdisk); err != nil {
		return fmt.Errorf("%w: %v", ErrPrecondition, err)
	}

	devPath := inventory.DevicePath(destDrive)
	o.log.Info("restore validated",
		"run", run.Name,
		"drive", destDrive,
		"table", table.Label,
		"partitions", len(snap.Children),
	)

	if dryRun {
		fmt.Fprintf(o.out, "restore plan for run %s onto %s:\n", run.Name, devPath)
		fmt.Fprintf(o.out, "  1. write first-megabyte capture to %s\n", devPath)
		fmt.Fprintf(o.out, "  2. replay %s partition table: %s < %s\n",
			table.Label, o.cfg.Tools.Sfdisk, run.SfdiskDumpPath())
		for i, s := range steps {
			fmt.Fprintf(o.out, "  %d. partition %s: %s\n", i+3, s.partition, s.cmd.String())
		}
		return nil
	}

	if err := o.writeDevice(devPath, firstMeg); err != nil {
		return fmt.Errorf("restore first megabyte: %w", err)
	}

	replay := single(o.cfg.Tools.Sfdisk, devPath)
	replay.Input = run.SfdiskDumpPath()
	if _, err := o.runner.Run(ctx, replay); err != nil {
		return fmt.Errorf("%w: sfdisk replay: %v", ErrExternalTool, err)
	}
	o.log.Info("partition table replayed", "drive", destDrive)

	// Replay in recorded inventory order: later partitions may depend on
	// earlier structural ones already being in place.
	for _, s := range steps {
		o.log.Info("partition restore started", "partition", s.partition, "index", s.idx)
		if _, err := o.runner.Run(ctx, s.cmd); err != nil {
			return fmt.Errorf("%w: partition %s reader: %v", ErrExternalTool, s.partition, err)
		}
		o.log.Info("partition restore completed", "partition", s.partition)
	}

	o.log.Info("restore completed",
		"run", run.Name,
		"drive", destDrive,
		"duration", time.Since(start).String(),
	)
	return nil
}

// buildReplay loads each recorded reader template in inventory order, maps
// the recorded partition name onto the destination drive, and renders the
// template with restore-time bindings. Recorded UUIDs are validated before
// they are bound into an argument vector.
func (o *Operator) buildReplay(run *record.Run, snap *inventory.Device, destDrive string) ([]replayStep, error) {
	var steps []replayStep
	for i, child := range snap.Children {
		idx := i + 1
		tpl, err := run.PartitionReader(idx)
		if err != nil {
			return nil, err
		}
		if tpl == nil {
			o.log.Debug("partition has nothing to replay", "partition", child.Name, "index", idx)
			continue
		}

		dstPart, err := inventory.Remap(child.Name, snap.Name, destDrive)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", record.ErrFormat, err)
		}
		binds := map[string]string{
			pipeline.PlaceholderSource: run.PartDirPath(idx),
			pipeline.PlaceholderDest:   inventory.DevicePath(dstPart),
		}
		if id, err := uuid.Parse(child.UUID); err == nil {
			binds[pipeline.PlaceholderUUID] = id.String()
		}
		rendered, err := tpl.Render(binds)
		if err != nil {
			return nil, fmt.Errorf("%w: partition %d: %v", record.ErrFormat, idx, err)
		}
		steps = append(steps, replayStep{idx: idx, partition: dstPart, cmd: rendered})
	}
	return steps, nil
}
