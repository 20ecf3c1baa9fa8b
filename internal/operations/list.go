package operations

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kogorman/sdclone/internal/record"
)

// List prints the backup series under sourceRoot, oldest first: one line per
// run with the recorded drive and the per-partition strategies. Read-only.
func (o *Operator) List(sourceRoot string) error {
	runs, err := record.Runs(sourceRoot)
	if err != nil {
		return err
	}

	for _, name := range runs {
		run := &record.Run{Dir: filepath.Join(sourceRoot, name), Name: name}
		snap, err := run.Snapshot()
		if err != nil {
			fmt.Fprintf(o.out, "%s  (unreadable: %v)\n", name, err)
			continue
		}

		var strategies []string
		for i, child := range snap.Children {
			strategies = append(strategies, child.Name+"="+o.runStrategy(run, i+1))
		}
		fmt.Fprintf(o.out, "%s  drive=%s serial=%s  %s\n",
			name, snap.Name, snap.Serial, strings.Join(strategies, " "))
	}
	return nil
}

// runStrategy reconstructs the recorded strategy for one partition from its
// persisted writer/reader templates.
func (o *Operator) runStrategy(run *record.Run, idx int) string {
	writer, werr := run.PartitionWriter(idx)
	reader, rerr := run.PartitionReader(idx)
	if werr != nil || rerr != nil {
		return "?"
	}
	switch {
	case writer == nil && reader == nil:
		return "skip"
	case writer == nil:
		return "swap"
	case strings.HasPrefix(writer.Stages[0].Tool, o.cfg.Tools.PartclonePrefix):
		return "clone"
	default:
		return "dd"
	}
}
