// Package record owns the on-disk backup format. One clone run produces one
// timestamp-named directory under the destination root; the directory is
// self-contained and, once fully written, never modified. The layout is a
// stable contract across versions: restore of an old run must keep working.
package record

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ErrFormat indicates a missing or unparseable piece of a backup run.
var ErrFormat = errors.New("backup record malformed")

// TimestampLayout names run directories. Fixed-width and descending in
// resolution, so lexicographic order matches chronological order; "latest"
// selection still goes through parsed timestamps (see Runs).
const TimestampLayout = "20060102-150405"

// Fixed artifact names inside a run directory.
const (
	FileLsblkJSON  = "lsblk-json"
	FileLsblkBytes = "lsblk-bytes"
	FileFirstMeg   = "firstmeg.dd.zst"
	DirSfdiskDump  = "sfdisk-dump"
	DirSfdiskBack  = "sfdisk-backup"
	FileProvenance = "sdclone-bin"

	FileWriter = "writer"
	FileWrote  = "wrote"
	FileReader = "reader"

	SuffixStdout     = "-stdout"
	SuffixStderr     = "-stderr"
	SuffixReturncode = "-returncode"
)

// FirstMegSize is the raw capture length from the start of the drive: the
// partition-table signature and bootloader region, restored byte-exact
// before the table itself is replayed.
const FirstMegSize = 1 << 20

// PartDir returns the subdirectory name for the idx-th partition (1-based,
// inventory order).
func PartDir(idx int) string {
	return fmt.Sprintf("part%d", idx)
}

// Runs lists the timestamped run directories under root, oldest first.
// Entries that do not parse as run timestamps are ignored. Ordering compares
// parsed timestamps, not directory-listing order.
func Runs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("%w: read source root %s: %v", ErrFormat, root, err)
	}
	type run struct {
		name string
		ts   time.Time
	}
	var runs []run
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		ts, err := time.Parse(TimestampLayout, e.Name())
		if err != nil {
			continue
		}
		runs = append(runs, run{name: e.Name(), ts: ts})
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: no backup runs under %s", ErrFormat, root)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].ts.Before(runs[j].ts) })
	names := make([]string, len(runs))
	for i, r := range runs {
		names[i] = r.name
	}
	return names, nil
}

// Resolve picks the run directory for a restore: the explicit date if given,
// otherwise the most recent run. The returned path is absolute when root is.
func Resolve(root, date string) (string, error) {
	if date != "" {
		if _, err := time.Parse(TimestampLayout, date); err != nil {
			return "", fmt.Errorf("%w: bad date %q (want %s): %v",
				ErrFormat, date, TimestampLayout, err)
		}
		dir := filepath.Join(root, date)
		if _, err := os.Stat(dir); err != nil {
			return "", fmt.Errorf("%w: run %s not found: %v", ErrFormat, dir, err)
		}
		return dir, nil
	}
	runs, err := Runs(root)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, runs[len(runs)-1]), nil
}
