package record

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kogorman/sdclone/internal/inventory"
	"github.com/kogorman/sdclone/internal/pipeline"
)

// Run is an opened, read-only backup run.
type Run struct {
	// Dir is the resolved run directory.
	Dir string
	// Name is the timestamp directory name.
	Name string
}

// Open resolves and opens a run: the explicit date if non-empty, otherwise
// the most recent run under root.
func Open(root, date string) (*Run, error) {
	dir, err := Resolve(root, date)
	if err != nil {
		return nil, err
	}
	return &Run{Dir: dir, Name: filepath.Base(dir)}, nil
}

// Path resolves a run-relative path.
func (r *Run) Path(elem ...string) string {
	return filepath.Join(append([]string{r.Dir}, elem...)...)
}

func (r *Run) read(rel string) ([]byte, error) {
	data, err := os.ReadFile(r.Path(rel))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return data, nil
}

// Snapshot loads the inventory recorded at clone time. This is the identity
// reference for restore: partition order, names, UUIDs and the source serial
// all come from here, never from the live environment.
func (r *Run) Snapshot() (*inventory.Device, error) {
	data, err := r.read(FileLsblkJSON)
	if err != nil {
		return nil, err
	}
	dev, err := inventory.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot %s: %v", ErrFormat, r.Path(FileLsblkJSON), err)
	}
	return dev, nil
}

// PartitionReader loads the persisted reader template for the idx-th
// partition. A nil pipeline (the None placeholder) means nothing to replay.
func (r *Run) PartitionReader(idx int) (*pipeline.Pipeline, error) {
	data, err := r.read(filepath.Join(PartDir(idx), FileReader))
	if err != nil {
		return nil, err
	}
	p, err := pipeline.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFormat, r.Path(PartDir(idx), FileReader), err)
	}
	return p, nil
}

// PartitionWriter loads the persisted writer template; used by listing.
func (r *Run) PartitionWriter(idx int) (*pipeline.Pipeline, error) {
	data, err := r.read(filepath.Join(PartDir(idx), FileWriter))
	if err != nil {
		return nil, err
	}
	p, err := pipeline.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFormat, r.Path(PartDir(idx), FileWriter), err)
	}
	return p, nil
}

// PartDirPath returns the absolute partition directory, the {source} binding
// for reader replay.
func (r *Run) PartDirPath(idx int) string {
	return r.Path(PartDir(idx))
}

// SfdiskDumpPath returns the persisted sfdisk dump output, which is fed back
// into sfdisk to replay the partition table.
func (r *Run) SfdiskDumpPath() string {
	return r.Path(DirSfdiskDump, "dump"+SuffixStdout)
}

// SfdiskDump reads the persisted partition-table dump.
func (r *Run) SfdiskDump() ([]byte, error) {
	data, err := r.read(filepath.Join(DirSfdiskDump, "dump"+SuffixStdout))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty partition-table dump in %s", ErrFormat, r.Dir)
	}
	return data, nil
}

// SfdiskTable is the structured partition-table snapshot captured with
// sfdisk --json, kept for restore-time sanity checks.
type SfdiskTable struct {
	Label      string            `json:"label"`
	ID         string            `json:"id"`
	Device     string            `json:"device"`
	Unit       string            `json:"unit"`
	Partitions []SfdiskPartition `json:"partitions"`
}

// SfdiskPartition is one row of the sfdisk --json snapshot.
type SfdiskPartition struct {
	Node  string `json:"node"`
	Start int64  `json:"start"`
	Size  int64  `json:"size"`
	Type  string `json:"type"`
}

type sfdiskOutput struct {
	PartitionTable SfdiskTable `json:"partitiontable"`
}

// SfdiskBackup parses the structured partition-table snapshot.
func (r *Run) SfdiskBackup() (*SfdiskTable, error) {
	data, err := r.read(filepath.Join(DirSfdiskBack, "backup"+SuffixStdout))
	if err != nil {
		return nil, err
	}
	var out sfdiskOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: sfdisk backup snapshot: %v", ErrFormat, err)
	}
	return &out.PartitionTable, nil
}
