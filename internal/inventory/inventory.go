// Package inventory queries the partition layout of a block device through
// lsblk and exposes it as structured records. Records are ephemeral: every
// caller re-queries, and the only persisted form is the raw lsblk output
// snapshotted into a backup run directory.
package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrInventory indicates that lsblk failed or returned something other than
// exactly one top-level device.
var ErrInventory = errors.New("device inventory failed")

// lsblk columns requested for both the JSON and the plain-table snapshot.
const lsblkColumns = "NAME,PTTYPE,FSTYPE,PARTTYPE,MOUNTPOINT,SERIAL,UUID"

// Partition is one partition slot of a drive. A non-empty Mountpoint means
// the partition is active, which is a hard safety signal for both clone and
// restore.
type Partition struct {
	Name       string `json:"name"`
	FSType     string `json:"fstype"`
	PartType   string `json:"parttype"`
	Mountpoint string `json:"mountpoint"`
	Serial     string `json:"serial"`
	UUID       string `json:"uuid"`
}

// Mounted reports whether the partition currently has a mountpoint.
func (p Partition) Mounted() bool {
	return p.Mountpoint != ""
}

// Device is one physical or logical drive as reported by lsblk.
type Device struct {
	Name     string      `json:"name"`
	PTType   string      `json:"pttype"`
	Serial   string      `json:"serial"`
	Children []Partition `json:"children"`
}

// MountedPartitions returns the children that currently expose a mountpoint.
func (d *Device) MountedPartitions() []Partition {
	var mounted []Partition
	for _, p := range d.Children {
		if p.Mounted() {
			mounted = append(mounted, p)
		}
	}
	return mounted
}

type lsblkOutput struct {
	Blockdevices []Device `json:"blockdevices"`
}

// Parse decodes lsblk --json output and enforces that it describes exactly
// one top-level device.
func Parse(data []byte) (*Device, error) {
	var out lsblkOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: decode lsblk JSON: %v", ErrInventory, err)
	}
	if n := len(out.Blockdevices); n != 1 {
		return nil, fmt.Errorf("%w: expected exactly one device, got %d", ErrInventory, n)
	}
	dev := out.Blockdevices[0]
	return &dev, nil
}

// Querier abstracts the lsblk invocation so tests can substitute canned
// inventories.
type Querier interface {
	// Device returns the parsed record tree for the named drive together
	// with the raw JSON bytes it was parsed from.
	Device(ctx context.Context, name string) (*Device, []byte, error)
	// Table returns the plain-table lsblk output (--bytes) for the drive,
	// persisted alongside the JSON snapshot for human inspection.
	Table(ctx context.Context, name string) ([]byte, error)
}

// LsblkQuerier runs the real lsblk tool.
type LsblkQuerier struct {
	Tool    string
	Timeout time.Duration
}

var _ Querier = (*LsblkQuerier)(nil)

func (q *LsblkQuerier) run(ctx context.Context, args ...string) ([]byte, error) {
	if q.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.Timeout)
		defer cancel()
	}
	tool := q.Tool
	if tool == "" {
		tool = "lsblk"
	}
	cmd := exec.CommandContext(ctx, tool, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v: %s",
			ErrInventory, tool, strings.Join(args, " "), err,
			strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func (q *LsblkQuerier) Device(ctx context.Context, name string) (*Device, []byte, error) {
	raw, err := q.run(ctx, "--json", "--bytes", "--output", lsblkColumns, DevicePath(name))
	if err != nil {
		return nil, nil, err
	}
	dev, err := Parse(raw)
	if err != nil {
		return nil, nil, err
	}
	return dev, raw, nil
}

func (q *LsblkQuerier) Table(ctx context.Context, name string) ([]byte, error) {
	return q.run(ctx, "--bytes", "--output", lsblkColumns, DevicePath(name))
}

// DevicePath turns a short device name into its /dev path. Already-prefixed
// names pass through unchanged.
func DevicePath(name string) string {
	if strings.HasPrefix(name, "/dev/") {
		return name
	}
	return "/dev/" + name
}

// partitionSeparator returns the separator between a drive name and its
// partition numbers: nvme0n1 and mmcblk0 style drives insert a "p".
func partitionSeparator(drive string) string {
	if len(drive) == 0 {
		return ""
	}
	last := drive[len(drive)-1]
	if last >= '0' && last <= '9' {
		return "p"
	}
	return ""
}

// Remap translates a recorded source partition name onto the destination
// drive, preserving the partition suffix: sdb2 -> sdc2, sdb2 -> nvme0n1p2.
// It fails if the partition name does not actually extend the source drive
// name, which would indicate a corrupted snapshot.
func Remap(partition, srcDrive, dstDrive string) (string, error) {
	rest, ok := strings.CutPrefix(partition, srcDrive)
	if !ok || rest == "" {
		return "", fmt.Errorf("%w: partition %q does not belong to drive %q",
			ErrInventory, partition, srcDrive)
	}
	rest = strings.TrimPrefix(rest, "p")
	for _, r := range rest {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: partition %q has no numeric suffix after drive %q",
				ErrInventory, partition, srcDrive)
		}
	}
	return dstDrive + partitionSeparator(dstDrive) + rest, nil
}
