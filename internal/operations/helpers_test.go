package operations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/kogorman/sdclone/internal/config"
	"github.com/kogorman/sdclone/internal/inventory"
	"github.com/kogorman/sdclone/internal/logger"
	"github.com/kogorman/sdclone/internal/pipeline"
	"github.com/kogorman/sdclone/internal/record"
)

const (
	srcSerial = "SRC-123"
	ext4UUID  = "3b7b9a6b-45a2-4a95-8cd1-3f74b3a7f6f8"
	swapUUID  = "9e2aa9f1-6b66-4d7a-a2ad-216a45b41b04"
)

// rawInventory builds lsblk-shaped JSON for a single drive.
func rawInventory(t *testing.T, name, serial string, parts []inventory.Partition) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"blockdevices": []any{map[string]any{
			"name":     name,
			"pttype":   "gpt",
			"serial":   serial,
			"children": parts,
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

// sourceParts is the standard clone fixture: one ext4 partition and one
// (inactive) swap partition.
func sourceParts() []inventory.Partition {
	return []inventory.Partition{
		{
			Name:     "sdb1",
			FSType:   "ext4",
			PartType: "0fc63daf-8483-4772-8e79-3d69d8477de4",
			UUID:     ext4UUID,
		},
		{
			Name:     "sdb2",
			FSType:   "swap",
			PartType: "0657fd6d-a4ab-43c4-84e5-0933c84b4f4f",
			UUID:     swapUUID,
		},
	}
}

type fakeQuerier struct {
	dev   *inventory.Device
	raw   []byte
	table []byte
	err   error
}

var _ inventory.Querier = (*fakeQuerier)(nil)

func newFakeQuerier(t *testing.T, name, serial string, parts []inventory.Partition) *fakeQuerier {
	t.Helper()
	raw := rawInventory(t, name, serial, parts)
	dev, err := inventory.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return &fakeQuerier{
		dev:   dev,
		raw:   raw,
		table: []byte("NAME PTTYPE FSTYPE\n" + name + " gpt\n"),
	}
}

func (f *fakeQuerier) Device(ctx context.Context, name string) (*inventory.Device, []byte, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.dev, f.raw, nil
}

func (f *fakeQuerier) Table(ctx context.Context, name string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.table, nil
}

// fakeRunner records every pipeline it is asked to execute and returns
// canned sfdisk output. failTool makes the named tool fail.
type fakeRunner struct {
	calls    []*pipeline.Pipeline
	failTool string
}

var _ pipeline.Runner = (*fakeRunner)(nil)

func hasArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

func (f *fakeRunner) Run(ctx context.Context, p *pipeline.Pipeline) (pipeline.Result, error) {
	f.calls = append(f.calls, p)
	tool := p.Stages[0].Tool
	if f.failTool != "" {
		for _, st := range p.Stages {
			if st.Tool == f.failTool {
				return pipeline.Result{Stderr: []byte("boom"), ExitCode: 1},
					fmt.Errorf("run: %s: exit status 1", st.Tool)
			}
		}
	}
	if tool == "sfdisk" && hasArg(p.Stages[0].Args, "--dump") {
		return pipeline.Result{Stdout: []byte("label: gpt\n/dev/sdb1 : start=2048\n")}, nil
	}
	if tool == "sfdisk" && hasArg(p.Stages[0].Args, "--json") {
		return pipeline.Result{Stdout: []byte(`{"partitiontable":{"label":"gpt","partitions":[]}}`)}, nil
	}
	return pipeline.Result{ExitCode: 0}, nil
}

// reset clears recorded calls, typically between a setup clone and the
// behavior under test.
func (f *fakeRunner) reset() {
	f.calls = nil
}

var testStart = time.Date(2023, 3, 15, 12, 0, 0, 0, time.UTC)

// newTestOperator wires an Operator against fakes: no real devices, tools or
// clocks. Device writes are recorded in the returned slice pointer.
func newTestOperator(fq *fakeQuerier, fr *fakeRunner) (*Operator, *bytes.Buffer, *[]string) {
	written := &[]string{}
	out := &bytes.Buffer{}
	op := NewOperator(config.Default(), logger.Nop())
	op.inv = fq
	op.runner = fr
	op.out = out
	op.now = func() time.Time { return testStart }
	op.lookPath = func(file string) (string, error) { return "/usr/sbin/" + file, nil }
	op.readDevice = func(path string) ([]byte, error) {
		return bytes.Repeat([]byte{0xA5}, record.FirstMegSize), nil
	}
	op.writeDevice = func(path string, data []byte) error {
		*written = append(*written, path)
		return nil
	}
	return op, out, written
}
