package inventory

import (
	"errors"
	"testing"
)

const sampleLsblk = `{
  "blockdevices": [
    {
      "name": "sdb",
      "pttype": "gpt",
      "serial": "WD-1234",
      "children": [
        {
          "name": "sdb1",
          "fstype": "ext4",
          "parttype": "0fc63daf-8483-4772-8e79-3d69d8477de4",
          "mountpoint": null,
          "serial": null,
          "uuid": "3b7b9a6b-45a2-4a95-8cd1-3f74b3a7f6f8"
        },
        {
          "name": "sdb2",
          "fstype": "swap",
          "parttype": "0657fd6d-a4ab-43c4-84e5-0933c84b4f4f",
          "mountpoint": "[SWAP]",
          "serial": null,
          "uuid": "9e2aa9f1-6b66-4d7a-a2ad-216a45b41b04"
        }
      ]
    }
  ]
}`

func TestParse(t *testing.T) {
	dev, err := Parse([]byte(sampleLsblk))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if dev.Name != "sdb" || dev.PTType != "gpt" || dev.Serial != "WD-1234" {
		t.Errorf("device = %+v", dev)
	}
	if len(dev.Children) != 2 {
		t.Fatalf("got %d children, want 2", len(dev.Children))
	}
	if dev.Children[0].FSType != "ext4" || dev.Children[0].Mounted() {
		t.Errorf("sdb1 = %+v", dev.Children[0])
	}
	if !dev.Children[1].Mounted() {
		t.Error("sdb2 should report mounted (active swap)")
	}
}

func TestParse_RequiresExactlyOneDevice(t *testing.T) {
	cases := map[string]string{
		"none": `{"blockdevices": []}`,
		"two":  `{"blockdevices": [{"name": "sda"}, {"name": "sdb"}]}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(in)); !errors.Is(err, ErrInventory) {
				t.Errorf("Parse() error = %v, want ErrInventory", err)
			}
		})
	}
}

func TestParse_BadJSON(t *testing.T) {
	if _, err := Parse([]byte("not json")); !errors.Is(err, ErrInventory) {
		t.Errorf("Parse() error = %v, want ErrInventory", err)
	}
}

func TestMountedPartitions(t *testing.T) {
	dev, err := Parse([]byte(sampleLsblk))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	mounted := dev.MountedPartitions()
	if len(mounted) != 1 || mounted[0].Name != "sdb2" {
		t.Errorf("MountedPartitions() = %+v", mounted)
	}
}

func TestDevicePath(t *testing.T) {
	if got := DevicePath("sdb"); got != "/dev/sdb" {
		t.Errorf("DevicePath(sdb) = %q", got)
	}
	if got := DevicePath("/dev/sdb"); got != "/dev/sdb" {
		t.Errorf("DevicePath(/dev/sdb) = %q", got)
	}
}

func TestRemap(t *testing.T) {
	cases := []struct {
		name      string
		partition string
		src, dst  string
		want      string
		wantErr   bool
	}{
		{"sd to sd", "sdb2", "sdb", "sdc", "sdc2", false},
		{"sd to nvme", "sdb2", "sdb", "nvme0n1", "nvme0n1p2", false},
		{"nvme to sd", "nvme0n1p3", "nvme0n1", "sda", "sda3", false},
		{"mmc to mmc", "mmcblk0p1", "mmcblk0", "mmcblk1", "mmcblk1p1", false},
		{"foreign partition", "sdc1", "sdb", "sdd", "", true},
		{"drive itself", "sdb", "sdb", "sdc", "", true},
		{"garbage suffix", "sdbX", "sdb", "sdc", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Remap(tc.partition, tc.src, tc.dst)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Remap() = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Remap() error = %v", err)
			}
			if got != tc.want {
				t.Errorf("Remap() = %q, want %q", got, tc.want)
			}
		})
	}
}
