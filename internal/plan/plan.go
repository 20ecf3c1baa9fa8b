// Package plan decides, per partition, how its contents must be captured and
// later replayed. Classification is a pure function of the partition's
// filesystem type and partition-type identifier; the result is a pair of
// command templates with deferred {source}/{dest} bindings.
package plan

import (
	"strings"

	"github.com/google/uuid"

	"github.com/kogorman/sdclone/internal/config"
	"github.com/kogorman/sdclone/internal/inventory"
	"github.com/kogorman/sdclone/internal/pipeline"
)

// Strategy is the chosen copy method for a partition.
type Strategy string

const (
	// StrategySkip copies nothing; the slot is unused or covered entirely
	// by the partition-table replay.
	StrategySkip Strategy = "skip"
	// StrategySwap copies nothing but reformats the destination as swap
	// with the original UUID at restore time.
	StrategySwap Strategy = "swap"
	// StrategyClone uses the filesystem-aware partclone tool.
	StrategyClone Strategy = "clone"
	// StrategyBlockCopy is a raw dd copy through the compressor.
	StrategyBlockCopy Strategy = "dd"
)

// CopyPlan is the classification result for one partition. Writer is nil iff
// nothing is captured during clone; Reader is nil iff nothing happens at
// restore either. Warning carries the operator-visible note attached to the
// conservative fallback.
type CopyPlan struct {
	Strategy Strategy
	Writer   *pipeline.Pipeline
	Reader   *pipeline.Pipeline
	Warning  string
}

// partcloneSuffix maps lsblk filesystem types to the partclone tool suffix
// that understands them.
var partcloneSuffix = map[string]string{
	"vfat":     "fat",
	"fat12":    "fat12",
	"fat16":    "fat16",
	"fat32":    "fat32",
	"ntfs":     "ntfs",
	"ext2":     "ext2",
	"ext3":     "ext3",
	"ext4":     "ext4",
	"btrfs":    "btrfs",
	"reiserfs": "reiserfs",
	"reiser4":  "reiser4",
	"xfs":      "xfs",
	"ufs":      "ufs",
	"jfs":      "jfs",
	"hfsplus":  "hfsp",
	"vmfs":     "vmfs",
	"minix":    "minix",
	"f2fs":     "f2fs",
	"nilfs2":   "nilfs2",
}

// Partition-type GUIDs that carry meaningful data without a clonable
// filesystem. These get a raw block copy.
var (
	guidMicrosoftReserved = uuid.MustParse("e3c9e316-0b5c-4db8-817d-f92df00215ae")
	guidLinuxFilesystem   = uuid.MustParse("0fc63daf-8483-4772-8e79-3d69d8477de4")
	guidBIOSBoot          = uuid.MustParse("21686148-6449-6e6f-744e-656564454649")
)

// MBR partition type of an extended-partition container. Its extent is
// reproduced by the partition-table replay; there is no data to copy.
const mbrExtendedType = "0x5"

// Classifier renders copy plans against a concrete tool configuration.
type Classifier struct {
	Tools config.ToolsConfig
}

// NewClassifier returns a Classifier for the given tool configuration.
func NewClassifier(tools config.ToolsConfig) *Classifier {
	return &Classifier{Tools: tools}
}

// Classify maps one partition record to its copy plan. The decision order
// matters: filesystem type is consulted before the partition-type identifier
// so that, e.g., a swap filesystem inside a "Linux filesystem data" slot is
// still handled as swap.
func (c *Classifier) Classify(p inventory.Partition) CopyPlan {
	fstype := strings.ToLower(p.FSType)

	if fstype == "swap" {
		return CopyPlan{
			Strategy: StrategySwap,
			Reader:   c.swapReader(),
		}
	}

	if suffix, ok := partcloneSuffix[fstype]; ok {
		tool := c.Tools.PartclonePrefix + suffix
		return CopyPlan{
			Strategy: StrategyClone,
			Writer:   c.cloneWriter(tool, p.Name),
			Reader:   c.cloneReader(tool, p.Name),
		}
	}

	ptype := strings.ToLower(strings.TrimSpace(p.PartType))
	ptGUID, ptIsGUID := parseGUID(ptype)

	if ptype == "" || (ptIsGUID && ptGUID == uuid.Nil) {
		return CopyPlan{Strategy: StrategySkip}
	}

	if ptype == mbrExtendedType {
		return CopyPlan{Strategy: StrategySkip}
	}

	if ptIsGUID {
		switch ptGUID {
		case guidMicrosoftReserved, guidBIOSBoot:
			return CopyPlan{
				Strategy: StrategyBlockCopy,
				Writer:   c.ddWriter(p.Name),
				Reader:   c.ddReader(p.Name),
			}
		case guidLinuxFilesystem:
			if fstype == "" {
				return CopyPlan{
					Strategy: StrategyBlockCopy,
					Writer:   c.ddWriter(p.Name),
					Reader:   c.ddReader(p.Name),
				}
			}
		}
	}

	return CopyPlan{
		Strategy: StrategyBlockCopy,
		Writer:   c.ddWriter(p.Name),
		Reader:   c.ddReader(p.Name),
		Warning: "unrecognized partition type; falling back to a raw block copy, " +
			"which is slow and compresses poorly",
	}
}

func parseGUID(s string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, false
	}
	return id, true
}

// CloneArtifact returns the file name a filesystem-aware clone writes inside
// the partition's record directory.
func CloneArtifact(name string) string { return name + ".clone.zst" }

// BlockArtifact returns the file name a raw block copy writes.
func BlockArtifact(name string) string { return name + ".dd.zst" }

func (c *Classifier) cloneWriter(tool, name string) *pipeline.Pipeline {
	return &pipeline.Pipeline{
		Stages: []pipeline.Command{
			{Tool: tool, Args: []string{"-c", "-q", "-s", "{source}", "-o", "-"}},
			{Tool: c.Tools.Zstd, Args: []string{"-q", "-{level}", "-T0", "-c"}},
		},
		Output: "{dest}/" + CloneArtifact(name),
	}
}

func (c *Classifier) cloneReader(tool, name string) *pipeline.Pipeline {
	return &pipeline.Pipeline{
		Stages: []pipeline.Command{
			{Tool: c.Tools.Zstd, Args: []string{"-q", "-d", "-c"}},
			{Tool: tool, Args: []string{"-r", "-q", "-s", "-", "-o", "{dest}"}},
		},
		Input: "{source}/" + CloneArtifact(name),
	}
}

func (c *Classifier) ddWriter(name string) *pipeline.Pipeline {
	return &pipeline.Pipeline{
		Stages: []pipeline.Command{
			{Tool: c.Tools.Dd, Args: []string{"if={source}", "bs=1M", "status=none"}},
			{Tool: c.Tools.Zstd, Args: []string{"-q", "-{level}", "-T0", "-c"}},
		},
		Output: "{dest}/" + BlockArtifact(name),
	}
}

func (c *Classifier) ddReader(name string) *pipeline.Pipeline {
	return &pipeline.Pipeline{
		Stages: []pipeline.Command{
			{Tool: c.Tools.Zstd, Args: []string{"-q", "-d", "-c"}},
			// conv=sparse keeps unwritten-zero regions sparse on the
			// destination.
			{Tool: c.Tools.Dd, Args: []string{"of={dest}", "bs=1M", "conv=sparse", "status=none"}},
		},
		Input: "{source}/" + BlockArtifact(name),
	}
}

func (c *Classifier) swapReader() *pipeline.Pipeline {
	return &pipeline.Pipeline{
		Stages: []pipeline.Command{
			{Tool: c.Tools.Mkswap, Args: []string{"-U", "{uuid}", "{dest}"}},
		},
	}
}
