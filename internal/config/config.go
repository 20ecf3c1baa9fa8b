package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// ErrLoadConfig indicates a failure to read or parse the YAML configuration.
var ErrLoadConfig = errors.New("config load failed")

// DefaultPath is consulted when no --config flag is given. A missing file at
// the default path is not an error; built-in defaults apply.
const DefaultPath = "/etc/sdclone/config.yaml"

// Config represents the top-level YAML configuration file.
type Config struct {
	Backup BackupConfig `mapstructure:"backup" yaml:"backup"`
	Tools  ToolsConfig  `mapstructure:"tools"  yaml:"tools"`
}

// BackupConfig contains global clone/restore options.
type BackupConfig struct {
	// CompressionLevel is the default zstd level when --compress is not given.
	CompressionLevel int `mapstructure:"compression_level" yaml:"compression_level"`
	// Timeout bounds each external command invocation. Zero means no bound;
	// the imaging tools are expected to run for a long time.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
}

// ToolsConfig names the external tools invoked by clone and restore. Each may
// be a bare name resolved on PATH or an absolute path.
type ToolsConfig struct {
	Lsblk  string `mapstructure:"lsblk"  yaml:"lsblk,omitempty"`
	Sfdisk string `mapstructure:"sfdisk" yaml:"sfdisk,omitempty"`
	Zstd   string `mapstructure:"zstd"   yaml:"zstd,omitempty"`
	Dd     string `mapstructure:"dd"     yaml:"dd,omitempty"`
	Mkswap string `mapstructure:"mkswap" yaml:"mkswap,omitempty"`
	// PartclonePrefix is joined with the filesystem suffix, e.g.
	// "partclone." + "ext4" -> "partclone.ext4".
	PartclonePrefix string `mapstructure:"partclone_prefix" yaml:"partclone_prefix,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Backup: BackupConfig{
			CompressionLevel: 3,
			Timeout:          0,
		},
		Tools: ToolsConfig{
			Lsblk:           "lsblk",
			Sfdisk:          "sfdisk",
			Zstd:            "zstd",
			Dd:              "dd",
			Mkswap:          "mkswap",
			PartclonePrefix: "partclone.",
		},
	}
}

// Load reads the configuration from the given YAML file using Viper and
// unmarshals it over the defaults. An empty path falls back to DefaultPath,
// which is allowed to be absent.
func (c *Config) Load(path string) error {
	*c = Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if _, err := os.Stat(path); err != nil {
		if explicit {
			return fmt.Errorf("%w: stat %s: %v", ErrLoadConfig, path, err)
		}
		return nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrLoadConfig, path, err)
	}

	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(c, decodeHook); err != nil {
		return fmt.Errorf("%w: unmarshal %s: %v", ErrLoadConfig, path, err)
	}

	return nil
}
