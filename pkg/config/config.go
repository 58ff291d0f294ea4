package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/larrydiffey/difcopy/pkg/checksum"
	"github.com/larrydiffey/difcopy/pkg/core"
	"github.com/larrydiffey/difcopy/pkg/history"
)

// EnvPrefix prefixes every environment variable read by FromEnv
const EnvPrefix = "DIFCOPY"

// Config represents the complete configuration
type Config struct {
	Transfer TransferConfig `json:"transfer" yaml:"transfer"`
	History  HistoryConfig  `json:"history" yaml:"history"`
	Output   OutputConfig   `json:"output" yaml:"output"`
}

// TransferConfig holds the defaults applied to new operations
type TransferConfig struct {
	Verification                  string       `json:"verification" yaml:"verification"` // none, md5, sha1, sha256, crc32, blake2b
	Conflict                      string       `json:"conflict" yaml:"conflict"`
	Speed                         string       `json:"speed" yaml:"speed"`             // normal, slow, very_slow, throttled
	SpeedLimit                    int64        `json:"speed_limit" yaml:"speed_limit"` // bytes per second when throttled
	PreserveTimestamps            bool         `json:"preserve_timestamps" yaml:"preserve_timestamps"`
	PreserveAttributes            bool         `json:"preserve_attributes" yaml:"preserve_attributes"`
	DeleteSourceAfterVerification bool         `json:"delete_source_after_verification" yaml:"delete_source_after_verification"`
	Filters                       FilterConfig `json:"filters,omitempty" yaml:"filters,omitempty"`
}

// FilterConfig defines include/exclude glob patterns applied to base names
// during source enumeration
type FilterConfig struct {
	Include []string `json:"include,omitempty" yaml:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`
}

// HistoryConfig locates the history file
type HistoryConfig struct {
	Path  string `json:"path" yaml:"path"`
	Limit int    `json:"limit" yaml:"limit"`
}

// OutputConfig controls output formatting
type OutputConfig struct {
	Format string `json:"format" yaml:"format"` // text, json, yaml, csv
	Stream bool   `json:"stream" yaml:"stream"` // NDJSON progress on stdout
}

// env mirrors the settings that may come from DIFCOPY_* variables
type env struct {
	Verification       string   `envconfig:"VERIFY"`
	Conflict           string   `envconfig:"CONFLICT"`
	Speed              string   `envconfig:"SPEED"`
	SpeedLimit         int64    `envconfig:"SPEED_LIMIT"`
	PreserveTimestamps bool     `envconfig:"PRESERVE_TIMES"`
	PreserveAttributes bool     `envconfig:"PRESERVE_ATTRS"`
	DeleteAfterVerify  bool     `envconfig:"DELETE_AFTER_VERIFY"`
	Include            []string `envconfig:"INCLUDE"`
	Exclude            []string `envconfig:"EXCLUDE"`
	HistoryPath        string   `envconfig:"HISTORY"`
	HistoryLimit       int      `envconfig:"HISTORY_LIMIT"`
	Output             string   `envconfig:"OUTPUT"`
	Stream             bool     `envconfig:"PROGRESS_STREAM"`
}

// LoadConfig loads configuration from file, stdin, or inline string
func LoadConfig(input string) (*Config, error) {
	var data []byte
	var err error

	switch {
	case input == "-":
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
	case strings.HasPrefix(input, "{") || strings.HasPrefix(input, "---"):
		data = []byte(input)
	default:
		data, err = os.ReadFile(input)
		if err != nil {
			return nil, fmt.Errorf("read file %s: %w", input, err)
		}
	}

	return ParseAuto(data)
}

// ParseAuto auto-detects format (JSON or YAML) and parses
func ParseAuto(data []byte) (*Config, error) {
	trimmed := strings.TrimSpace(string(data))

	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty config data")
	}

	var cfg Config

	if trimmed[0] == '{' {
		if err := json.Unmarshal([]byte(trimmed), &cfg); err == nil {
			return &cfg, nil
		}
	}

	// a bare scalar is valid YAML but not a config
	var probe map[string]interface{}
	if err := yaml.Unmarshal([]byte(trimmed), &probe); err != nil || probe == nil {
		return nil, fmt.Errorf("couldn't parse as JSON or YAML")
	}
	if err := yaml.Unmarshal([]byte(trimmed), &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &cfg, nil
}

// FromEnv loads configuration from DIFCOPY_* environment variables. Unset
// variables leave their fields zero so Merge can fill them from other sources.
func FromEnv() (*Config, error) {
	var e env
	if err := envconfig.Process(EnvPrefix, &e); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	return &Config{
		Transfer: TransferConfig{
			Verification:                  e.Verification,
			Conflict:                      e.Conflict,
			Speed:                         e.Speed,
			SpeedLimit:                    e.SpeedLimit,
			PreserveTimestamps:            e.PreserveTimestamps,
			PreserveAttributes:            e.PreserveAttributes,
			DeleteSourceAfterVerification: e.DeleteAfterVerify,
			Filters: FilterConfig{
				Include: e.Include,
				Exclude: e.Exclude,
			},
		},
		History: HistoryConfig{
			Path:  e.HistoryPath,
			Limit: e.HistoryLimit,
		},
		Output: OutputConfig{
			Format: e.Output,
			Stream: e.Stream,
		},
	}, nil
}

// Default returns the built-in settings
func Default() *Config {
	return &Config{
		Transfer: TransferConfig{
			Verification: string(core.AlgorithmNone),
			Conflict:     string(core.ConflictAsk),
			Speed:        string(core.SpeedNormal),
		},
		History: HistoryConfig{
			Limit: history.DefaultLimit,
		},
		Output: OutputConfig{
			Format: "text",
		},
	}
}

// Merge combines multiple configs with priority (earlier = higher priority).
// Boolean switches are enabled when any source enables them.
func Merge(configs ...*Config) *Config {
	result := &Config{}

	for i := len(configs) - 1; i >= 0; i-- {
		cfg := configs[i]
		if cfg == nil {
			continue
		}

		t := cfg.Transfer
		if t.Verification != "" {
			result.Transfer.Verification = t.Verification
		}
		if t.Conflict != "" {
			result.Transfer.Conflict = t.Conflict
		}
		if t.Speed != "" {
			result.Transfer.Speed = t.Speed
		}
		if t.SpeedLimit > 0 {
			result.Transfer.SpeedLimit = t.SpeedLimit
		}
		result.Transfer.PreserveTimestamps = result.Transfer.PreserveTimestamps || t.PreserveTimestamps
		result.Transfer.PreserveAttributes = result.Transfer.PreserveAttributes || t.PreserveAttributes
		result.Transfer.DeleteSourceAfterVerification = result.Transfer.DeleteSourceAfterVerification || t.DeleteSourceAfterVerification

		if len(t.Filters.Include) > 0 {
			result.Transfer.Filters.Include = t.Filters.Include
		}
		if len(t.Filters.Exclude) > 0 {
			result.Transfer.Filters.Exclude = t.Filters.Exclude
		}

		if cfg.History.Path != "" {
			result.History.Path = cfg.History.Path
		}
		if cfg.History.Limit > 0 {
			result.History.Limit = cfg.History.Limit
		}

		if cfg.Output.Format != "" {
			result.Output.Format = cfg.Output.Format
		}
		result.Output.Stream = result.Output.Stream || cfg.Output.Stream
	}

	defaults := Default()
	if result.Transfer.Verification == "" {
		result.Transfer.Verification = defaults.Transfer.Verification
	}
	if result.Transfer.Conflict == "" {
		result.Transfer.Conflict = defaults.Transfer.Conflict
	}
	if result.Transfer.Speed == "" {
		result.Transfer.Speed = defaults.Transfer.Speed
	}
	if result.History.Limit == 0 {
		result.History.Limit = defaults.History.Limit
	}
	if result.Output.Format == "" {
		result.Output.Format = defaults.Output.Format
	}

	return result
}

var (
	conflictPolicies = []core.ConflictPolicy{
		core.ConflictAsk, core.ConflictSkip, core.ConflictOverwrite,
		core.ConflictOverwriteIfNewer, core.ConflictOverwriteIfSizeDiffers,
		core.ConflictRename, core.ConflictRenameWithNumber,
	}
	speedKinds    = []core.SpeedKind{core.SpeedNormal, core.SpeedSlow, core.SpeedVerySlow, core.SpeedThrottled}
	outputFormats = []string{"text", "json", "yaml", "csv"}
)

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	alg := core.Algorithm(c.Transfer.Verification)
	if alg != core.AlgorithmNone && !slices.Contains(checksum.Supported(), alg) {
		return fmt.Errorf("invalid verification algorithm %q", c.Transfer.Verification)
	}
	if !slices.Contains(conflictPolicies, core.ConflictPolicy(c.Transfer.Conflict)) {
		return fmt.Errorf("invalid conflict policy %q", c.Transfer.Conflict)
	}
	if !slices.Contains(speedKinds, core.SpeedKind(c.Transfer.Speed)) {
		return fmt.Errorf("invalid speed mode %q", c.Transfer.Speed)
	}
	if core.SpeedKind(c.Transfer.Speed) == core.SpeedThrottled && c.Transfer.SpeedLimit <= 0 {
		return fmt.Errorf("throttled speed requires a positive speed_limit")
	}
	if c.History.Limit < 0 || c.History.Limit > history.DefaultLimit {
		return fmt.Errorf("history limit must be between 0 and %d", history.DefaultLimit)
	}
	if !slices.Contains(outputFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format %q", c.Output.Format)
	}
	return nil
}

// SpeedMode returns the configured speed mode
func (t TransferConfig) SpeedMode() core.SpeedMode {
	if core.SpeedKind(t.Speed) == core.SpeedThrottled {
		return core.Throttled(t.SpeedLimit)
	}
	return core.SpeedMode{Kind: core.SpeedKind(t.Speed)}
}

// Apply copies the transfer defaults onto op
func (t TransferConfig) Apply(op *core.Operation) {
	op.Verification = core.Algorithm(t.Verification)
	op.ConflictHandling = core.ConflictPolicy(t.Conflict)
	op.Speed = t.SpeedMode()
	op.PreserveTimestamps = t.PreserveTimestamps
	op.PreserveAttributes = t.PreserveAttributes
	op.DeleteSourceAfterVerification = t.DeleteSourceAfterVerification
}
