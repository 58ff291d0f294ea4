package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/larrydiffey/difcopy/pkg/config"
	"github.com/larrydiffey/difcopy/pkg/core"
	"github.com/larrydiffey/difcopy/pkg/history"
	"github.com/larrydiffey/difcopy/pkg/output"
)

var (
	// Global flags
	configFile   string
	outputFormat string
	verbose      bool
	logFormat    string
	historyPath  string

	// Root command
	rootCmd = &cobra.Command{
		Use:   "difcopy",
		Short: "difcopy - queued, verified local file transfers",
		Long: `difcopy copies and moves local files through a queued transfer engine
with conflict handling, speed limits, pause/resume and checksum verification.

Every finished operation is recorded in a history file so failed items can
be retried and completed transfers re-verified later.`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Schema command
	schemaCmd = &cobra.Command{
		Use:   "schema",
		Short: "Print JSON schema for config file",
		Long: `Print the JSON schema for the configuration file format.
Useful for validation and IDE autocomplete.`,
		RunE: runSchema,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (JSON/YAML), use '-' for stdin")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format: text, json, yaml, csv")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text, json")
	rootCmd.PersistentFlags().StringVar(&historyPath, "history", "", "history file (default ~/.difcopy/history.json)")

	rootCmd.AddCommand(newTransferCmd(core.ModeCopy))
	rootCmd.AddCommand(newTransferCmd(core.ModeMove))
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(schemaCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(core.ExitGeneralError)
	}
}

// app bundles what every subcommand needs
type app struct {
	cfg   *config.Config
	log   *logrus.Entry
	store *history.Store
}

// setup configures logging, loads configuration and opens the history
func setup(cmd *cobra.Command) (*app, error) {
	log := setupLogging()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, exitWithError(core.ExitConfigError, "load config", err)
	}

	path := cfg.History.Path
	if path == "" {
		if path, err = history.DefaultPath(); err != nil {
			return nil, exitWithError(core.ExitConfigError, "history path", err)
		}
	}
	store, err := history.Open(path, cfg.History.Limit, log)
	if err != nil {
		return nil, exitWithError(core.ExitCodeForError(err, core.ExitDestNotWritable), "open history", err)
	}

	return &app{cfg: cfg, log: log, store: store}, nil
}

func setupLogging() *logrus.Entry {
	logger := logrus.StandardLogger()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	if logFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logrus.NewEntry(logger).WithField("component", "difcopy")
}

// loadConfig merges, in priority order, the config file, DIFCOPY_*
// environment variables and built-in defaults, then applies global flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var fileCfg *config.Config
	if configFile != "" {
		var err error
		if fileCfg, err = config.LoadConfig(configFile); err != nil {
			return nil, err
		}
	}

	envCfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}

	cfg := config.Merge(fileCfg, envCfg)
	if cmd.Flags().Changed("output") {
		cfg.Output.Format = outputFormat
	}
	if historyPath != "" {
		cfg.History.Path = historyPath
	}
	return cfg, cfg.Validate()
}

func (a *app) formatter() *output.Formatter {
	return output.New(output.Format(a.cfg.Output.Format), os.Stdout)
}

// exitWithError prints error and exits with appropriate code
func exitWithError(code int, context string, err error) error {
	info := core.GetExitCodeInfo(code)

	errorOutput := map[string]interface{}{
		"error":      err.Error(),
		"context":    context,
		"exit_code":  code,
		"category":   info.Category,
		"retryable":  info.Retryable,
		"suggestion": info.Suggestion,
	}

	formatter := output.New(output.Format(outputFormat), os.Stderr)
	_ = formatter.Format(errorOutput)

	os.Exit(code)
	return nil // Never reached
}

// runSchema executes the schema command
func runSchema(cmd *cobra.Command, args []string) error {
	schema := `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "difcopy configuration",
  "type": "object",
  "properties": {
    "transfer": {
      "type": "object",
      "properties": {
        "verification": {"type": "string", "enum": ["none", "crc32", "md5", "sha1", "sha256", "blake2b"]},
        "conflict": {"type": "string", "enum": ["ask", "skip", "overwrite", "overwrite_if_newer", "overwrite_if_size_differs", "rename", "rename_with_number"]},
        "speed": {"type": "string", "enum": ["normal", "slow", "very_slow", "throttled"]},
        "speed_limit": {"type": "integer", "minimum": 1, "description": "bytes per second when speed is throttled"},
        "preserve_timestamps": {"type": "boolean"},
        "preserve_attributes": {"type": "boolean"},
        "delete_source_after_verification": {"type": "boolean"},
        "filters": {
          "type": "object",
          "properties": {
            "include": {"type": "array", "items": {"type": "string"}},
            "exclude": {"type": "array", "items": {"type": "string"}}
          }
        }
      }
    },
    "history": {
      "type": "object",
      "properties": {
        "path": {"type": "string"},
        "limit": {"type": "integer", "minimum": 1, "maximum": 100}
      }
    },
    "output": {
      "type": "object",
      "properties": {
        "format": {"type": "string", "enum": ["text", "json", "yaml", "csv"]},
        "stream": {"type": "boolean"}
      }
    }
  }
}`

	fmt.Println(schema)
	return nil
}
