package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/larrydiffey/difcopy/pkg/config"
	"github.com/larrydiffey/difcopy/pkg/core"
	"github.com/larrydiffey/difcopy/pkg/orchestrator"
	"github.com/larrydiffey/difcopy/pkg/output"
	"github.com/larrydiffey/difcopy/pkg/progress"
	"github.com/larrydiffey/difcopy/pkg/scan"
)

func newTransferCmd(mode core.TransferMode) *cobra.Command {
	verb := string(mode)
	cmd := &cobra.Command{
		Use:   verb + " SOURCE... DESTINATION",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " files and directories",
		Long: fmt.Sprintf(`%s local files and directory trees into DESTINATION.

Examples:
  # %[2]s a directory tree with SHA-256 verification
  difcopy %[2]s --verify sha256 ~/photos /mnt/backup

  # %[2]s at 1 MiB/s, renaming on collisions
  difcopy %[2]s --limit 1048576 --conflict rename big.iso /mnt/usb`,
			strings.ToUpper(verb[:1])+verb[1:], verb),
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransfer(cmd, mode, args)
		},
	}

	cmd.Flags().String("verify", "", "verification algorithm: none, crc32, md5, sha1, sha256, blake2b")
	cmd.Flags().String("conflict", "", "conflict policy: ask, skip, overwrite, overwrite_if_newer, overwrite_if_size_differs, rename, rename_with_number")
	cmd.Flags().String("speed", "", "speed mode: normal, slow, very_slow, throttled")
	cmd.Flags().Int64("limit", 0, "throttle to this many bytes per second (implies --speed throttled)")
	cmd.Flags().Bool("preserve-times", false, "preserve modification and access times")
	cmd.Flags().Bool("preserve-attrs", false, "preserve permission bits")
	cmd.Flags().Bool("delete-after-verify", false, "delete each source once its copy verified")
	cmd.Flags().Int("priority", 0, "queue priority")
	cmd.Flags().String("progress", string(progress.FormatBar), "progress display: bar, simple, none")
	cmd.Flags().Bool("stream", false, "stream progress as newline-delimited JSON")
	cmd.Flags().StringSlice("include", []string{}, "include patterns")
	cmd.Flags().StringSlice("exclude", []string{}, "exclude patterns")
	return cmd
}

func runTransfer(cmd *cobra.Command, mode core.TransferMode, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	if err := applyTransferFlags(cmd, a.cfg); err != nil {
		return exitWithError(core.ExitConfigError, "flags", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sources, dest := args[:len(args)-1], args[len(args)-1]
	plan, err := scan.New(a.log).
		WithFilters(a.cfg.Transfer.Filters.Include, a.cfg.Transfer.Filters.Exclude).
		Plan(ctx, sources, dest)
	if err != nil {
		return exitWithError(core.ExitCodeForError(err, core.ExitGeneralError), "scan sources", err)
	}
	if len(plan.Items) == 0 {
		return a.formatter().Success("nothing to transfer")
	}

	op := core.NewOperation(mode, plan.Items...)
	a.cfg.Transfer.Apply(op)
	op.Priority, _ = cmd.Flags().GetInt("priority")

	progressFormat, _ := cmd.Flags().GetString("progress")
	return a.execute(ctx, progress.Format(progressFormat), func(ctrl *orchestrator.Controller) (*core.Operation, error) {
		return ctrl.Enqueue(op), nil
	})
}

// execute drains the queue after submit enqueued an operation, then
// reports that operation and exits with its code
func (a *app) execute(ctx context.Context, progressFormat progress.Format, submit func(*orchestrator.Controller) (*core.Operation, error)) error {
	ctrl := orchestrator.New(orchestrator.Options{
		History: a.store,
		Asker:   newTerminalAsker(os.Stdin, os.Stderr),
		Logger:  a.log,
	})

	var reporter *progress.Reporter
	if a.cfg.Output.Stream {
		stream := output.NewStreamWriter(os.Stdout)
		ctrl.WithProgress(stream).WithNotifier(stream)
	} else if progressFormat != progress.FormatNone {
		reporter = progress.New(os.Stderr, progressFormat)
		ctrl.WithProgress(reporter)
	}

	stop := watchSignals(ctx, ctrl, a.log)
	defer stop()

	op, err := submit(ctrl)
	if err != nil {
		return exitWithError(historyErrorCode(err), "submit", err)
	}
	if err := ctrl.ProcessQueue(ctx); err != nil {
		return exitWithError(core.ExitGeneralError, "process queue", err)
	}

	if reporter != nil {
		reporter.Finish(op)
	}
	if !a.cfg.Output.Stream {
		if err := a.formatter().Operation(op); err != nil {
			return err
		}
	}

	if code := core.ExitCodeForOperation(op); code != core.ExitSuccess {
		os.Exit(code)
	}
	return nil
}

// applyTransferFlags overrides config with command-line flags
func applyTransferFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("verify") {
		cfg.Transfer.Verification, _ = flags.GetString("verify")
	}
	if flags.Changed("conflict") {
		cfg.Transfer.Conflict, _ = flags.GetString("conflict")
	}
	if flags.Changed("speed") {
		cfg.Transfer.Speed, _ = flags.GetString("speed")
	}
	if flags.Changed("limit") {
		cfg.Transfer.SpeedLimit, _ = flags.GetInt64("limit")
		cfg.Transfer.Speed = string(core.SpeedThrottled)
	}
	if flags.Changed("preserve-times") {
		cfg.Transfer.PreserveTimestamps, _ = flags.GetBool("preserve-times")
	}
	if flags.Changed("preserve-attrs") {
		cfg.Transfer.PreserveAttributes, _ = flags.GetBool("preserve-attrs")
	}
	if flags.Changed("delete-after-verify") {
		cfg.Transfer.DeleteSourceAfterVerification, _ = flags.GetBool("delete-after-verify")
	}
	if flags.Changed("stream") {
		cfg.Output.Stream, _ = flags.GetBool("stream")
	}
	if flags.Changed("include") {
		cfg.Transfer.Filters.Include, _ = flags.GetStringSlice("include")
	}
	if flags.Changed("exclude") {
		cfg.Transfer.Filters.Exclude, _ = flags.GetStringSlice("exclude")
	}

	if err := scan.Validate(cfg.Transfer.Filters.Include...); err != nil {
		return err
	}
	if err := scan.Validate(cfg.Transfer.Filters.Exclude...); err != nil {
		return err
	}
	if cfg.Transfer.DeleteSourceAfterVerification && !core.Algorithm(cfg.Transfer.Verification).Enabled() {
		return fmt.Errorf("--delete-after-verify requires --verify")
	}
	return cfg.Validate()
}
