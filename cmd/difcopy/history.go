package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/larrydiffey/difcopy/pkg/core"
	"github.com/larrydiffey/difcopy/pkg/orchestrator"
	"github.com/larrydiffey/difcopy/pkg/progress"
)

var (
	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Inspect and manage finished operations",
	}

	historyListCmd = &cobra.Command{
		Use:   "list",
		Short: "List finished operations, newest first",
		Args:  cobra.NoArgs,
		RunE:  runHistoryList,
	}

	historyShowCmd = &cobra.Command{
		Use:   "show OPERATION_ID",
		Short: "Show an operation and its items",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow,
	}

	historyDeleteCmd = &cobra.Command{
		Use:   "delete OPERATION_ID",
		Short: "Remove an operation from history",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryDelete,
	}

	historyClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Remove every operation from history",
		Args:  cobra.NoArgs,
		RunE:  runHistoryClear,
	}

	retryCmd = &cobra.Command{
		Use:   "retry OPERATION_ID",
		Short: "Re-run the failed items of a finished operation",
		Long: `Re-run the failed items of a finished operation. Completed items are not
transferred again. With --item only that failed item is re-run.`,
		Args: cobra.ExactArgs(1),
		RunE: runRetry,
	}

	verifyCmd = &cobra.Command{
		Use:   "verify OPERATION_ID",
		Short: "Re-hash the completed items of a finished operation",
		Args:  cobra.ExactArgs(1),
		RunE:  runVerify,
	}
)

func init() {
	retryCmd.Flags().String("item", "", "retry only this item")
	retryCmd.Flags().String("progress", string(progress.FormatBar), "progress display: bar, simple, none")
	verifyCmd.Flags().String("algorithm", "", "algorithm (default: the operation's, or sha256)")

	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd, historyClearCmd)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	return a.formatter().Operations(a.store.List())
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	op, err := a.store.Get(args[0])
	if err != nil {
		return exitWithError(core.ExitOperationNotFound, "history show", err)
	}
	return a.formatter().Operation(op)
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	if err := a.store.Delete(args[0]); err != nil {
		return exitWithError(historyErrorCode(err), "history delete", err)
	}
	return a.formatter().Success("deleted " + args[0])
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	if err := a.store.Clear(); err != nil {
		return exitWithError(core.ExitCodeForError(err, core.ExitDestNotWritable), "history clear", err)
	}
	return a.formatter().Success("history cleared")
}

func runRetry(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}

	opID := args[0]
	itemID, _ := cmd.Flags().GetString("item")
	progressFormat, _ := cmd.Flags().GetString("progress")

	stored, err := a.store.Get(opID)
	if err != nil {
		return exitWithError(core.ExitOperationNotFound, "retry", err)
	}
	if itemID == "" && len(stored.ItemsWithStatus(core.ItemFailed)) == 0 {
		return a.formatter().Success("no failed items to retry")
	}

	if itemID != "" {
		if err := a.store.ResetItem(opID, itemID); err != nil {
			return exitWithError(historyErrorCode(err), "retry item", err)
		}
	}

	return a.execute(context.Background(), progress.Format(progressFormat), func(ctrl *orchestrator.Controller) (*core.Operation, error) {
		if itemID != "" {
			return ctrl.ResubmitOperation(opID)
		}
		return ctrl.RetryOperation(opID)
	})
}

func runVerify(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}

	alg, _ := cmd.Flags().GetString("algorithm")
	if alg == "" {
		alg = string(core.AlgorithmNone)
	}

	ctrl := orchestrator.New(orchestrator.Options{History: a.store, Logger: a.log})
	failures, err := ctrl.VerifyOperation(context.Background(), args[0], core.Algorithm(alg))
	if err != nil {
		return exitWithError(historyErrorCode(err), "verify", err)
	}

	if len(failures) == 0 {
		return a.formatter().Success("all completed items verified")
	}

	rows := make([]interface{}, 0, len(failures))
	for _, f := range failures {
		rows = append(rows, fmt.Sprintf("%s -> %s: %v", f.Item.SourcePath, f.Item.DestinationPath, f.Error))
	}
	_ = a.formatter().Format(rows)
	return exitWithError(core.ExitChecksumMismatch, "verify", fmt.Errorf("%d item(s) failed verification", len(failures)))
}

func historyErrorCode(err error) int {
	switch {
	case errors.Is(err, core.ErrItemNotFailed):
		return core.ExitConfigError
	default:
		return core.ExitCodeForError(err, core.ExitGeneralError)
	}
}
