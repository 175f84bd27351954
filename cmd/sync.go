package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Flags for the sync command
	pullOnly   bool
	pushOnly   bool
	dryRunSync bool
	yesConfirm bool
)

// syncCmd runs a one-shot reconciliation pass against the directory server
// and the share store.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize contacts with the directory server and incoming shares",
	Long: `Runs one reconciliation pass: pulls directory records and incoming
shared copies, then pushes local changes back out.

Examples:
  # Full pass (pull + push)
  sync

  # Inbound only
  sync --pull

  # Outbound only, skipping the confirmation prompt
  sync --push --yes

  # Show what a push would do without touching the directory
  sync --push --dry-run`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&pullOnly, "pull", false, "Pull directory records and incoming shares only")
	syncCmd.Flags().BoolVar(&pushOnly, "push", false, "Push local changes to the directory only")
	syncCmd.Flags().BoolVar(&dryRunSync, "dry-run", false, "Report pending outbound changes without pushing")
	syncCmd.Flags().BoolVar(&yesConfirm, "yes", false, "Auto-confirm the outbound push (non-interactive)")

	RootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	appCtx, err := buildApplication(ctx)
	if err != nil {
		return err
	}
	l := appCtx.log
	defer l.Sync()

	if !appCtx.sync.IsEnabled() {
		return fmt.Errorf("sync is not configured: set sync endpoints or a storage backend")
	}
	svc := appCtx.sync.Service()

	if pullOnly && pushOnly {
		return fmt.Errorf("--pull and --push are mutually exclusive")
	}

	// Inbound half. Pull never deletes local data, no confirmation needed.
	if !pushOnly {
		l.Info("Pulling directory records and incoming shares")
		sweep, err := svc.Pull(ctx)
		if err != nil {
			return fmt.Errorf("pull failed: %w", err)
		}
		for _, rep := range sweep.Directory {
			l.Info("Directory merge",
				zap.String("profile", rep.Profile),
				zap.Int("created", rep.Created),
				zap.Int("updated", rep.Updated),
				zap.Int("unchanged", rep.Unchanged),
				zap.Int("skipped_conflicts", rep.SkippedConflicts),
				zap.Int("flagged_duplicates", rep.FlaggedDuplicates),
				zap.Int("errors", len(rep.Errors)),
			)
		}
		if sweep.Shares != nil {
			l.Info("Share pull",
				zap.Int("sharers", sweep.Shares.Sharers),
				zap.Int("upserted", sweep.Shares.Upserted),
				zap.Int("revoked", sweep.Shares.Revoked),
			)
		}
	}

	if pullOnly {
		return nil
	}
	if len(svc.Profiles()) == 0 {
		l.Info("No directory profiles configured, nothing to push")
		return nil
	}

	// Outbound half. Pushing writes and deletes records on the directory
	// server, so it goes through the confirmation prompt.
	pending := svc.Reconciler().PendingOutbound(ctx)
	l.Info("Outbound changes pending",
		zap.Int("updates", pending.Pushed),
		zap.Int("deletions", pending.Deleted),
	)
	if dryRunSync {
		l.Info("Dry-run mode: No changes were made.")
		return nil
	}
	if pending.Pushed == 0 && pending.Deleted == 0 {
		l.Info("Directory already up to date")
		return nil
	}
	if pending.Deleted > 0 && !confirmDestructiveAction() {
		l.Warn("Operation cancelled by user. No changes were made.")
		return nil
	}

	report, err := svc.Push(ctx)
	if err != nil {
		return fmt.Errorf("push failed: %w", err)
	}
	l.Info("Push report",
		zap.Int("pushed", report.Pushed),
		zap.Int("deleted", report.Deleted),
		zap.Int("skipped", report.Skipped),
		zap.Int("conflicts", report.Conflicts),
		zap.Int("errors", len(report.Errors)),
	)
	for _, msg := range report.Errors {
		l.Warn("Push error", zap.String("detail", msg))
	}
	return nil
}

// confirmDestructiveAction prompts the user for confirmation or uses --yes flag.
func confirmDestructiveAction() bool {
	if yesConfirm {
		fmt.Println("\n✓ Auto-confirmed via --yes flag")
		return true
	}

	fmt.Print("\n⚠️  Type 'yes' to confirm destructive actions: ")
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(response)
	return response == "yes"
}
