package cmd

import (
	"context"
	"fmt"
	"strings"

	"contact-manager/feature/contacts/models"
	"contact-manager/feature/sharing"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Flags for the share command
	shareList    string
	shareLevel   string
	shareReshare bool
	shareUsers   []string
)

// shareCmd shares a contact from the command line, mirroring the share API.
var shareCmd = &cobra.Command{
	Use:   "share <contact-id>",
	Short: "Share a contact with users or a distribution list",
	Long: `Writes mirrored shared copies of the contact for each recipient.

Examples:
  # Share with two users, read-only
  share 9f2c... --user bob --user carol

  # Share with a distribution list, writable
  share 9f2c... --to-list team --level write`,
	Args: cobra.ExactArgs(1),
	RunE: runShare,
}

// restoreSharesCmd re-creates every shared copy from the grant metadata.
var restoreSharesCmd = &cobra.Command{
	Use:   "restore-shares",
	Short: "Repair missing shared copies from grant metadata",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		appCtx, err := buildApplication(ctx)
		if err != nil {
			return err
		}
		defer appCtx.log.Sync()

		if !appCtx.sharing.IsEnabled() {
			return fmt.Errorf("sharing is not configured: set a storage backend")
		}
		repaired, err := appCtx.sharing.Service().RestoreShares(ctx)
		if err != nil {
			return fmt.Errorf("restoration failed: %w", err)
		}
		appCtx.log.Info("Shared copies restored", zap.Int("repaired", repaired))
		return nil
	},
}

func init() {
	shareCmd.Flags().StringSliceVar(&shareUsers, "user", nil, "Recipient username (repeatable)")
	shareCmd.Flags().StringVar(&shareList, "to-list", "", "Distribution list to share with")
	shareCmd.Flags().StringVar(&shareLevel, "level", "read", "Permission level (read or write)")
	shareCmd.Flags().BoolVar(&shareReshare, "can-reshare", false, "Allow recipients to re-share the copy")

	RootCmd.AddCommand(shareCmd)
	RootCmd.AddCommand(restoreSharesCmd)
}

func runShare(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	contactID := args[0]

	appCtx, err := buildApplication(ctx)
	if err != nil {
		return err
	}
	l := appCtx.log
	defer l.Sync()

	if !appCtx.sharing.IsEnabled() {
		return fmt.Errorf("sharing is not configured: set a storage backend")
	}
	if len(shareUsers) == 0 && shareList == "" {
		return fmt.Errorf("nothing to share with: pass --user or --to-list")
	}
	for _, u := range shareUsers {
		if appCtx.cfg.Server.IsOwner(u) {
			return fmt.Errorf("cannot share a contact with its owner %q", u)
		}
	}

	level := models.PermissionLevel(strings.ToLower(shareLevel))
	if level != models.PermissionRead && level != models.PermissionWrite {
		return fmt.Errorf("invalid permission level %q: use read or write", shareLevel)
	}
	perm := models.SharePermission{Level: level, CanReshare: shareReshare}

	svc := appCtx.sharing.Service()

	if shareList != "" {
		res, err := svc.ShareWithList(ctx, contactID, shareList, perm)
		if err != nil {
			return err
		}
		printBatchResult(l, shareList, res)
	}
	if len(shareUsers) > 0 {
		res, err := svc.Share(ctx, contactID, shareUsers, perm)
		if err != nil {
			return err
		}
		printBatchResult(l, "", res)
	}
	return nil
}

// printBatchResult logs the fan-out outcome, per recipient on failure.
func printBatchResult(l *zap.Logger, list string, res *sharing.BatchResult) {
	fields := []zap.Field{
		zap.Int("shared", res.SuccessCount),
		zap.Int("already_shared", res.AlreadySharedCount),
		zap.Int("errors", res.ErrorCount),
		zap.Duration("duration", res.Duration),
	}
	if list != "" {
		fields = append(fields, zap.String("list", list))
	}
	l.Info("Share batch finished", fields...)

	if res.ErrorCount > 0 {
		for user, outcome := range res.PerUser {
			switch sharing.ShareOutcome(outcome) {
			case sharing.OutcomeShared, sharing.OutcomeAlreadyShared, sharing.OutcomeRepaired:
			default:
				l.Warn("Share failed for recipient",
					zap.String("username", user),
					zap.String("reason", outcome),
				)
			}
		}
	}
}
