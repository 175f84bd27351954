package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// dedupeCmd scans the contact store for suspected duplicate pairs.
var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Scan the contact store for suspected duplicates",
	Long: `Compares every active contact against every other one using the
weighted field matcher and reports suspected duplicate pairs. The scan is
read-only; nothing is merged or deleted.`,
	RunE: runDedupe,
}

func init() {
	RootCmd.AddCommand(dedupeCmd)
}

func runDedupe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	appCtx, err := buildApplication(ctx)
	if err != nil {
		return err
	}
	l := appCtx.log
	defer l.Sync()

	pairs := appCtx.dedupe.Service().Scan()
	if len(pairs) == 0 {
		l.Info("No suspected duplicates found")
		return nil
	}

	for _, p := range pairs {
		l.Info("Suspected duplicate",
			zap.String("contact", p.CardName),
			zap.String("contact_id", p.ContactID),
			zap.String("other", p.OtherCardName),
			zap.String("other_contact_id", p.OtherContactID),
			zap.Float64("confidence", p.Percentage),
			zap.String("rule", p.Rule),
		)
	}
	return nil
}
