package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kitchenwatch/internal/notify"
)

var checkDryRun bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the notification checks once",
	Long: `Evaluates all enabled alert conditions against the kitchen database
a single time. With --dry-run the due alerts are printed instead of sent and
no cooldown is consumed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(logger)
		if err != nil {
			return err
		}
		defer svc.close()

		ctx := cmd.Context()
		if checkDryRun {
			snap, err := svc.store.Snapshot(ctx)
			if err != nil {
				return err
			}
			var candidates []notify.Candidate
			if svc.settings.LowStockEnabled {
				candidates = append(candidates, notify.LowStock(snap.Inventory)...)
			}
			if svc.settings.CleaningRemindersEnabled {
				candidates = append(candidates, notify.CleaningDue(snap.CleaningTasks, time.Now())...)
			}
			if svc.settings.PackingMaterialsEnabled {
				candidates = append(candidates, notify.PackingLow(snap.PackingMaterials)...)
			}
			if svc.settings.GasLevelWarningsEnabled {
				candidates = append(candidates, notify.GasLevel(snap.GasCylinders)...)
			}
			if len(candidates) == 0 {
				fmt.Println("No alerts due.")
				return nil
			}
			for _, c := range candidates {
				fmt.Printf("--- %s (cooldown %s) ---\n%s\n\n", c.Key, c.Cooldown, c.Text)
			}
			return nil
		}

		if err := svc.connect(ctx); err != nil {
			logger.Warn("connection failed, due alerts will be deferred", zap.Error(err))
		}
		return svc.monitor.RunChecks(ctx)
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkDryRun, "dry-run", false, "print due alerts instead of sending them")
}
