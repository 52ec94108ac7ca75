package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"kitchenwatch/internal/browser"
	"kitchenwatch/internal/chrome"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration, session, and cooldown state",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(logger)
		if err != nil {
			return err
		}
		defer svc.close()

		fmt.Printf("Data dir:        %s\n", svc.dir)
		fmt.Printf("Chrome found:    %v\n", browser.ChromeAvailable())
		fmt.Printf("Auto-connect:    %v\n", svc.prefs.AutoConnect)
		if svc.prefs.LastConnection != nil {
			fmt.Printf("Last connection: %s\n", svc.prefs.LastConnection.Format(time.RFC3339))
		} else {
			fmt.Printf("Last connection: never\n")
		}

		fmt.Printf("\nCategories: low_stock=%v cleaning=%v packing=%v gas=%v\n",
			svc.settings.LowStockEnabled,
			svc.settings.CleaningRemindersEnabled,
			svc.settings.PackingMaterialsEnabled,
			svc.settings.GasLevelWarningsEnabled)
		fmt.Printf("Check interval: %d minutes\n", svc.settings.CheckIntervalMinutes)

		sessions := svc.locator.FindSessions(cmd.Context())
		authenticated := 0
		for _, s := range sessions {
			if s.Auth == chrome.StatusAuthenticated {
				authenticated++
			}
		}
		fmt.Printf("\nChrome sessions: %d found, %d authenticated\n", len(sessions), authenticated)

		if len(svc.settings.LastNotificationTimes) > 0 {
			fmt.Println("\nRecent notifications:")
			keys := make([]string, 0, len(svc.settings.LastNotificationTimes))
			for k := range svc.settings.LastNotificationTimes {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("  %-40s %s\n", k, svc.settings.LastNotificationTimes[k].Format(time.RFC3339))
			}
		}
		return nil
	},
}
