package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kitchenwatch/internal/chrome"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List discoverable Chrome sessions",
	Long: `Scans local Chrome processes and the conventional DevTools ports
(9222-9225) for WhatsApp Web tabs, and reports each tab's authentication
state. Useful for checking whether 'run' will be able to reattach.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		locator := chrome.NewLocator(logger)
		sessions := locator.FindSessions(cmd.Context())
		if len(sessions) == 0 {
			fmt.Println("No Chrome sessions found.")
			fmt.Println("Start Chrome with --remote-debugging-port=9222 and open web.whatsapp.com,")
			fmt.Println("or let 'kitchenwatch run' launch its own profile.")
			return nil
		}

		for _, s := range sessions {
			switch s.Auth {
			case chrome.StatusNeedsDebugMode:
				fmt.Printf("pid %-8d Chrome is running without remote debugging; relaunch with --remote-debugging-port=9222\n", s.PID)
			default:
				fmt.Printf("pid %-8d port %-5d %-14s %s\n", s.PID, s.DebugPort, s.Auth, s.Title)
			}
		}
		return nil
	},
}
