package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kitchenwatch/internal/config"
	"kitchenwatch/internal/events"
)

var runNoConnect bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the notification daemon",
	Long: `Connects to WhatsApp Web (attaching to a running Chrome when possible)
and starts the notification monitor. The monitor checks the kitchen database
on its configured interval and sends any due alerts to the target group.

Stops cleanly on SIGINT/SIGTERM. With session reuse enabled the browser is
left running so the next start reattaches without a new QR scan.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(logger)
		if err != nil {
			return err
		}
		defer svc.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		svc.bus.Subscribe(events.KindConnection, func(e events.Event) {
			logger.Info("connection state changed", zap.Bool("connected", e.Connected))
		})
		svc.bus.Subscribe(events.KindMessageSent, func(e events.Event) {
			logger.Info("alert delivered", zap.String("message_id", e.MessageID))
		})
		svc.bus.Subscribe(events.KindUnreadCount, func(e events.Event) {
			logger.Info("unread messages in chat list", zap.Int("count", e.Unread))
		})

		if svc.prefs.AutoConnect && !runNoConnect {
			if err := svc.connect(ctx); err != nil {
				// The monitor keeps its schedule; sends are deferred until
				// a connection exists.
				logger.Warn("initial connection failed, alerts deferred", zap.Error(err))
			} else if _, err := svc.controller.UnreadCount(ctx); err != nil {
				logger.Debug("unread badge read failed", zap.Error(err))
			}
		}

		if err := config.WatchNotificationSettings(ctx, svc.settingsPath, logger, svc.monitor.UpdateSettings); err != nil {
			logger.Warn("settings watcher unavailable", zap.Error(err))
		}

		svc.monitor.Start(ctx)
		fmt.Fprintln(os.Stderr, "kitchenwatch running, Ctrl-C to stop")
		<-ctx.Done()
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runNoConnect, "no-connect", false, "start the monitor without connecting to the browser")
}
