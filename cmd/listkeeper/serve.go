package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quailyquaily/listkeeper/internal/botruntime"
	"github.com/quailyquaily/listkeeper/internal/configutil"
	"github.com/quailyquaily/listkeeper/internal/logutil"
	"github.com/quailyquaily/listkeeper/internal/statepaths"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect to the bridge and serve commands, triggers, and membership notices",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}

			bridgeURL := strings.TrimSpace(configutil.FlagOrViperString(cmd, "bridge-url", "bridge.url"))
			if bridgeURL == "" {
				return fmt.Errorf("missing bridge.url (set via --bridge-url or %s_BRIDGE_URL)", envPrefix)
			}
			bridgeToken := strings.TrimSpace(configutil.FlagOrViperString(cmd, "bridge-token", "bridge.token"))

			auditPath := ""
			if configutil.FlagOrViperBool(cmd, "audit", "audit.enabled") {
				auditPath = strings.TrimSpace(configutil.FlagOrViperString(cmd, "audit-path", "audit.jsonl_path"))
				if auditPath == "" {
					auditPath = statepaths.AuditPath()
				}
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return botruntime.Run(ctx, botruntime.Options{
				Logger:         logger,
				BridgeURL:      bridgeURL,
				BridgeToken:    bridgeToken,
				Prefix:         configutil.FlagOrViperString(cmd, "prefix", "command.prefix"),
				StateDir:       statepaths.StateDir(),
				AuditPath:      auditPath,
				HealthListen:   configutil.FlagOrViperString(cmd, "health-listen", "serve.health_listen"),
				MaxConcurrency: configutil.FlagOrViperInt(cmd, "max-concurrency", "serve.max_concurrency"),
				HandleTimeout:  configutil.FlagOrViperDuration(cmd, "handle-timeout", "serve.handle_timeout"),
				RosterTimeout:  configutil.FlagOrViperDuration(cmd, "roster-timeout", "bridge.roster_timeout"),
			})
		},
	}

	cmd.Flags().String("bridge-url", "", "Websocket URL of the bridge process (ws://... or wss://...).")
	cmd.Flags().String("bridge-token", "", "Bearer token presented to the bridge on connect.")
	cmd.Flags().String("prefix", "", "Command prefix character (defaults to '.').")
	cmd.Flags().String("health-listen", "", "Listen address for /healthz and /metrics (empty disables).")
	cmd.Flags().Int("max-concurrency", 3, "Max number of conversations processed concurrently.")
	cmd.Flags().Duration("handle-timeout", 0, "Per-event handling timeout (0 uses serve.handle_timeout).")
	cmd.Flags().Duration("roster-timeout", 0, "Roster request timeout (0 uses bridge.roster_timeout).")
	cmd.Flags().Bool("audit", true, "Append admin mutations to the audit JSONL log.")
	cmd.Flags().String("audit-path", "", "Audit log path (defaults to <state_dir>/audit.jsonl).")

	return cmd
}
