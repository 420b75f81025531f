package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blazelab/blaze/internal/autofix"
	"github.com/blazelab/blaze/internal/watch"
	"github.com/blazelab/blaze/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local API server",
	Long: `Start the read-only JSON API on localhost: chats, sanitized message
history, apply history, remediation attempts, and per-app stats.

With --watch-log, also tail a server log file and run detected errors
through the remediation policy for the given app and chat.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.ServerPort = port
		}

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer logger.Sync()

		logFile, _ := cmd.Flags().GetString("watch-log")
		if logFile == "" {
			logFile = cfg.Watch.LogFile
		}
		if logFile != "" {
			appID, _ := cmd.Flags().GetString("app")
			chatID, _ := cmd.Flags().GetString("chat")

			eng, err := buildEngine(cfg, st)
			if err != nil {
				return err
			}
			handler := func(ctx context.Context, inc autofix.Incident) {
				if _, err := eng.HandleIncident(ctx, appID, chatID, inc, autofix.ModeAuto, nil); err != nil {
					logger.Error("handle incident", zap.Error(err))
				}
			}
			lw, err := watch.NewLogWatcher(
				logFile, autofix.SourceServerStderr, handler,
				time.Duration(cfg.Watch.DebounceMillis)*time.Millisecond, logger,
			)
			if err != nil {
				return err
			}
			if err := lw.Start(cmd.Context()); err != nil {
				return err
			}
			defer lw.Stop()
		}

		return web.NewServer(st, cfg.ServerPort, logger).Start()
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "port to listen on (overrides config)")
	serveCmd.Flags().String("watch-log", "", "server log file to tail for errors")
	serveCmd.Flags().String("app", "", "app id incidents from the watched log belong to")
	serveCmd.Flags().String("chat", "", "chat id fix requests are scoped to")
}
