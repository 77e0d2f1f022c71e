package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clockwork-org/clockd/pkg/adminsrv"
	"github.com/clockwork-org/clockd/pkg/config"
	"github.com/clockwork-org/clockd/pkg/log"
	"github.com/clockwork-org/clockd/pkg/protocol"
	"github.com/clockwork-org/clockd/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the clockd server loop",
	Long: `serve parses the manifest and trust database named by --config,
binds the agent listener, and accepts connections until it receives
SIGTERM/SIGINT. SIGHUP triggers a background manifest reload (see
"clockd manifest check" to validate a manifest before sending SIGHUP).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")

		var cfg config.Config
		var err error
		if cfgPath != "" {
			cfg, err = config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
		} else {
			cfg = config.Default()
		}
		config.EnvOverrideLogLevel(&cfg)

		if v, _ := cmd.Flags().GetString("listen"); v != "" {
			cfg.ListenAddr = v
		}
		if v, _ := cmd.Flags().GetString("admin-listen"); v != "" {
			cfg.AdminAddr = v
		}

		var reports protocol.ReportSink = protocol.DiscardReportSink{}
		srv, err := server.New(cfg, reports)
		if err != nil {
			return fmt.Errorf("starting server: %w", err)
		}

		go func() {
			admin := adminsrv.New(srv)
			log.Info(fmt.Sprintf("admin interface listening on %s", cfg.AdminAddr))
			if err := admin.ListenAndServe(cfg.AdminAddr); err != nil {
				log.Errorf("admin interface stopped", err)
			}
		}()

		log.Info(fmt.Sprintf("clockd listening on %s", cfg.ListenAddr))
		return srv.Serve(context.Background())
	},
}

func init() {
	serveCmd.Flags().String("config", "", "Path to clockd.yaml (defaults built in if omitted)")
	serveCmd.Flags().String("listen", "", "Override the agent listen address")
	serveCmd.Flags().String("admin-listen", "", "Override the admin/introspection listen address")
}
