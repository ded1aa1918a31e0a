package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mapforge/mapforge/internal/logging"
	"github.com/mapforge/mapforge/pkg/protocol"
	"github.com/mapforge/mapforge/pkg/server"
)

func serveCmd() *cobra.Command {
	var (
		addr            string
		gmPassword      string
		playerPassword  string
		maxClients      int
		assetCacheDir   string
		logFile         string
		debug           bool
		strictOwnership bool
		playersCanDraw  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Host a campaign session",
		Long: `Start a campaign server and wait for players.

The server keeps the authoritative campaign state. Clients join over
WebSocket at /ws; /healthz and /metrics are served alongside for
operations. Stop with SIGINT or SIGTERM for a clean shutdown that
notifies connected players.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.New(logging.Options{
				File:  logFile,
				Debug: debug,
			})
			defer logger.Sync()

			cfg := server.DefaultServerConfig()
			cfg.Address = addr
			cfg.GMPassword = gmPassword
			cfg.PlayerPassword = playerPassword
			cfg.MaxClients = maxClients
			cfg.AssetCacheDir = assetCacheDir
			cfg.Policy = protocol.ServerPolicy{
				StrictOwnership: strictOwnership,
				PlayersCanDraw:  playersCanDraw,
			}

			srv, err := server.New(cfg, server.WithLogger(logger))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(),
				syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":4444", "Listen address")
	cmd.Flags().StringVar(&gmPassword, "gm-password", "", "Password for the GM role (empty allows anyone)")
	cmd.Flags().StringVar(&playerPassword, "player-password", "", "Password for the player role (empty allows anyone)")
	cmd.Flags().IntVar(&maxClients, "max-clients", 0, "Maximum concurrent players (0 for unlimited)")
	cmd.Flags().StringVar(&assetCacheDir, "asset-cache", "", "Directory for the on-disk asset cache")
	cmd.Flags().StringVar(&logFile, "log-file", "", "Also write logs to this rotated file")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&strictOwnership, "strict-ownership", false, "Players may only move tokens they own")
	cmd.Flags().BoolVar(&playersCanDraw, "players-can-draw", true, "Players may use the drawing tools")

	return cmd
}
