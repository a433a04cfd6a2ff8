package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/exchtools/exch/internal/service"
	"github.com/exchtools/exch/internal/service/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the companion caching daemon",
	Long: `Run the local caching daemon. While it is running, other exch
commands answer from its cache instead of talking to Exchange
directly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		level := zerolog.InfoLevel
		if v, _ := cmd.Flags().GetBool("debug"); v {
			level = zerolog.DebugLevel
		}
		log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(level).
			With().Timestamp().Logger()

		client, err := ewsClient()
		if err != nil {
			return err
		}

		st, err := store.Open(filepath.Join(cfgDir, "cache.db"))
		if err != nil {
			return err
		}
		defer st.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc := service.New(cfg, client, st, log)
		go svc.RefreshLoop(ctx)
		return svc.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().Bool("debug", false, "Verbose logging")
}
