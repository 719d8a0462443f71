package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/munkholm-systems/lagerpuls/internal/bridge"
	"github.com/munkholm-systems/lagerpuls/internal/config"
	"github.com/munkholm-systems/lagerpuls/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lagerpuls-bridge",
		Short: "Forwards beholdning change notifications to the hub",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridge(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("listen-dsn", "", "Postgres DSN for the notification subscription")
	cmd.PersistentFlags().String("channel", defaults.GetString("bridge.channel"), "Notification channel name")
	cmd.PersistentFlags().String("ingest-url", "", "Hub ingestion endpoint URL")
	cmd.PersistentFlags().Duration("request-timeout", defaults.GetDuration("bridge.request_timeout"), "Forwarding request timeout")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "bridge.listen_dsn", "listen-dsn")
	bindFlag(cmd, "bridge.channel", "channel")
	bindFlag(cmd, "bridge.ingest_url", "ingest-url")
	bindFlag(cmd, "bridge.request_timeout", "request-timeout")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runBridge(ctx context.Context) error {
	appConfig, err := config.LoadBridge(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	forwarder, err := bridge.NewForwarder(bridge.ForwarderConfig{
		IngestURL:      appConfig.IngestURL,
		RequestTimeout: appConfig.RequestTimeout,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	listener, err := bridge.NewListener(bridge.ListenerConfig{
		DSN:           appConfig.ListenDSN,
		NotifyChannel: appConfig.NotifyChannel,
		MinReconnect:  appConfig.MinReconnect,
		MaxReconnect:  appConfig.MaxReconnect,
		Forwarder:     forwarder,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("bridge starting",
		zap.String("channel", appConfig.NotifyChannel),
		zap.String("ingest_url", appConfig.IngestURL))

	return listener.Run(signalCtx)
}
