package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zyp1690/nodecast-tv/internal/config"
	"github.com/zyp1690/nodecast-tv/internal/epg"
	internalhttp "github.com/zyp1690/nodecast-tv/internal/http"
	"github.com/zyp1690/nodecast-tv/internal/http/handlers"
	"github.com/zyp1690/nodecast-tv/internal/httpclient"
	"github.com/zyp1690/nodecast-tv/internal/relay"
	"github.com/zyp1690/nodecast-tv/internal/resolver"
	"github.com/zyp1690/nodecast-tv/internal/settings"
	"github.com/zyp1690/nodecast-tv/internal/transcode"
	"github.com/zyp1690/nodecast-tv/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the nodecast server",
	Long: `Start the nodecast HTTP server.

The server provides:
- Raw streaming endpoints: /stream/relay and /stream/transcode
- REST API for stream resolution, sessions, settings, and guide data
- Health check endpoint with FFmpeg availability
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("base-url", "", "Externally reachable base URL for stream links")
	serveCmd.Flags().String("ffmpeg-path", "", "Path to the FFmpeg binary (default: auto-detect)")

	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.base_url", serveCmd.Flags().Lookup("base-url"))
	viper.BindPFlag("transcode.ffmpeg_path", serveCmd.Flags().Lookup("ffmpeg-path"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating configuration: %w", err)
	}

	baseURL := cfg.Server.ExternalBaseURL()

	// Upstream client shared by the relay and the API probes.
	upstreamCfg := httpclient.DefaultConfig()
	upstreamCfg.ConnectTimeout = cfg.Upstream.ConnectTimeout
	upstreamCfg.RetryAttempts = cfg.Upstream.RetryAttempts
	upstreamCfg.RetryDelay = cfg.Upstream.RetryDelay
	upstreamCfg.CircuitThreshold = cfg.Upstream.CircuitThreshold
	upstreamCfg.CircuitTimeout = cfg.Upstream.CircuitTimeout
	if cfg.Upstream.UserAgent != "" {
		upstreamCfg.UserAgent = cfg.Upstream.UserAgent
	}
	upstreamCfg.Logger = logger
	upstream := httpclient.New(upstreamCfg)

	res := resolver.New(resolver.Config{
		RelayHosts:  cfg.Resolver.RelayHosts,
		HLSURLHints: cfg.Resolver.HLSURLHints,
	}, logger)

	store := settings.NewStore(cfg.Player)
	transcoder := transcode.NewService(cfg.Transcode, logger)
	guide := epg.NewClient(cfg.EPG, logger)

	server := internalhttp.NewServer(internalhttp.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		CORSOrigins:     cfg.Server.CORSOrigins,
	}, logger, version.Short())

	// Control API.
	api := server.API()
	handlers.NewHealthHandler(version.Short(), transcoder).Register(api)
	handlers.NewResolveHandler(res, store, baseURL).Register(api)
	handlers.NewSessionsHandler(transcoder).Register(api)
	handlers.NewSettingsHandler(store).Register(api)
	handlers.NewEpgHandler(guide).Register(api)

	// Raw streaming routes.
	relay.NewHandler(upstream, logger).RegisterChiRoutes(server.Router())
	transcode.NewHandler(transcoder, logger).RegisterChiRoutes(server.Router())

	// FFmpeg availability is informational at startup; it is re-checked per
	// transcode request and by the health endpoint.
	if info, err := transcoder.Available(cmd.Context()); err != nil {
		logger.Warn("ffmpeg not available, transcoded delivery disabled",
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("ffmpeg detected",
			slog.String("path", info.FFmpegPath),
			slog.String("version", info.Version),
		)
	}

	logger.Info("nodecast starting",
		slog.String("version", version.Short()),
		slog.String("base_url", baseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := server.ListenAndServe(ctx)

	// No FFmpeg process outlives the daemon.
	transcoder.Shutdown()
	return err
}
