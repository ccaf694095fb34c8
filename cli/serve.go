package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/petalpeople/config"
	"github.com/petal-labs/petalpeople/mcp"
	petalotel "github.com/petal-labs/petalpeople/otel"
	"github.com/petal-labs/petalpeople/store"
	"github.com/petal-labs/petalpeople/tool"
)

// Version is reported in the MCP initialize handshake.
var Version = "dev"

const serverInstructions = "Tools for reading and adding records in a SQLite people table " +
	"(id, name, age, profession)."

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the people tools over MCP",
		Long: "Serve the people tools over MCP.\n\n" +
			"With --transport sse (the default) the server listens on HTTP: GET /sse opens an event\n" +
			"stream, POST /messages carries requests for it, and POST /mcp answers synchronously.\n" +
			"With --transport stdio requests are read from stdin and answered on stdout; logs go to stderr.",
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().String("transport", config.DefaultTransport, "Transport: sse | stdio")
	cmd.Flags().IntP("port", "p", config.DefaultPort, "Listen port (sse)")
	cmd.Flags().String("host", config.DefaultHost, "Listen host (sse)")
	cmd.Flags().String("cors-origin", "", "Allowed CORS origin (sse; empty disables CORS headers)")
	cmd.Flags().String("sqlite-path", "", "Path to SQLite database (default: ~/.petalpeople/people.db)")
	cmd.Flags().String("config", "", "Path to petalpeople.yaml or .toml config")
	cmd.Flags().String("otlp-endpoint", "", "OTLP/HTTP collector URL for traces")
	cmd.Flags().String("health-schedule", "", "Cron schedule for store health probes, e.g. \"@every 1m\"")
	cmd.Flags().Duration("read-timeout", 30*time.Second, "HTTP read header timeout (sse)")

	return cmd
}

type serveOptions struct {
	transport      string
	addr           string
	corsOrigin     string
	otlpEndpoint   string
	healthSchedule string
	readTimeout    time.Duration
}

func resolveServeOptions(cmd *cobra.Command, cfg config.File) (serveOptions, error) {
	stringOpt := func(flag, fromFile string) string {
		value, _ := cmd.Flags().GetString(flag)
		if !cmd.Flags().Changed(flag) && strings.TrimSpace(fromFile) != "" {
			return strings.TrimSpace(fromFile)
		}
		return strings.TrimSpace(value)
	}

	opts := serveOptions{
		transport:      strings.ToLower(stringOpt("transport", cfg.Server.Transport)),
		corsOrigin:     stringOpt("cors-origin", cfg.Server.CORSOrigin),
		otlpEndpoint:   stringOpt("otlp-endpoint", cfg.Telemetry.OTLPEndpoint),
		healthSchedule: stringOpt("health-schedule", cfg.Store.HealthSchedule),
	}
	opts.readTimeout, _ = cmd.Flags().GetDuration("read-timeout")

	host := stringOpt("host", cfg.Server.Host)
	port, _ := cmd.Flags().GetInt("port")
	if !cmd.Flags().Changed("port") && cfg.Server.Port != 0 {
		port = cfg.Server.Port
	}
	if port < 0 || port > 65535 {
		return serveOptions{}, exitError(exitValidation, "invalid port %d", port)
	}
	opts.addr = net.JoinHostPort(host, fmt.Sprintf("%d", port))

	switch opts.transport {
	case "sse", "stdio":
	default:
		return serveOptions{}, exitError(exitValidation, "unknown transport %q (want sse or stdio)", opts.transport)
	}
	return opts, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	rt, err := newPeopleRuntime(cmd)
	if err != nil {
		return err
	}
	opts, err := resolveServeOptions(cmd, rt.cfg)
	if err != nil {
		return err
	}
	logger := rt.logger

	previous := slog.Default()
	slog.SetDefault(logger)
	defer slog.SetDefault(previous)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serviceName := rt.cfg.Telemetry.ServiceName
	providers, err := petalotel.Setup(ctx, petalotel.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		OTLPEndpoint:   opts.otlpEndpoint,
	})
	if err != nil {
		return exitError(exitRuntime, "initializing telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()
	tool.SetObserver(providers.Observer)
	defer tool.SetObserver(nil)

	var prober *store.Prober
	if opts.healthSchedule != "" {
		prober, err = store.NewProber(store.ProberConfig{
			Store:    rt.gateway,
			Schedule: opts.healthSchedule,
			Logger:   logger,
			OnResult: providers.Observer.ObserveProbe,
		})
		if err != nil {
			return exitError(exitValidation, "health schedule: %v", err)
		}
		if err := prober.Start(ctx); err != nil {
			return exitError(exitRuntime, "starting health probe: %v", err)
		}
		defer func() {
			_ = prober.Stop(context.Background())
		}()
	}

	server, err := mcp.NewServer(mcp.ServerConfig{
		Name:         "petalpeople",
		Version:      Version,
		Instructions: serverInstructions,
		Tools:        rt.registry,
		Logger:       logger,
	})
	if err != nil {
		return exitError(exitRuntime, "creating mcp server: %v", err)
	}

	logger.Info("serving people tools",
		slog.String("transport", opts.transport),
		slog.String("database", rt.gateway.DSN()),
		slog.Int("tools", rt.registry.Len()),
	)

	if opts.transport == "stdio" {
		err := server.ServeStdio(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil && !errors.Is(err, context.Canceled) {
			return exitError(exitRuntime, "stdio server: %v", err)
		}
		return nil
	}

	sse := mcp.NewSSEHandler(server, mcp.SSEConfig{Logger: logger})
	handler := newHTTPHandler(sse, rt.registry, prober, opts.corsOrigin)
	return serveHTTP(ctx, cmd, handler, sse, opts, logger)
}

func serveHTTP(ctx context.Context, cmd *cobra.Command, handler http.Handler, sse *mcp.SSEHandler, opts serveOptions, logger *slog.Logger) error {
	listener, err := net.Listen("tcp", opts.addr)
	if err != nil {
		return exitError(exitRuntime, "listen on %s: %v", opts.addr, err)
	}
	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: opts.readTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(cmd.OutOrStdout(), "PetalPeople MCP server listening on %s (GET /sse, POST /mcp)\n", listener.Addr())
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		sse.CloseSessions()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return exitError(exitRuntime, "shutdown error: %v", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitError(exitRuntime, "server error: %v", err)
		}
		return nil
	}
}

type healthResponse struct {
	Status    string     `json:"status"`
	Tools     int        `json:"tools"`
	Sessions  int        `json:"sse_sessions"`
	LastProbe *probeView `json:"last_probe,omitempty"`
}

type probeView struct {
	At         time.Time `json:"at"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// newHTTPHandler mounts the MCP routes plus GET /health.
func newHTTPHandler(sse *mcp.SSEHandler, registry *tool.Registry, prober *store.Prober, corsOrigin string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", sse)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		resp := healthResponse{Status: "ok", Tools: registry.Len(), Sessions: sse.Sessions()}
		status := http.StatusOK
		if prober != nil {
			if last := prober.Last(); !last.At.IsZero() {
				view := &probeView{At: last.At, DurationMS: last.Duration.Milliseconds()}
				if last.Err != nil {
					view.Error = last.Err.Error()
					resp.Status = "degraded"
					status = http.StatusServiceUnavailable
				}
				resp.LastProbe = view
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = writeJSON(w, resp)
	})

	if strings.TrimSpace(corsOrigin) == "" {
		return mux
	}
	return withCORS(mux, corsOrigin)
}

func withCORS(next http.Handler, allowedOrigin string) http.Handler {
	origin := strings.TrimSpace(allowedOrigin)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Mcp-Session-Id")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
