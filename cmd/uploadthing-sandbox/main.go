package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/farmisen/upyloadthing/internal/devseed"
	"github.com/farmisen/upyloadthing/internal/sandbox"
	"github.com/farmisen/upyloadthing/pkg/uploadthing"
	"github.com/farmisen/upyloadthing/pkg/uploadthing/mock"
)

const (
	FlagAddr     = "addr"
	FlagAPIKey   = "api-key"
	FlagAppID    = "app-id"
	FlagSeed     = "seed"
	FlagLatency  = "latency"
	FlagFail     = "fail"
	FlagLogLevel = "log-level"

	DefaultAddr     = ":8787"
	DefaultAPIKey   = "sk_sandbox_local"
	DefaultLogLevel = "info"
)

func main() {
	if err := RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// RootCmd builds the sandbox command. Every flag can also be set through an
// UPLOADTHING_SANDBOX_* environment variable.
func RootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("UPLOADTHING_SANDBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "uploadthing-sandbox",
		Short: "Run a local imitation of the UploadThing API",
		Long: `Serve the UploadThing REST and ingest endpoints from an in-memory store.
Presigned upload URLs are verified with the sandbox API key, so the real
client works against it unchanged.`,
		Example: `  uploadthing-sandbox --addr :8787 --seed ./seed.yaml
  uploadthing-sandbox --latency 200ms --fail rate=0.1,code=503`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v)
		},
	}

	cmd.Flags().String(FlagAddr, DefaultAddr, "listen address")
	cmd.Flags().String(FlagAPIKey, DefaultAPIKey, "API key accepted by the sandbox")
	cmd.Flags().String(FlagAppID, mock.DefaultAppID, "app id embedded in the token and file URLs")
	cmd.Flags().String(FlagSeed, "", "YAML or JSON seed file for the store")
	cmd.Flags().Duration(FlagLatency, 0, "artificial latency added to every request")
	cmd.Flags().String(FlagFail, "", "failure injection (rate=<float>,code=<httpStatus>)")
	cmd.Flags().String(FlagLogLevel, DefaultLogLevel, "log level. debug|info|warn|error")
	_ = v.BindPFlags(cmd.Flags())

	return cmd
}

func run(ctx context.Context, v *viper.Viper) error {
	logger, err := newLogger(v.GetString(FlagLogLevel))
	if err != nil {
		return err
	}
	defer logger.Sync()

	store := mock.New(mock.WithAppID(v.GetString(FlagAppID)))
	if path := strings.TrimSpace(v.GetString(FlagSeed)); path != "" {
		seed, err := devseed.Load(path)
		if err != nil {
			return err
		}
		if err := store.Seed(seed); err != nil {
			return err
		}
		logger.Info("seed applied", zap.String("path", path), zap.Int("files", len(seed.Files)))
	}

	failCfg, err := sandbox.ParseFailConfig(v.GetString(FlagFail))
	if err != nil {
		return err
	}

	srv, err := sandbox.New(sandbox.Config{
		APIKey:  v.GetString(FlagAPIKey),
		Store:   store,
		Latency: v.GetDuration(FlagLatency),
		Fail:    failCfg,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	token, err := srv.Token()
	if err != nil {
		return err
	}

	addr := v.GetString(FlagAddr)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	base := "http://" + displayHost(ln.Addr())

	fmt.Println()
	fmt.Printf("export %s=%s\n", uploadthing.EnvToken, token)
	fmt.Printf("export %s=%s\n", uploadthing.EnvAPIURL, base)
	fmt.Printf("export %s=%s%s\n", uploadthing.EnvIngestURL, base, sandbox.IngestPrefix)
	fmt.Println()

	server := &http.Server{
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("uploadthing-sandbox listening", zap.String("addr", ln.Addr().String()))
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return server.Shutdown(shutdownCtx)
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// displayHost turns wildcard listen addresses into something a client on the
// same machine can dial.
func displayHost(addr net.Addr) string {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
