package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/Brownie44l1/depth-api/internal/config"
	"github.com/Brownie44l1/depth-api/internal/handlers"
	"github.com/Brownie44l1/depth-api/internal/inference"
	"github.com/Brownie44l1/depth-api/internal/logging"
	"github.com/Brownie44l1/depth-api/internal/model"
)

const (
	name        = "depth-api"
	idleTimeout = 120 * time.Second
)

var (
	version = "v0.0.1-default"
	commit  = ""

	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to the YAML config file (optional)",
		Sources: cli.EnvVars("DEPTH_CONFIG"),
	}

	addrFlag = &cli.StringFlag{
		Name:  "addr",
		Usage: "Address to listen on, overrides server.addr",
	}

	modelFlag = &cli.StringFlag{
		Name:    "model",
		Aliases: []string{"m"},
		Usage:   "Path to the ONNX model, overrides model.path",
	}

	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level [debug, info, warn, error], overrides log.level",
	}
)

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    name,
		Usage:   "Serve anesthesia depth predictions from an ONNX model",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Flags: []cli.Flag{
			configFlag,
			addrFlag,
			modelFlag,
			logLevelFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			logger := logging.New(cfg.Log, os.Stderr)
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger, defaultDeps())
		},
	}
}

// loadConfig layers file, env and flags, then validates the result.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String(configFlag.Name))
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyFlags(cmd *cli.Command, cfg *config.Config) {
	if v := cmd.String(addrFlag.Name); v != "" {
		cfg.Server.Addr = v
	}
	if v := cmd.String(modelFlag.Name); v != "" {
		cfg.Model.Path = v
	}
	if v := cmd.String(logLevelFlag.Name); v != "" {
		cfg.Log.Level = v
	}
}

type deps struct {
	loadModel func(path string, opts model.LoadOptions) (model.CompiledModel, error)
	listen    func(network, address string) (net.Listener, error)
}

func defaultDeps() deps {
	return deps{
		loadModel: model.Load,
		listen:    net.Listen,
	}
}

// serve loads the model, then binds and serves until ctx is done. Nothing
// is bound unless the model loaded.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger, d deps) error {
	logger.Info("loading model", zap.String("path", cfg.Model.Path))
	compiled, err := d.loadModel(cfg.Model.Path, model.LoadOptions{
		RuntimeLibrary: cfg.Model.RuntimeLibrary,
		IntraOpThreads: cfg.Model.IntraOpThreads,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize model: %w", err)
	}

	handle, err := model.NewHandle(compiled)
	if err != nil {
		return err
	}
	defer func() {
		if err := handle.Close(); err != nil {
			logger.Warn("failed to release model", zap.Error(err))
		}
	}()

	contract := handle.Contract()
	logger.Info("model loaded",
		zap.String("input", contract.Input.Name),
		zap.Int64s("input_shape", contract.Input.Shape),
		zap.String("output", contract.Output.Name),
		zap.Int64s("output_shape", contract.Output.Shape),
	)

	pipeline, err := inference.NewPipeline(handle, inference.Options{
		Workers:   cfg.Inference.Workers,
		Timeout:   cfg.Inference.Timeout,
		CacheSize: cfg.Inference.CacheSize,
	}, logger.Named("inference"))
	if err != nil {
		return err
	}

	h := handlers.NewHandler(pipeline, cfg.Classifier, cfg.Server.MaxBodyBytes, logger.Named("handlers"))

	ln, err := d.listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Addr, err)
	}

	srv := &http.Server{
		Handler:        handlers.NewRouter(h, cfg.Server.CORSOrigins, logger.Named("http")),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    idleTimeout,
		MaxHeaderBytes: 1 << 20,
		ErrorLog:       zap.NewStdLog(logger.Named("http")),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	logger.Info("server started",
		zap.String("addr", ln.Addr().String()),
		zap.Int("workers", pipeline.Workers()),
		zap.Duration("timeout", cfg.Inference.Timeout),
	)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
