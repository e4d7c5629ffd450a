// Package main boots the kokoro-mcp service: it loads configuration, wires
// the synthesis engine, the artifact pipeline, and the retention sweeper,
// and serves the MCP tools over the configured transport.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/voxworks/kokoro-mcp/internal/artifact"
	"github.com/voxworks/kokoro-mcp/internal/audio"
	"github.com/voxworks/kokoro-mcp/internal/config"
	"github.com/voxworks/kokoro-mcp/internal/core"
	"github.com/voxworks/kokoro-mcp/internal/metrics"
	"github.com/voxworks/kokoro-mcp/internal/objectstore"
	"github.com/voxworks/kokoro-mcp/internal/server"
	"github.com/voxworks/kokoro-mcp/internal/tts"
)

const (
	metricsNamespace = "kokoro"

	bootstrapLogName   = "kokoro-mcp-bootstrap.log"
	logFileNameDefault = "kokoro-mcp.log"
	logFileNameVerbose = "kokoro-mcp-verbose.log"
)

// Flag names.
const (
	flagConfig        = "config"
	flagTransport     = "transport"
	flagHost          = "host"
	flagPort          = "port"
	flagDisableUpload = "disable-upload"
	flagVerbose       = "verbose"
)

// Flag descriptions.
const (
	flagConfigDesc        = "Path to a TOML configuration file (overrides the configurator lookup)"
	flagTransportDesc     = "Serving transport: stdio, streamable-http, or sse"
	flagHostDesc          = "Host to bind the HTTP transports to"
	flagPortDesc          = "Port to listen on"
	flagDisableUploadDesc = "Disable object store uploads regardless of configuration"
	flagVerboseDesc       = "Enable verbose logging"
)

// Log formats.
const (
	logFmtConfigLoaded   = "Configuration loaded: storage dir '%s', transport '%s', upload backend '%s' (enabled=%v)"
	logFmtStoreValidated = "Object store '%s' validated, bucket '%s'"
	logMsgUploadsOff     = "Uploads are disabled, artifacts stay local"
	logFmtInitialized    = "kokoro-mcp successfully initialized, serving over transport '%s'"
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	configPath    string
	transport     string
	host          string
	port          int
	disableUpload bool
	verbose       bool
}

func main() {
	flags := &appFlags{
		configPath:    "",
		transport:     "",
		host:          "",
		port:          0,
		disableUpload: false,
		verbose:       false,
	}

	rootCmd := &cobra.Command{
		Use:   "kokoro-mcp",
		Short: "Kokoro text-to-speech MCP server",
		Long: `Kokoro text-to-speech MCP server.

Exposes the tools text_to_speech and list_voices over stdio, streamable
HTTP, or SSE. Synthesized audio is converted to MP3, kept on disk, and
optionally archived to an S3 or NATS object store. Artifacts older than
the configured retention window are swept in the background.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), flags)
		},
	}

	rootCmd.Flags().StringVar(&flags.configPath, flagConfig, "", flagConfigDesc)
	rootCmd.Flags().StringVar(&flags.transport, flagTransport, "", flagTransportDesc)
	rootCmd.Flags().StringVar(&flags.host, flagHost, "", flagHostDesc)
	rootCmd.Flags().IntVar(&flags.port, flagPort, 0, flagPortDesc)
	rootCmd.Flags().BoolVar(&flags.disableUpload, flagDisableUpload, false, flagDisableUploadDesc)
	rootCmd.Flags().BoolVar(&flags.verbose, flagVerbose, false, flagVerboseDesc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, flags *appFlags) error {
	cfg, log, setupErr := setup(flags)
	if setupErr != nil {
		return setupErr
	}

	defer closeLogger(log)

	log.Info(
		logFmtConfigLoaded,
		cfg.Storage.Dir,
		cfg.Server.Transport,
		cfg.Upload.Backend,
		cfg.Upload.Enabled,
	)

	store, storeCleanup, storeErr := buildArchiveStore(ctx, cfg, log)
	if storeErr != nil {
		return storeErr
	}

	defer storeCleanup()

	met := metrics.NewProm(metricsNamespace)

	manager, managerErr := artifact.NewManager(
		audio.NewConverter(log),
		store,
		artifact.ManagerConfig{
			StorageDir:        cfg.Storage.Dir,
			UploadEnabled:     cfg.Upload.Enabled,
			DeleteAfterUpload: cfg.Storage.DeleteAfterUpload,
			KeyPrefix:         cfg.Upload.Prefix,
			UploadBackend:     cfg.Upload.Backend,
			UploadTimeout:     cfg.Upload.Timeout(),
		},
		met,
		log,
	)
	if managerErr != nil {
		return fmt.Errorf("failed to create artifact manager: %w", managerErr)
	}

	sweeper := artifact.NewSweeper(artifact.SweeperConfig{
		Dir:      cfg.Storage.Dir,
		MaxAge:   cfg.Storage.RetentionAge(),
		Interval: cfg.Storage.SweepInterval(),
	}, met, log)

	engine := tts.NewEngine(cfg.TTS, log)
	srv := server.New(engine, manager, cfg.Server, met, log)

	log.System(logFmtInitialized, cfg.Server.Transport)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var waitGroup sync.WaitGroup

	waitGroup.Add(1)

	go func() {
		defer waitGroup.Done()

		sweeper.Run(runCtx)
	}()

	runErr := srv.Run(runCtx)

	cancel()
	waitGroup.Wait()

	if runErr != nil {
		return fmt.Errorf("server failed: %w", runErr)
	}

	return nil
}

// setup loads the configuration, applies flag overrides, and opens the
// service logger.
func setup(flags *appFlags) (*config.Config, *logger.Logger, error) {
	bootstrapLog, bootErr := logger.New(os.TempDir(), bootstrapLogName)
	if bootErr != nil {
		return nil, nil, fmt.Errorf("failed to create bootstrap logger: %w", bootErr)
	}

	cfg, cfgErr := loadConfig(flags.configPath, bootstrapLog)
	if cfgErr != nil {
		bootstrapLog.Error("Failed to load configuration: %v", cfgErr)

		return nil, nil, cfgErr
	}

	applyFlagOverrides(cfg, flags)

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	logDir := cfg.Paths.BaseLogsDir
	if logDir == "" {
		logDir = os.TempDir()
	}

	logFileName := logFileNameDefault
	if flags.verbose {
		logFileName = logFileNameVerbose
	}

	log, logErr := logger.New(logDir, logFileName)
	if logErr != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", logErr)
	}

	return cfg, log, nil
}

// loadConfig prefers an explicit file over the configurator lookup.
func loadConfig(path string, bootstrapLog *logger.Logger) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}

	return config.Load(bootstrapLog)
}

func applyFlagOverrides(cfg *config.Config, flags *appFlags) {
	if flags.transport != "" {
		cfg.Server.Transport = flags.transport
	}

	if flags.host != "" {
		cfg.Server.Host = flags.host
	}

	if flags.port != 0 {
		cfg.Server.Port = flags.port
	}

	if flags.disableUpload {
		cfg.Upload.Enabled = false
	}
}

// buildArchiveStore creates and validates the configured archive backend.
// Validation runs against the live store so misconfiguration surfaces at
// startup instead of on the first request.
func buildArchiveStore(
	ctx context.Context,
	cfg *config.Config,
	log *logger.Logger,
) (core.ArchiveStore, func(), error) {
	if !cfg.Upload.Enabled {
		log.Info(logMsgUploadsOff)

		return nil, func() {}, nil
	}

	store, cleanup, buildErr := newArchiveStore(ctx, cfg)
	if buildErr != nil {
		return nil, nil, buildErr
	}

	validateCtx, cancel := context.WithTimeout(ctx, cfg.Upload.Timeout())
	defer cancel()

	validateErr := store.Validate(validateCtx)
	if validateErr != nil {
		cleanup()

		return nil, nil, fmt.Errorf("object store validation failed: %w", validateErr)
	}

	log.Info(logFmtStoreValidated, cfg.Upload.Backend, cfg.Upload.Bucket)

	return store, cleanup, nil
}

func newArchiveStore(ctx context.Context, cfg *config.Config) (core.ArchiveStore, func(), error) {
	if cfg.Upload.Backend == config.BackendNATS {
		return newNATSStore(cfg)
	}

	store, storeErr := objectstore.NewS3Store(ctx, objectstore.S3Options{
		Bucket:    cfg.Upload.Bucket,
		Endpoint:  cfg.Upload.Endpoint,
		Region:    cfg.Upload.Region,
		AccessKey: cfg.Upload.AccessKey,
		SecretKey: cfg.Upload.SecretKey,
	})
	if storeErr != nil {
		return nil, nil, fmt.Errorf("failed to create S3 store: %w", storeErr)
	}

	return store, func() {}, nil
}

func newNATSStore(cfg *config.Config) (core.ArchiveStore, func(), error) {
	conn, connErr := nats.Connect(cfg.Upload.NATSURL)
	if connErr != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", connErr)
	}

	jetstreamContext, jsErr := conn.JetStream()
	if jsErr != nil {
		conn.Close()

		return nil, nil, fmt.Errorf("failed to open JetStream: %w", jsErr)
	}

	store, storeErr := objectstore.NewNATSStore(jetstreamContext, cfg.Upload.Bucket)
	if storeErr != nil {
		conn.Close()

		return nil, nil, fmt.Errorf("failed to open NATS object store: %w", storeErr)
	}

	return store, conn.Close, nil
}

func closeLogger(log *logger.Logger) {
	closeErr := log.Close()
	if closeErr != nil {
		fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
	}
}
