// Package cli implements the command-line interface for indexsync.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kilupskalvis/indexsync/internal/config"
	"github.com/kilupskalvis/indexsync/internal/core"
	"github.com/kilupskalvis/indexsync/internal/mapping"
	"github.com/kilupskalvis/indexsync/internal/queue"
	"github.com/kilupskalvis/indexsync/internal/store"
	"github.com/kilupskalvis/indexsync/internal/weaviate"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config *config.Config
	Logger *slog.Logger
	Store  *store.Store
	Client weaviate.ClientInterface
	Mapper *mapping.Mapper
	Queue  *queue.Queue
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.Queue != nil {
		c.Queue.Close()
	}
	if c.Store != nil {
		c.Store.Close()
	}
}

// initContext loads config, sets up logging and opens the content store
func initContext() *cmdContext {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitError("%v", err)
	}
	logger := newLogger(cfg.Log)

	st, err := store.New(cfg.DatabasePath(), cfg.Registry())
	if err != nil {
		exitError("failed to open store: %v", err)
	}
	if err := st.Initialize(); err != nil {
		st.Close()
		exitError("failed to initialize store: %v", err)
	}

	return &cmdContext{Config: cfg, Logger: logger, Store: st}
}

// initFullContext also creates the Weaviate client, the mapper and the
// queue when one is configured
func initFullContext() *cmdContext {
	ctx := initContext()

	client, err := weaviate.NewClient(ctx.Config.WeaviateURL, ctx.Config.Index.Name)
	if err != nil {
		ctx.Close()
		exitError("failed to create Weaviate client: %v", err)
	}
	ctx.Client = weaviate.NewRetryClient(client, nil)

	ctx.Mapper = mapping.New(ctx.Config.Registry(),
		mapping.WithParentLookup(ctx.Store),
		mapping.WithCustomMappings(ctx.Config.CustomMappings()),
	)

	if ctx.Config.Queue.Enabled {
		q, err := queue.Open(ctx.Config.QueuePath())
		if err != nil {
			ctx.Close()
			exitError("failed to open queue: %v", err)
		}
		ctx.Queue = q
	}
	return ctx
}

// newService creates a sync engine labelled with role in metrics. Each
// goroutine that indexes needs its own.
func (c *cmdContext) newService(role string) *core.Service {
	return core.NewService(c.Client, c.Mapper, core.Options{
		Enabled:  c.Config.Enabled,
		Settings: c.Config.IndexSettings(),
		Logger:   c.Logger,
		Resolver: c.Store,
		Role:     role,
	})
}

// hooks wires lifecycle hooks to svc, queueing when a queue is open.
func (c *cmdContext) hooks(svc *core.Service) *core.Hooks {
	if c.Queue == nil {
		return core.NewHooks(svc, c.Store, nil)
	}
	return core.NewHooks(svc, c.Store, c.Queue)
}

// newLogger builds the process logger; flags win over the config file
func newLogger(lc config.LogConfig) *slog.Logger {
	if logLevel != "" {
		lc.Level = logLevel
	}
	if logFormat != "" {
		lc.Format = logFormat
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: lc.SlogLevel()}
	if strings.ToLower(lc.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

var rootCmd = &cobra.Command{
	Use:   "indexsync",
	Short: "Keep a Weaviate search index in sync with content",
	Long: `indexsync keeps a Weaviate search index consistent with a versioned
content store. Records are indexed once per stage (Draft and Published),
full reindexes remove documents that no longer match any record, and
searches resolve hits back to live records.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", envOrDefault("INDEXSYNC_CONFIG", config.ConfigFile), "Config file (env: INDEXSYNC_CONFIG)")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug|info|warn|error), overrides config")
	pf.StringVar(&logFormat, "log-format", "", "Log format (json|text), overrides config")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(defineCmd)
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(reindexItemsCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(serveCmd)
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// envOrDefault returns the value of the environment variable key, or defaultVal if unset.
func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
