package cli

import (
	"context"
	"fmt"

	"github.com/kilupskalvis/indexsync/internal/config"
	"github.com/kilupskalvis/indexsync/internal/store"
	"github.com/kilupskalvis/indexsync/internal/weaviate"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file and content store",
	Long: `Create indexsync.toml and the .indexsync data directory next to it.

The Weaviate server is contacted to record its version. An unreachable
server is reported but does not stop initialization.`,
	Run: runInit,
}

var (
	initURL   string
	initIndex string
)

func init() {
	initCmd.Flags().StringVar(&initURL, "url", "localhost:8080", "Weaviate server host")
	initCmd.Flags().StringVar(&initIndex, "index", "main", "Index name")
}

func runInit(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	cfg, err := config.Initialize(configPath, initURL)
	if err != nil {
		exitError("failed to initialize config: %v", err)
	}
	cfg.Index.Name = initIndex

	fmt.Printf("Weaviate URL: %s\n", cfg.WeaviateURL)
	client, err := weaviate.NewClient(cfg.WeaviateURL, cfg.Index.Name)
	if err != nil {
		exitError("failed to create Weaviate client: %v", err)
	}

	fmt.Printf("Connecting to Weaviate...\n")
	if err := client.Ping(ctx); err != nil {
		fmt.Printf("Warning: Could not reach Weaviate: %v\n", err)
	} else if version, err := client.GetServerVersion(ctx); err != nil {
		fmt.Printf("Warning: Could not detect Weaviate version\n")
	} else {
		cfg.ServerVersion = version.Version
		fmt.Printf("Weaviate version: %s\n", version.Version)
		if !version.SupportsFeature("bm25") {
			fmt.Printf("Warning: Server < 1.17, keyword search is unavailable\n")
		}
	}
	if !cfg.SupportsContainsAny() {
		fmt.Printf("Warning: Server < 1.21, ContainsAny filters will be rejected\n")
	}

	if err := cfg.Save(); err != nil {
		exitError("failed to save config: %v", err)
	}

	st, err := store.New(cfg.DatabasePath(), cfg.Registry())
	if err != nil {
		exitError("failed to create store: %v", err)
	}
	defer st.Close()
	if err := st.Initialize(); err != nil {
		exitError("failed to initialize store: %v", err)
	}

	fmt.Printf("\nWrote %s\n", cfg.Path())
	fmt.Printf("Index %q (class %s)\n", cfg.Index.Name, weaviate.ClassName(cfg.Index.Name))
	fmt.Printf("\nRun 'indexsync define' to create the index and its mappings.\n")
}
