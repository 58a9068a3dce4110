package cli

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kilupskalvis/indexsync/internal/core"
	"github.com/spf13/cobra"
)

var (
	reindexType  string
	reindexQuiet bool

	itemsIDs     []string
	itemsBase    string
	itemsRecurse bool
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the index from the content store",
	Long: `Index every record of every indexed type in both stages, then remove
documents that were not touched by this run.

Examples:
  indexsync reindex
  indexsync reindex --type Page`,
	Run: runReindex,
}

var reindexItemsCmd = &cobra.Command{
	Use:   "reindex-items",
	Short: "Reindex specific records",
	Long: `Reindex the records with the given ids. Each id is looked up in the base
type and its subtypes. With --recurse the children of each record are
reindexed too.

Examples:
  indexsync reindex-items --base Page --ids 4,7
  indexsync reindex-items --base Page --ids 1 --recurse`,
	Run: runReindexItems,
}

func init() {
	reindexCmd.Flags().StringVarP(&reindexType, "type", "t", "", "Reindex one type only")
	reindexCmd.Flags().BoolVarP(&reindexQuiet, "quiet", "q", false, "Do not print progress")

	f := reindexItemsCmd.Flags()
	f.StringSliceVar(&itemsIDs, "ids", nil, "Record ids, comma separated")
	f.StringVar(&itemsBase, "base", "", "Base type of the records")
	f.BoolVarP(&itemsRecurse, "recurse", "r", false, "Reindex children too")
	f.BoolVarP(&reindexQuiet, "quiet", "q", false, "Do not print progress")
	reindexItemsCmd.MarkFlagRequired("ids")
	reindexItemsCmd.MarkFlagRequired("base")
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runReindex(cmd *cobra.Command, args []string) {
	ctx, stop := signalContext()
	defer stop()
	c := initFullContext()
	defer c.Close()

	svc := c.newService("cli")
	rec := core.NewReconciler(svc, c.Store)
	progress := progressPrinter(reindexQuiet)

	var err error
	if reindexType == "" {
		err = rec.ReindexAll(ctx, progress)
	} else {
		spec, ok := c.Config.Registry().Spec(reindexType)
		if !ok || !spec.Searchable {
			exitError("type %q is not indexed", reindexType)
		}
		err = rec.ReindexType(ctx, spec, progress)
	}
	printEngineState(svc)
	if err != nil {
		exitError("reindex failed: %v", err)
	}
}

func runReindexItems(cmd *cobra.Command, args []string) {
	ctx, stop := signalContext()
	defer stop()
	c := initFullContext()
	defer c.Close()

	var ids []string
	for _, id := range itemsIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	svc := c.newService("cli")
	rec := core.NewReconciler(svc, c.Store)
	err := rec.ReindexItems(ctx, ids, itemsBase, itemsRecurse, progressPrinter(reindexQuiet))
	printEngineState(svc)
	if err != nil {
		exitError("reindex failed: %v", err)
	}
}
