package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/kilupskalvis/indexsync/internal/core"
	"github.com/kilupskalvis/indexsync/internal/models"
	"github.com/spf13/cobra"
)

var (
	searchStage       string
	searchLimit       int
	searchOffset      int
	searchPermissions bool
	searchFacets      []string
	searchFilters     []string
	searchViewer      string
	searchGroups      []string
	searchAdmin       bool
	searchJSON        bool
)

var searchCmd = &cobra.Command{
	Use:   "search [text]",
	Short: "Search the index",
	Long: `Search the index and resolve the hits to live records.

Filters are Field=Value pairs matched exactly. With --permissions, records
the viewer may not see are left out of the results.

Examples:
  indexsync search "annual report"
  indexsync search report --stage published --facet ClassName
  indexsync search --filter ClassName=Page --permissions --group editors`,
	Args: cobra.MaximumNArgs(1),
	Run:  runSearch,
}

func init() {
	f := searchCmd.Flags()
	f.StringVar(&searchStage, "stage", "", "Only return documents of this stage (draft|published)")
	f.IntVarP(&searchLimit, "limit", "n", 10, "Page length")
	f.IntVar(&searchOffset, "offset", 0, "Page start")
	f.BoolVar(&searchPermissions, "permissions", false, "Drop results the viewer cannot see")
	f.StringSliceVar(&searchFacets, "facet", nil, "Fields to aggregate, comma separated")
	f.StringArrayVar(&searchFilters, "filter", nil, "Field=Value filter, repeat for multiple")
	f.StringVar(&searchViewer, "viewer", "", "Name of the viewer")
	f.StringSliceVar(&searchGroups, "group", nil, "Groups of the viewer")
	f.BoolVar(&searchAdmin, "admin", false, "Search as an administrator")
	f.BoolVar(&searchJSON, "json", false, "Print results as JSON")
}

func runSearch(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initFullContext()
	defer c.Close()

	query := &models.Query{Limit: searchLimit, Offset: searchOffset, Facets: searchFacets}
	if len(args) == 1 {
		query.Text = args[0]
	}
	for _, f := range searchFilters {
		field, value, ok := strings.Cut(f, "=")
		if !ok || field == "" {
			exitError("invalid filter %q, expected Field=Value", f)
		}
		query.Filters = append(query.Filters, models.Filter{Field: field, Op: models.OpEqual, Value: value})
	}

	if searchStage != "" {
		stage, err := models.ParseStage(searchStage)
		if err != nil {
			exitError("%v", err)
		}
		ctx = core.WithStage(ctx, stage)
	}
	if searchViewer != "" || len(searchGroups) > 0 || searchAdmin {
		ctx = models.WithViewer(ctx, models.Viewer{Name: searchViewer, Groups: searchGroups, Admin: searchAdmin})
	}

	list := c.newService("cli").Search(ctx, query)
	if searchPermissions {
		list = list.WithPermissions()
	}
	page := list.Page(searchLimit, searchOffset)

	items, err := page.Items(ctx)
	if err != nil {
		exitError("search failed: %v", err)
	}

	list = page.List()
	if searchJSON {
		printSearchJSON(ctx, list)
		return
	}

	total, _ := page.TotalItems(ctx)
	pages, _ := page.TotalPages(ctx)
	took, _ := list.TimeTaken(ctx)

	for _, r := range items {
		cyan.Printf("%-8.3f ", r.Score())
		fmt.Printf("%s #%s", r.EntityType(), r.EntityID())
		if v, ok := r.Get(models.FieldTitle); ok && v != nil {
			fmt.Printf("  %v", v)
		}
		fmt.Println()
	}
	if len(items) == 0 {
		yellow.Println("No results")
	}
	fmt.Printf("\n%d results, page %d of %d (%s)\n", total, page.CurrentPage(), pages, took)

	aggs, _ := list.Aggregations(ctx)
	for _, field := range searchFacets {
		fmt.Printf("\n%s:\n", field)
		for _, b := range aggs[field] {
			fmt.Printf("  %-30s %d\n", b.Value, b.Count)
		}
	}
}

func printSearchJSON(ctx context.Context, list *core.ResultList) {
	rows, err := list.ToNestedMaps(ctx)
	if err != nil {
		exitError("search failed: %v", err)
	}
	total, _ := list.TotalResults(ctx)
	aggs, _ := list.Aggregations(ctx)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{
		"total":        total,
		"results":      rows,
		"aggregations": aggs,
	}); err != nil {
		exitError("failed to encode results: %v", err)
	}
}
