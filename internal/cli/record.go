package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kilupskalvis/indexsync/internal/core"
	"github.com/kilupskalvis/indexsync/internal/models"
	"github.com/kilupskalvis/indexsync/internal/store"
	"github.com/spf13/cobra"
)

var (
	recordTitle  string
	recordParent string
	recordSort   int
	recordFields []string
	recordData   string
	recordGroups []string
	recordStage  string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Change content records",
	Long: `Write, delete, publish and unpublish records in the content store.
Each change is reflected in the search index, either directly or through
the queue when it is enabled.`,
}

var recordPutCmd = &cobra.Command{
	Use:   "put <type> <id>",
	Short: "Create or update the draft of a record",
	Long: `Create or update the draft of a record.

Examples:
  indexsync record put Page 1 --title "About us" --field Content="<p>Hello</p>"
  indexsync record put Page 2 --parent 1 --data '{"Title":"Team"}'
  indexsync record put File 9 --title Report.pdf --group staff`,
	Args: cobra.ExactArgs(2),
	Run:  runRecordPut,
}

var recordDeleteCmd = &cobra.Command{
	Use:   "delete <type> <id>",
	Short: "Delete a record from a stage",
	Args:  cobra.ExactArgs(2),
	Run:   runRecordDelete,
}

var recordPublishCmd = &cobra.Command{
	Use:   "publish <type> <id>",
	Short: "Publish the draft of a record",
	Args:  cobra.ExactArgs(2),
	Run:   runRecordPublish,
}

var recordUnpublishCmd = &cobra.Command{
	Use:   "unpublish <type> <id>",
	Short: "Remove the published version of a record",
	Args:  cobra.ExactArgs(2),
	Run:   runRecordUnpublish,
}

func init() {
	recordCmd.AddCommand(recordPutCmd, recordDeleteCmd, recordPublishCmd, recordUnpublishCmd)

	f := recordPutCmd.Flags()
	f.StringVar(&recordTitle, "title", "", "Title of the record")
	f.StringVar(&recordParent, "parent", "", "Parent record id")
	f.IntVar(&recordSort, "sort", 0, "Sort position among siblings")
	f.StringArrayVarP(&recordFields, "field", "f", nil, "Field=Value, repeat for multiple")
	f.StringVar(&recordData, "data", "", "Record fields as a JSON object")
	f.StringSliceVar(&recordGroups, "group", nil, "Groups allowed to view the record")

	recordDeleteCmd.Flags().StringVar(&recordStage, "stage", "draft", "Stage to delete from (draft|published)")
}

// recordHooks opens the full context and the lifecycle hooks for one change.
func recordHooks(typeName string) (*cmdContext, *core.Service, *core.Hooks) {
	c := initFullContext()
	if !c.Config.Registry().Has(typeName) {
		c.Close()
		exitError("unknown type %q", typeName)
	}
	svc := c.newService("cli")
	return c, svc, c.hooks(svc)
}

func reportIndexing(c *cmdContext, svc *core.Service) {
	switch {
	case !svc.Enabled():
		fmt.Println("Search indexing is disabled")
	case c.Queue != nil:
		fmt.Println("Index update queued, run 'indexsync worker' to process it")
	default:
		printEngineState(svc)
	}
}

func runRecordPut(cmd *cobra.Command, args []string) {
	ctx := core.WithStage(context.Background(), models.StageDraft)
	c, svc, hooks := recordHooks(args[0])
	defer c.Close()

	data := map[string]any{}
	if recordData != "" {
		if err := json.Unmarshal([]byte(recordData), &data); err != nil {
			exitError("invalid --data: %v", err)
		}
	}
	for _, f := range recordFields {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" {
			exitError("invalid field %q, expected Field=Value", f)
		}
		data[k] = v
	}
	if recordTitle != "" {
		data[models.FieldTitle] = recordTitle
	}

	rec := &store.Record{
		Type:         args[0],
		ID:           args[1],
		ParentID:     recordParent,
		Sort:         recordSort,
		Data:         data,
		ViewerGroups: recordGroups,
	}
	if existing, err := c.Store.Get(ctx, rec.Type, rec.ID, models.StageDraft); err == nil {
		rec.Created = existing.Created
	}
	if err := c.Store.Save(ctx, rec); err != nil {
		exitError("%v", err)
	}
	hooks.OnAfterWrite(ctx, rec)

	green.Printf("Saved %s #%s\n", rec.Type, rec.ID)
	reportIndexing(c, svc)
}

func runRecordDelete(cmd *cobra.Command, args []string) {
	stage, err := models.ParseStage(recordStage)
	if err != nil {
		exitError("%v", err)
	}
	ctx := core.WithStage(context.Background(), stage)
	c, svc, hooks := recordHooks(args[0])
	defer c.Close()

	rec, err := c.Store.Delete(ctx, args[0], args[1], stage)
	if err != nil {
		exitError("%v", err)
	}
	removed := hooks.OnAfterDelete(ctx, rec)

	green.Printf("Deleted %s #%s from %s\n", rec.Type, rec.ID, stage)
	if svc.Enabled() && !removed {
		yellow.Println("The search document could not be removed")
	}
	printEngineState(svc)
}

func runRecordPublish(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c, svc, hooks := recordHooks(args[0])
	defer c.Close()

	rec, err := c.Store.Publish(ctx, args[0], args[1])
	if err != nil {
		exitError("%v", err)
	}
	hooks.OnAfterPublish(ctx, rec)

	green.Printf("Published %s #%s\n", rec.Type, rec.ID)
	reportIndexing(c, svc)
}

func runRecordUnpublish(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c, svc, hooks := recordHooks(args[0])
	defer c.Close()

	rec, err := c.Store.Unpublish(ctx, args[0], args[1])
	if err != nil {
		exitError("%v", err)
	}
	if draft, err := c.Store.Get(ctx, rec.Type, rec.ID, models.StageDraft); err == nil {
		hooks.OnAfterUnpublish(ctx, draft)
	} else if svc.Enabled() {
		svc.Remove(ctx, rec, models.StagePublished)
	}

	green.Printf("Unpublished %s #%s\n", rec.Type, rec.ID)
	reportIndexing(c, svc)
}
