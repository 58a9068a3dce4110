package cli

import (
	"context"

	"github.com/kilupskalvis/indexsync/internal/models"
	"github.com/spf13/cobra"
)

var (
	purgeType  string
	purgeStage string
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete the search documents of a type",
	Long: `Delete every search document of a type from the index. With --stage only
the documents of that stage are deleted; the type must be versioned.
Records in the content store are not touched; run 'indexsync reindex'
to rebuild the documents.

Examples:
  indexsync purge --type Page
  indexsync purge --type Page --stage published`,
	Run: runPurge,
}

func init() {
	purgeCmd.Flags().StringVarP(&purgeType, "type", "t", "", "Type whose documents are deleted")
	purgeCmd.Flags().StringVar(&purgeStage, "stage", "", "Only delete documents of this stage (draft|published)")
	purgeCmd.MarkFlagRequired("type")
}

func runPurge(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initFullContext()
	defer c.Close()

	var stage models.Stage
	if purgeStage != "" {
		s, err := models.ParseStage(purgeStage)
		if err != nil {
			exitError("%v", err)
		}
		stage = s
	}

	svc := c.newService("cli")
	if !svc.Enabled() {
		yellow.Println("Search indexing is disabled, nothing purged")
		return
	}
	n, err := svc.Purge(ctx, purgeType, stage)
	if err != nil {
		exitError("%v", err)
	}
	green.Printf("Deleted %d %s documents\n", n, purgeType)
}
