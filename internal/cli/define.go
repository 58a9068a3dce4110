package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var defineCmd = &cobra.Command{
	Use:   "define",
	Short: "Create the index and send type mappings",
	Long: `Create the search index if it does not exist and send the mapping of
every indexed type. Types with a custom mapping in the config use it
instead of the derived one.`,
	Run: runDefine,
}

func runDefine(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initFullContext()
	defer c.Close()

	svc := c.newService("cli")
	if err := svc.DefineIndexAndMappings(ctx); err != nil {
		exitError("failed to define index: %v", err)
	}

	n := 0
	for _, spec := range c.Config.Registry().Indexed() {
		n++
		cyan.Printf("  %s\n", spec.Name)
	}
	green.Printf("Defined index %q with %d type mappings\n", c.Config.Index.Name, n)
}
