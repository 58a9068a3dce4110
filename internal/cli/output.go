package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/kilupskalvis/indexsync/internal/core"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	cyan   = color.New(color.FgCyan)
)

// progressPrinter prints reconciliation steps, highlighting removals.
func progressPrinter(quiet bool) core.ProgressFunc {
	return func(msg string) {
		if quiet {
			return
		}
		switch {
		case strings.Contains(msg, "failed"), strings.HasSuffix(msg, "not found"):
			red.Println(msg)
		case strings.HasPrefix(msg, "Removing"):
			yellow.Println(msg)
		case strings.HasPrefix(msg, "Done"):
			green.Println(msg)
		default:
			fmt.Println(msg)
		}
	}
}

// printEngineState warns when the engine stopped talking to the backend.
func printEngineState(svc *core.Service) {
	if !svc.Connected() {
		red.Println("Search backend disconnected, remaining writes were skipped. See the log for details.")
	}
}
