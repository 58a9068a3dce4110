package cli

import (
	"fmt"

	"github.com/kilupskalvis/indexsync/internal/queue"
	"github.com/spf13/cobra"
)

var workerOnce bool

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process queued index jobs",
	Long: `Process index jobs queued by record changes. Without --once the worker
keeps polling the queue until interrupted.`,
	Run: runWorker,
}

var workerFailedCmd = &cobra.Command{
	Use:   "failed",
	Short: "List index jobs that failed",
	Run:   runWorkerFailed,
}

func init() {
	workerCmd.Flags().BoolVar(&workerOnce, "once", false, "Drain the queue once and exit")
	workerCmd.AddCommand(workerFailedCmd)
}

func newWorker(c *cmdContext) *queue.Worker {
	if c.Queue == nil {
		c.Close()
		exitError("the queue is not enabled, set queue.enabled in %s", c.Config.Path())
	}
	return queue.NewWorker(c.Queue, c.hooks(c.newService("worker")), c.Logger, c.Config.QueueInterval())
}

func runWorker(cmd *cobra.Command, args []string) {
	ctx, stop := signalContext()
	defer stop()
	c := initFullContext()
	defer c.Close()

	w := newWorker(c)
	if workerOnce {
		n, err := w.RunOnce(ctx)
		if err != nil {
			exitError("failed to drain queue: %v", err)
		}
		green.Printf("Processed %d index jobs\n", n)
		return
	}

	logPending(c)
	c.Logger.Info("worker started", "queue", c.Config.QueuePath(), "interval", c.Config.QueueInterval())
	if err := w.Run(ctx); err != nil {
		exitError("worker stopped: %v", err)
	}
	c.Logger.Info("worker stopped")
}

func runWorkerFailed(cmd *cobra.Command, args []string) {
	c := initFullContext()
	defer c.Close()
	if c.Queue == nil {
		exitError("the queue is not enabled")
	}

	failed, err := c.Queue.Failed()
	if err != nil {
		exitError("failed to read failed jobs: %v", err)
	}
	if len(failed) == 0 {
		fmt.Println("No failed jobs")
		return
	}
	for _, f := range failed {
		red.Printf("%s #%s (%s)", f.Job.Type, f.Job.ID, f.Job.Stage)
		fmt.Printf("  %s\n", f.Error)
	}
}

// logPending reports queued jobs waiting at startup.
func logPending(c *cmdContext) {
	if n, err := c.Queue.Pending(); err == nil && n > 0 {
		c.Logger.Info("jobs waiting in queue", "count", n)
	}
}
