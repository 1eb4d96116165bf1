package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// NewImportCmd создаёт группу команд для управления imports (runs).
func NewImportCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "import",
		Aliases: []string{"imports"},
		Short:   "Manage subscription imports",
	}

	cmd.AddCommand(
		newImportListCmd(clientFn, outputFn),
		newImportCreateCmd(clientFn, outputFn),
		newImportShowCmd(clientFn, outputFn),
		newImportStartCmd(clientFn, outputFn),
		newImportPauseCmd(clientFn, outputFn),
		newImportRetryCmd(clientFn, outputFn),
		newImportAutoResumeCmd(clientFn, outputFn),
		newImportWatchCmd(clientFn, outputFn),
	)

	return cmd
}

var importHeaders = []string{"ID", "STATUS", "PROGRESS", "SUCCESS", "ERROR", "CREATED", "FINISHED"}

func importRow(r ImportResponse) []string {
	return []string{
		r.ID,
		r.Status,
		Progress(r.Processed, r.Total),
		Count(r.Success),
		Count(r.Error),
		Ago(&r.CreatedAt),
		Ago(r.FinishedAt),
	}
}

func newImportListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var status string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List imports",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ListImports(ListImportsOpts{
				Status: status,
				Limit:  limit,
				Offset: offset,
			})
			if err != nil {
				return err
			}

			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = importRow(r)
			}

			out.Print(importHeaders, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (PENDING, RUNNING, COMPLETED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of results to skip")

	return cmd
}

func newImportCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var start bool
	var delayMs int64

	cmd := &cobra.Command{
		Use:   "create FILE",
		Short: "Upload a CSV (or JSON) list of channels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.CreateImport(args[0])
			if err != nil {
				return err
			}
			out.Success(fmt.Sprintf("Import created: %s (%s channels)", run.ID, Count(run.Total)))

			if start {
				run, err = client.StartImport(run.ID, delayMs)
				if err != nil {
					return err
				}
				out.Success("Import started")
			}

			out.Print(importHeaders, [][]string{importRow(*run)}, run)
			return nil
		},
	}

	cmd.Flags().BoolVar(&start, "start", false, "Start the import right after upload")
	cmd.Flags().Int64Var(&delayMs, "delay-ms", 0, "Delay between subscriptions in milliseconds (server default if 0)")

	return cmd
}

func newImportShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show import status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			status, err := client.GetImport(args[0])
			if err != nil {
				return err
			}

			printStatus(out, status)
			return nil
		},
	}
}

func newImportStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var delayMs int64

	cmd := &cobra.Command{
		Use:   "start ID",
		Short: "Start or restart an import",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.StartImport(args[0], delayMs)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Import started: %s", run.ID))
			out.Print(importHeaders, [][]string{importRow(*run)}, run)
			return nil
		},
	}

	cmd.Flags().Int64Var(&delayMs, "delay-ms", 0, "Delay between subscriptions in milliseconds (server default if 0)")

	return cmd
}

func newImportPauseCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "pause ID",
		Short: "Toggle pause of a running import",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			paused, err := client.TogglePause(args[0])
			if err != nil {
				return err
			}

			if out.IsJSON() {
				out.JSON(map[string]bool{"paused": paused})
				return nil
			}
			if paused {
				out.Success("Import paused")
			} else {
				out.Success("Import resumed")
			}
			return nil
		},
	}
}

func newImportRetryCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "retry ID",
		Short: "Return quota-failed channels to the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			n, err := client.RetryQuotaErrors(args[0])
			if err != nil {
				return err
			}

			if out.IsJSON() {
				out.JSON(map[string]int{"reset": n})
				return nil
			}
			out.Success(fmt.Sprintf("Requeued %s channels", Count(n)))
			return nil
		},
	}
}

func newImportAutoResumeCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "auto-resume ID",
		Short: "Resume a quota-paused import if the quota window has recovered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			resumed, err := client.AutoResume(args[0])
			if err != nil {
				return err
			}

			if out.IsJSON() {
				out.JSON(map[string]bool{"resumed": resumed})
				return nil
			}
			if resumed {
				out.Success("Import resumed")
			} else {
				out.Success("Nothing to resume yet")
			}
			return nil
		},
	}
}

func newImportWatchCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch ID",
		Short: "Poll import status until it completes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()
			ctx := cmd.Context()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				status, err := client.GetImport(args[0])
				if err != nil {
					return err
				}
				printStatus(out, status)
				if status.Run.Status == "COMPLETED" {
					return nil
				}

				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Polling interval")

	return cmd
}

// --- Helpers ---

func printStatus(out *Output, s *StatusResponse) {
	if out.IsJSON() {
		out.JSON(s)
		return
	}

	out.Table(importHeaders, [][]string{importRow(s.Run)})

	r := s.Retry
	state := r.WorkerState
	if state == "" {
		state = "-"
	}
	out.Table(
		[]string{"WORKER", "PAUSED", "PENDING", "QUOTA", "NETWORK", "AUTH", "PERMANENT", "UNKNOWN"},
		[][]string{{
			state,
			strconv.FormatBool(r.Paused),
			Count(r.PendingCount),
			Count(r.QuotaErrors),
			Count(r.NetworkErrors),
			Count(r.AuthErrors),
			Count(r.PermanentErrors),
			Count(r.UnknownErrors),
		}},
	)

	if s.Quota != nil {
		q := s.Quota
		out.Table(
			[]string{"QUOTA_USED", "QUOTA_REMAINING", "EXHAUSTED", "RESETS"},
			[][]string{{Count(q.Used), Count(q.Remaining), strconv.FormatBool(q.Exhausted), Ago(&q.ResetsAt)}},
		)
	}

	if len(s.Recent) > 0 {
		rows := make([][]string, len(s.Recent))
		for i, it := range s.Recent {
			rows[i] = []string{it.ChannelID, it.Title, it.Status, it.ErrorTag, strconv.Itoa(it.Attempts), Ago(&it.UpdatedAt)}
		}
		out.Table([]string{"CHANNEL", "TITLE", "STATUS", "TAG", "ATTEMPTS", "UPDATED"}, rows)
	}
}
