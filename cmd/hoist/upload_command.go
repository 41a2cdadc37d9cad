package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"hoist/internal/media"
	"hoist/internal/queue"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var caption string
	var publish bool

	cmd := &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload files as drafts in the current scope",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Storage.Endpoint == "" {
				return fmt.Errorf("storage.endpoint is not configured; run 'hoist config init' and edit the file")
			}

			logger, logCloser, err := ctx.logger(cfg)
			if err != nil {
				return err
			}
			defer logCloser.Close()

			reg, release, err := ctx.openRegistry(cfg)
			if err != nil {
				return err
			}
			defer release()

			q := ctx.buildQueue(cfg, reg, logger)

			var sources []media.Source
			for _, path := range args {
				src, err := media.NewFileSource(path)
				if err != nil {
					return fmt.Errorf("open %s: %w", path, err)
				}
				sources = append(sources, src)
			}

			out := cmd.OutOrStdout()
			added, rejected := q.AddFiles(sources...)
			for _, verr := range rejected {
				fmt.Fprintf(out, "rejected: %s (%s)\n", verr.Name, verr.Reason)
			}
			if len(added) == 0 {
				return fmt.Errorf("no valid files to upload")
			}
			if caption != "" {
				if len(added) != 1 {
					return fmt.Errorf("--caption requires exactly one accepted file, got %d", len(added))
				}
				if err := q.SetCaption(added[0].ID, caption); err != nil {
					return err
				}
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			done := make(chan error, 1)
			go func() { done <- q.Run(runCtx) }()

			ticker := time.NewTicker(500 * time.Millisecond)
			defer ticker.Stop()
			interactive := stdoutIsTerminal()
		progress:
			for {
				select {
				case err := <-done:
					if err != nil {
						q.Stop()
						return err
					}
					break progress
				case <-ticker.C:
					stats := q.Stats()
					line := fmt.Sprintf("uploading: %d done, %d active, %d queued, %d failed, %d skipped (%d%%)",
						stats.Complete, stats.Active, stats.Queued+stats.Retrying, stats.Failed, stats.Skipped, stats.Percent)
					if interactive {
						fmt.Fprintf(out, "\r\033[K%s", line)
					} else {
						fmt.Fprintln(out, line)
					}
				}
			}
			if interactive {
				fmt.Fprintln(out)
			}

			fmt.Fprintln(out, renderJobs(q.Jobs(), interactive))
			stats := q.Stats()
			fmt.Fprintf(out, "batch %s: %d uploaded, %d failed, %d skipped\n",
				q.BatchID(), stats.Complete, stats.Failed, stats.Skipped)

			if publish {
				count, err := q.Publish(cmd.Context())
				if err != nil {
					return fmt.Errorf("publish drafts: %w", err)
				}
				fmt.Fprintf(out, "published %d drafts in scope %s\n", count, ctx.scope())
			}
			if stats.Failed > 0 {
				return fmt.Errorf("%d uploads failed", stats.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&caption, "caption", "", "Caption for a single uploaded file")
	cmd.Flags().BoolVar(&publish, "publish", false, "Publish all drafts in the scope after uploading")
	return cmd
}

func renderJobs(jobs []queue.Job, interactive bool) string {
	headers := []string{"File", "Kind", "Status", "Progress", "Result"}
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		result := job.PublicURL
		if job.Status == queue.StatusError {
			result = job.ErrorMessage
		}
		rows = append(rows, []string{
			job.Source.Name(),
			string(job.Kind),
			string(job.Status),
			fmt.Sprintf("%d%%", job.Progress),
			result,
		})
	}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft}
	return renderRows(headers, rows, aligns, interactive)
}
