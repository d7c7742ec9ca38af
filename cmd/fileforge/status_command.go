package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the state of a conversion job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			status, err := client.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			job := status.Job
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			fmt.Fprintln(out, renderStatusLine("Job", statusInfo, job.ID, colorize))
			fmt.Fprintln(out, renderStatusLine("Conversion", statusInfo, job.SourceFormat+" -> "+job.TargetFormat, colorize))
			fmt.Fprintln(out, renderStatusLine("Status", statusKindFor(job.Status), job.Status, colorize))
			fmt.Fprintln(out, renderStatusLine("Progress", statusInfo, fmt.Sprintf("%.0f%%", job.Progress), colorize))
			if job.Error != "" {
				fmt.Fprintln(out, renderStatusLine("Error", statusError, job.Error, colorize))
			}
			if status.DownloadURL != "" {
				fmt.Fprintln(out, renderStatusLine("Download", statusOK, status.DownloadURL, colorize))
			}
			return nil
		},
	}
}

func statusKindFor(status string) statusKind {
	switch status {
	case "completed":
		return statusOK
	case "failed":
		return statusError
	case "processing":
		return statusWarn
	default:
		return statusInfo
	}
}
