package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var sourceFormat string
	var optionFlags []string
	var wait bool

	cmd := &cobra.Command{
		Use:   "submit <file> <target-format>",
		Short: "Upload a file and request a conversion",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, target := args[0], args[1]

			source := strings.TrimSpace(sourceFormat)
			if source == "" {
				source = strings.TrimPrefix(filepath.Ext(path), ".")
			}
			if source == "" {
				return fmt.Errorf("cannot infer source format from %q; pass --source-format", path)
			}

			options, err := parseOptions(optionFlags)
			if err != nil {
				return err
			}

			client, err := ctx.client()
			if err != nil {
				return err
			}

			upload, err := client.Upload(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("upload: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s (%d bytes) as %s\n", filepath.Base(path), upload.Size, upload.FileID)

			job, err := client.Convert(cmd.Context(), upload.FileID, source, target, options)
			if err != nil {
				return fmt.Errorf("submit: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s queued (%s -> %s)\n", job.ID, job.SourceFormat, job.TargetFormat)

			if !wait {
				return nil
			}
			return waitForJob(cmd, client, job.ID)
		},
	}

	cmd.Flags().StringVar(&sourceFormat, "source-format", "", "Source format (default: file extension)")
	cmd.Flags().StringArrayVar(&optionFlags, "option", nil, "Conversion option as key=value (repeatable)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Block until the job finishes")
	return cmd
}

func parseOptions(flags []string) (map[string]string, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	options := make(map[string]string, len(flags))
	for _, flag := range flags {
		key, value, ok := strings.Cut(flag, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid option %q; expected key=value", flag)
		}
		options[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return options, nil
}

func waitForJob(cmd *cobra.Command, client *apiClient, jobID string) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastProgress float64 = -1
	for {
		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case <-ticker.C:
		}

		status, err := client.Status(cmd.Context(), jobID)
		if err != nil {
			return err
		}
		job := status.Job
		if job.Progress != lastProgress {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s %.0f%%\n", job.Status, job.Progress)
			lastProgress = job.Progress
		}

		switch job.Status {
		case "completed":
			fmt.Fprintf(cmd.OutOrStdout(), "Completed: %s\n", status.DownloadURL)
			return nil
		case "failed":
			return fmt.Errorf("job failed: %s", job.Error)
		}
	}
}
