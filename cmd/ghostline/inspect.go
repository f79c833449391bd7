package main

import (
	"encoding/hex"
	"fmt"

	"github.com/JOBOYA/ghostline/internal/container"
	"github.com/spf13/cobra"
)

func newInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <file.ghostline>",
		Short: "Print a container's header and frame count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reader, err := container.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening container: %w", err)
			}
			defer reader.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "format_version: %d\n", container.FormatVersion)
			fmt.Fprintf(out, "started_at_ms:  %d\n", reader.Header.StartedAt)
			if reader.Header.GitSHA != nil {
				fmt.Fprintf(out, "git_sha:        %s\n", hex.EncodeToString(reader.Header.GitSHA[:]))
			}
			if reader.Header.ParentRunID != nil {
				fmt.Fprintf(out, "parent_run_id:  %s\n", hex.EncodeToString(reader.Header.ParentRunID[:]))
			}
			if reader.Header.ForkAtStep != nil {
				fmt.Fprintf(out, "fork_at_step:   %d\n", *reader.Header.ForkAtStep)
			}
			fmt.Fprintf(out, "frame_count:    %d\n", reader.FrameCount())
			return nil
		},
	}
	return cmd
}
