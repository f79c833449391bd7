package main

import (
	"fmt"

	"github.com/JOBOYA/ghostline/internal/fork"
	"github.com/spf13/cobra"
)

func newForkCommand() *cobra.Command {
	var step int
	cmd := &cobra.Command{
		Use:   "fork <source.ghostline> <dest.ghostline>",
		Short: "Branch a new container from a prefix of frames in an existing run",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if step < 0 {
				return fmt.Errorf("--step must be non-negative")
			}
			if err := fork.Run(args[0], args[1], step); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "forked %s at step %d -> %s\n", args[0], step, args[1])
			return nil
		},
	}
	cmd.Flags().IntVar(&step, "step", 0, "zero-based frame index to fork at (inclusive)")
	return cmd
}
