package main

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/JOBOYA/ghostline/internal/container"
	"github.com/spf13/cobra"
)

// exportedFrame is the JSON-friendly projection of frame.Frame written by export.
type exportedFrame struct {
	RequestHash   string `json:"request_hash"`
	RequestBytes  string `json:"request_bytes"`
	ResponseBytes string `json:"response_bytes"`
	LatencyMS     uint64 `json:"latency_ms"`
	Timestamp     uint64 `json:"timestamp"`
}

func newExportCommand() *cobra.Command {
	var outputPath string
	cmd := &cobra.Command{
		Use:   "export <file.ghostline>",
		Short: "Export a container's frames to JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reader, err := container.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening container: %w", err)
			}
			defer reader.Close()

			frames := make([]exportedFrame, 0, reader.FrameCount())
			for i := 0; i < reader.FrameCount(); i++ {
				f, err := reader.GetFrame(i)
				if err != nil {
					return fmt.Errorf("decoding frame %d: %w", i, err)
				}
				frames = append(frames, exportedFrame{
					RequestHash:   hex.EncodeToString(f.RequestHash[:]),
					RequestBytes:  base64.StdEncoding.EncodeToString(f.RequestBytes),
					ResponseBytes: base64.StdEncoding.EncodeToString(f.ResponseBytes),
					LatencyMS:     f.LatencyMS,
					Timestamp:     f.Timestamp,
				})
			}

			var out io.Writer = cmd.OutOrStdout()
			if outputPath != "" {
				file, err := os.Create(outputPath)
				if err != nil {
					return fmt.Errorf("creating output file: %w", err)
				}
				defer file.Close()
				out = file
			}

			encoder := json.NewEncoder(out)
			encoder.SetIndent("", "  ")
			return encoder.Encode(frames)
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output path (default: stdout)")
	return cmd
}
