package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/game-progress/internal/handler"
)

func newInvokeCmd() *cobra.Command {
	var eventPath string
	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Run the progress function once against an event",
		Long: `invoke reads one event of the form
  {"httpMethod": "POST", "queryStringParameters": {...}, "body": "..."}
from --event (or stdin when "-") and prints the response record as JSON.
A store failure exits non-zero.`,
		Args: cobra.NoArgs,
		RunE: runWithApp(func(cmd *cobra.Command, appInstance App) error {
			req, err := readEvent(cmd.InOrStdin(), eventPath)
			if err != nil {
				return err
			}
			resp, err := appInstance.Handle(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("invoke: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(resp); err != nil {
				return fmt.Errorf("write response: %w", err)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&eventPath, "event", "-", `event file, or "-" for stdin`)
	return cmd
}

func readEvent(stdin io.Reader, path string) (handler.Request, error) {
	var data []byte
	var err error
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return handler.Request{}, fmt.Errorf("read event: %w", err)
	}
	var req handler.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return handler.Request{}, fmt.Errorf("decode event: %w", err)
	}
	return req, nil
}
