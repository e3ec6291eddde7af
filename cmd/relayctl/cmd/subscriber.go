package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// subscriberCmd represents the subscriber command
var subscriberCmd = &cobra.Command{
	Use:   "subscriber",
	Short: "Inspect and test subscribers",
}

// testCmd fires a one-off signed request at a subscriber endpoint.
var testCmd = &cobra.Command{
	Use:   "test [subscriber-id] [payload-json]",
	Short: "Send a test webhook to a subscriber",
	Long: `Send a one-off test webhook to a subscriber's endpoint. The request is
signed and authenticated like a real delivery but nothing is recorded.

Example:
  relayctl subscriber test sub_123 '{"hello":"world"}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := map[string]any{"test": true}
		if len(args) == 2 {
			var err error
			payload, err = parsePayload(args[1])
			if err != nil {
				return fmt.Errorf("invalid payload JSON: %w", err)
			}
		}

		var resp struct {
			Success    bool   `json:"success"`
			StatusCode int    `json:"status_code"`
			LatencyMS  int64  `json:"latency_ms"`
			Error      string `json:"error"`
		}
		path := fmt.Sprintf("/v1/subscribers/%s/test", args[0])
		if err := apiRequest(http.MethodPost, path, payload, &resp); err != nil {
			return fmt.Errorf("test fire failed: %w", err)
		}

		if outputJSON {
			printOutput(resp)
		} else if resp.Success {
			fmt.Printf("OK: %d in %dms\n", resp.StatusCode, resp.LatencyMS)
		} else if resp.StatusCode > 0 {
			fmt.Printf("FAILED: %d in %dms\n", resp.StatusCode, resp.LatencyMS)
		} else {
			fmt.Printf("FAILED: %s\n", resp.Error)
		}
		return nil
	},
}

// statsCmd shows subscriber delivery statistics.
var statsCmd = &cobra.Command{
	Use:   "stats [subscriber-id]",
	Short: "Show delivery statistics for a subscriber",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		windowDays, _ := cmd.Flags().GetInt("window-days")

		var resp map[string]any
		path := fmt.Sprintf("/v1/subscribers/%s/stats", args[0])
		if windowDays > 0 {
			path = fmt.Sprintf("%s?window_days=%d", path, windowDays)
		}
		if err := apiRequest(http.MethodGet, path, nil, &resp); err != nil {
			return fmt.Errorf("failed to fetch stats: %w", err)
		}

		printOutput(resp)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(subscriberCmd)
	subscriberCmd.AddCommand(testCmd)
	subscriberCmd.AddCommand(statsCmd)

	statsCmd.Flags().Int("window-days", 0, "aggregate window in days (default 7)")
}
