package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// eventCmd represents the event command
var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Publish webhook events",
}

// publishCmd represents the publish command
var publishCmd = &cobra.Command{
	Use:   "publish [event-name] [payload-json]",
	Short: "Publish an event occurrence",
	Long: `Publish an event occurrence with a JSON payload.

Example:
  relayctl event publish order.created '{"order_id":"ord_42","amount":1999}'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := parsePayload(args[1])
		if err != nil {
			return fmt.Errorf("invalid payload JSON: %w", err)
		}

		var resp struct {
			EventID string `json:"event_id"`
		}
		body := map[string]any{"name": args[0], "payload": payload}
		if err := apiRequest(http.MethodPost, "/v1/events", body, &resp); err != nil {
			return fmt.Errorf("failed to publish event: %w", err)
		}

		if outputJSON {
			printOutput(resp)
		} else {
			fmt.Printf("Published event: %s\n", resp.EventID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventCmd)
	eventCmd.AddCommand(publishCmd)
}
