package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// deliveryCmd represents the delivery command
var deliveryCmd = &cobra.Command{
	Use:   "delivery",
	Short: "Inspect and cancel deliveries",
}

// getDeliveryCmd fetches one delivery audit record.
var getDeliveryCmd = &cobra.Command{
	Use:   "get [delivery-id]",
	Short: "Show a delivery record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp map[string]any
		if err := apiRequest(http.MethodGet, "/v1/deliveries/"+args[0], nil, &resp); err != nil {
			return fmt.Errorf("failed to fetch delivery: %w", err)
		}
		printOutput(resp)
		return nil
	},
}

// cancelDeliveryCmd stops remaining retries for a delivery.
var cancelDeliveryCmd = &cobra.Command{
	Use:   "cancel [delivery-id]",
	Short: "Cancel a delivery's remaining retries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			DeliveryID string `json:"delivery_id"`
			Status     string `json:"status"`
		}
		path := fmt.Sprintf("/v1/deliveries/%s/cancel", args[0])
		if err := apiRequest(http.MethodPost, path, nil, &resp); err != nil {
			return fmt.Errorf("failed to cancel delivery: %w", err)
		}

		if outputJSON {
			printOutput(resp)
		} else {
			fmt.Printf("Cancelled delivery: %s\n", resp.DeliveryID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deliveryCmd)
	deliveryCmd.AddCommand(getDeliveryCmd)
	deliveryCmd.AddCommand(cancelDeliveryCmd)
}
