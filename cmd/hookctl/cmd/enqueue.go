package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// enqueueCmd represents the enqueue command
var enqueueCmd = &cobra.Command{
	Use:   "enqueue [uri]",
	Short: "Enqueue a webhook delivery job",
	Long: `Enqueue a delivery job for immediate dispatch.

Example:
  hookctl enqueue https://example.com/hook --store-id 42 --trigger-id order.created \
    --method POST --headers '{"Content-Type":"application/json"}' --body '{"order":1}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uri := args[0]

		storeID, _ := cmd.Flags().GetInt64("store-id")
		triggerID, _ := cmd.Flags().GetString("trigger-id")
		method, _ := cmd.Flags().GetString("method")
		headers, _ := cmd.Flags().GetString("headers")
		body, _ := cmd.Flags().GetString("body")

		req := map[string]interface{}{
			"uri": uri,
		}
		if storeID > 0 {
			req["store_id"] = storeID
		}
		if triggerID != "" {
			req["trigger_id"] = triggerID
		}
		if method != "" {
			req["method"] = method
		}
		if headers != "" {
			var obj map[string]string
			if err := json.Unmarshal([]byte(headers), &obj); err != nil {
				return fmt.Errorf("invalid headers JSON: %w", err)
			}
			req["headers"] = obj
		}
		if body != "" {
			req["body"] = body
		}

		resp, err := makeHTTPRequest("POST", "/v1/jobs", req)
		if err != nil {
			return fmt.Errorf("failed to enqueue job: %w", err)
		}

		var job struct {
			ID            string `json:"id"`
			StoreID       int64  `json:"store_id"`
			TriggerID     string `json:"trigger_id"`
			ScheduledTime string `json:"scheduled_time"`
		}
		if err := decodeResponse(resp, &job); err != nil {
			return err
		}

		if outputJSON {
			printOutput(job)
		} else {
			fmt.Println("✓ Job enqueued")
			fmt.Printf("  Job ID: %s\n", job.ID)
			fmt.Printf("  Store ID: %d\n", job.StoreID)
			fmt.Printf("  Trigger ID: %s\n", job.TriggerID)
			fmt.Printf("  Scheduled: %s\n", job.ScheduledTime)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enqueueCmd)

	enqueueCmd.Flags().Int64("store-id", 0, "store the delivery belongs to")
	enqueueCmd.Flags().String("trigger-id", "", "trigger object identifier (default \"manual\")")
	enqueueCmd.Flags().String("method", "", "HTTP method (default GET)")
	enqueueCmd.Flags().String("headers", "", "request headers as a JSON object")
	enqueueCmd.Flags().String("body", "", "request body")
}
