package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history [store-id]",
	Short: "List delivery history for a store",
	Long: `List recorded delivery attempts for a store, newest first.

Example:
  hookctl history 42 --limit 20`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
			return fmt.Errorf("store-id must be an integer: %w", err)
		}

		limit, _ := cmd.Flags().GetInt("limit")
		path := fmt.Sprintf("/v1/stores/%s/history", args[0])
		if limit > 0 {
			path = fmt.Sprintf("%s?limit=%d", path, limit)
		}

		resp, err := makeHTTPRequest("GET", path, nil)
		if err != nil {
			return fmt.Errorf("failed to fetch history: %w", err)
		}

		var entries []struct {
			ID         int64  `json:"id"`
			StoreID    int64  `json:"store_id"`
			TriggerID  string `json:"trigger_id"`
			URI        string `json:"uri"`
			Method     string `json:"method"`
			StatusCode int    `json:"status_code"`
			Response   string `json:"response"`
			Error      string `json:"error"`
			RecordedAt string `json:"recorded_at"`
		}
		if err := decodeResponse(resp, &entries); err != nil {
			return err
		}

		if outputJSON {
			printOutput(entries)
			return nil
		}

		fmt.Printf("Delivery history for store %s:\n", args[0])
		if len(entries) == 0 {
			fmt.Println("  No deliveries recorded")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("\n  Entry %d:\n", e.ID)
			fmt.Printf("    Trigger ID: %s\n", e.TriggerID)
			fmt.Printf("    URI: %s %s\n", e.Method, e.URI)
			if e.StatusCode > 0 {
				fmt.Printf("    HTTP Status: %d\n", e.StatusCode)
			}
			if e.Error != "" {
				fmt.Printf("    Error: %s\n", e.Error)
			}
			fmt.Printf("    Recorded: %s\n", e.RecordedAt)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().Int("limit", 0, "maximum entries to return (server default 100)")
}
