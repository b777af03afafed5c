package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// healthCmd represents the health command
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the health of the hookqueue service",
	Long:  `Check the health status of the hookqueue ingress and its backing store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := makeHTTPRequest("GET", "/healthz", nil)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		defer resp.Body.Close()

		// /healthz returns its status body on both 200 and 503.
		var status struct {
			OK      bool   `json:"ok"`
			Message string `json:"message"`
			Store   bool   `json:"store"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&status)

		if outputJSON {
			printOutput(status)
			return nil
		}

		if resp.StatusCode == 200 {
			fmt.Println("✓ Service is healthy")
		} else {
			fmt.Printf("✗ Service is unhealthy (HTTP %d): %s\n", resp.StatusCode, status.Message)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
