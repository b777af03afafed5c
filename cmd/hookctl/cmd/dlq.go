package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"
	"github.com/spf13/cobra"
)

// dlqCmd represents the dlq command
var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect the dead-letter queue",
	Long:  `Inspect jobs that were dropped after a terminal delivery failure.`,
}

// tailCmd represents the dlq tail command
var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Tail dead-letter envelopes from NSQ",
	Long: `Subscribe to the dead-letter topic and print envelopes as they arrive.

Example:
  hookctl dlq tail --nsqd localhost:4150 --topic webhooks_dead`,
	RunE: func(cmd *cobra.Command, args []string) error {
		nsqdAddr, _ := cmd.Flags().GetString("nsqd")
		topic, _ := cmd.Flags().GetString("topic")
		channel, _ := cmd.Flags().GetString("channel")

		consumer, err := nsq.NewConsumer(topic, channel, nsq.NewConfig())
		if err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}

		consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
			if outputJSON {
				fmt.Println(string(m.Body))
				return nil
			}

			var env struct {
				At         string `json:"at"`
				Reason     string `json:"reason"`
				Attempt    int    `json:"attempt"`
				HTTPStatus int    `json:"http_status"`
				LastError  string `json:"last_error"`
				Job        struct {
					ID        string `json:"id"`
					TriggerID string `json:"trigger_id"`
					StoreID   int64  `json:"store_id"`
					URI       string `json:"uri"`
					Retry     int    `json:"retry"`
				} `json:"job"`
			}
			if err := json.Unmarshal(m.Body, &env); err != nil {
				fmt.Printf("(unparseable envelope) %s\n", m.Body)
				return nil
			}

			fmt.Printf("%s  job=%s store=%d trigger=%s reason=%s attempt=%d",
				env.At, env.Job.ID, env.Job.StoreID, env.Job.TriggerID, env.Reason, env.Attempt)
			if env.HTTPStatus > 0 {
				fmt.Printf(" status=%d", env.HTTPStatus)
			}
			if env.LastError != "" {
				fmt.Printf(" error=%q", env.LastError)
			}
			fmt.Printf("  %s\n", env.Job.URI)
			return nil
		}))

		if err := consumer.ConnectToNSQD(nsqdAddr); err != nil {
			return fmt.Errorf("failed to connect to nsqd at %s: %w", nsqdAddr, err)
		}

		fmt.Fprintf(os.Stderr, "Tailing %s (channel %s) on %s, Ctrl-C to stop\n", topic, channel, nsqdAddr)

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
		<-stop

		consumer.Stop()
		<-consumer.StopChan
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dlqCmd)
	dlqCmd.AddCommand(tailCmd)

	tailCmd.Flags().String("nsqd", "localhost:4150", "nsqd TCP address")
	tailCmd.Flags().String("topic", "webhooks_dead", "dead-letter topic")
	tailCmd.Flags().String("channel", "hookctl", "consumer channel")
}
