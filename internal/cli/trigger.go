package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/lnbridge/internal/api"
)

var (
	apiAddr     string
	paymentHash string
)

var triggerCmd = &cobra.Command{
	Use:   "trigger-event",
	Short: "Inject a test payment-received event through the running bridge",
	Run:   runTrigger,
}

func init() {
	triggerCmd.Flags().StringVar(&paymentHash, "payment-hash", "", "hex payment hash, random when empty")
	rootCmd.PersistentFlags().StringVar(&apiAddr, "addr", defaultAPIAddr(), "API address of the running bridge")
	rootCmd.AddCommand(triggerCmd)
}

func defaultAPIAddr() string {
	if v := os.Getenv("LNBRIDGE_ADDR"); v != "" {
		return v
	}
	return "127.0.0.1:3000"
}

func runTrigger(cmd *cobra.Command, args []string) {
	client, err := api.Dial(apiAddr)
	if err != nil {
		slog.Error("Failed to create client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out, err := client.TriggerEvent(ctx, paymentHash)
	if err != nil {
		slog.Error("TriggerEvent failed", "error", err, "reason", api.ErrorReason(err))
		os.Exit(1)
	}

	body, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(body))
}
