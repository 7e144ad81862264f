package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vietddude/lnbridge/internal/api"
)

var eventKinds []string

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Stream node events from the running bridge as JSON lines",
	Run:   runEvents,
}

func init() {
	eventsCmd.Flags().StringSliceVar(&eventKinds, "kind", nil, "only print these event kinds (repeatable)")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) {
	client, err := api.Dial(apiAddr)
	if err != nil {
		slog.Error("Failed to create client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = client.Subscribe(ctx, "cli", eventKinds, func(ev map[string]any) error {
		line, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		_, err = fmt.Println(string(line))
		return err
	})
	if err == nil || errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
		return
	}
	slog.Error("Event stream ended", "error", err, "reason", api.ErrorReason(err))
	os.Exit(1)
}
