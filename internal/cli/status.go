package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/lnbridge/internal/health"
)

var healthURL string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the health of the running bridge",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&healthURL, "health-url", "http://127.0.0.1:8080", "base URL of the health server")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	report, err := fetchReport(ctx, healthURL+"/health/detailed")
	if err != nil {
		slog.Error("Failed to query health", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "COMPONENT\tSTATUS\tDETAIL")
	_, _ = fmt.Fprintf(w, "system\t%s\t\n", report.SystemStatus)
	_, _ = fmt.Fprintf(w, "processor\t%s\t\n", report.Processor)
	_, _ = fmt.Fprintf(w, "subscribers\t%d\t\n", report.Subscribers)
	_, _ = fmt.Fprintf(w, "broker\t%t\t\n", report.BrokerEnabled)
	if report.LastEventAt != nil {
		_, _ = fmt.Fprintf(w, "last event\t%s\t\n", report.LastEventAt.Format(time.RFC3339))
	}

	names := make([]string, 0, len(report.Components))
	for name := range report.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := report.Components[name]
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", name, c.Status, c.Error)
	}
	_ = w.Flush()

	if report.SystemStatus == health.StatusCritical {
		os.Exit(2)
	}
}

func fetchReport(ctx context.Context, url string) (*health.Report, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	var report health.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &report, nil
}
