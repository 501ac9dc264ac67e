package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the running server's result cache",
	Long: `Inspect or clear the result cache of a running coderev server.

These commands talk to the HTTP API at server.url; start the server with
'coderev serve' first.`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache hit/miss statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := serverRequest(http.MethodGet, "/api/v1/cache/stats")
		if err != nil {
			return err
		}

		var stats struct {
			Hits    int64 `json:"hits"`
			Misses  int64 `json:"misses"`
			Entries int   `json:"entries"`
		}
		if err := json.Unmarshal(body, &stats); err != nil {
			return fmt.Errorf("decode cache stats: %w", err)
		}

		total := stats.Hits + stats.Misses
		rate := 0.0
		if total > 0 {
			rate = float64(stats.Hits) / float64(total) * 100
		}
		ui.Info("Entries: %d", stats.Entries)
		ui.Info("Hits: %d  Misses: %d  Hit rate: %.1f%%", stats.Hits, stats.Misses, rate)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the entire result cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := serverRequest(http.MethodDelete, "/api/v1/cache")
		if err != nil {
			return err
		}

		var resp struct {
			Deleted int `json:"deleted"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		ui.Success("Cache cleared (%d entries dropped)", resp.Deleted)
		return nil
	},
}

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Show accumulated provider spend on the running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := serverRequest(http.MethodGet, "/api/v1/costs")
		if err != nil {
			return err
		}

		var costs struct {
			Requests int     `json:"requests"`
			Total    float64 `json:"total_cost_usd"`
		}
		if err := json.Unmarshal(body, &costs); err != nil {
			return fmt.Errorf("decode costs: %w", err)
		}
		ui.Info("Provider requests: %d  Total spend: $%.4f", costs.Requests, costs.Total)
		return nil
	},
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate <path>",
	Short: "Drop cached results for a file path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint := "/api/v1/cache/path?path=" + url.QueryEscape(args[0])
		body, err := serverRequest(http.MethodDelete, endpoint)
		if err != nil {
			return err
		}

		var resp struct {
			Deleted int `json:"deleted"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		ui.Success("Invalidated %d cached result(s) for %s", resp.Deleted, args[0])
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheInvalidateCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(costsCmd)
}

// serverRequest calls the running server's API and returns the response body.
func serverRequest(method, path string) ([]byte, error) {
	base := strings.TrimRight(viper.GetString("server.url"), "/")
	req, err := http.NewRequest(method, base+path, nil)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cannot reach server at %s (is 'coderev serve' running?): %w", base, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return body, nil
}
