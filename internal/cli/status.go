package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show smsverify server status",
	Long:  `Probe the /health endpoint of a running smsverify server and report per-gateway status.`,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().Int("port", 8091, "Server port to check")
	statusCmd.Flags().String("host", "127.0.0.1", "Server host to check")
}

func runStatus(cmd *cobra.Command, args []string) error {
	jsonOut, _ := cmd.Flags().GetBool("json")
	port, _ := cmd.Flags().GetInt("port")
	host, _ := cmd.Flags().GetString("host")

	healthURL := fmt.Sprintf("http://%s:%d/health", host, port)
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(healthURL)
	if err != nil {
		if jsonOut {
			json.NewEncoder(os.Stdout).Encode(map[string]any{"status": "unreachable"})
			return nil
		}
		fmt.Printf("smsverify server is not reachable at %s\n", healthURL)
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading health response: %w", err)
	}

	if jsonOut {
		os.Stdout.Write(body)
		if len(body) == 0 || body[len(body)-1] != '\n' {
			fmt.Println()
		}
		return nil
	}

	var health struct {
		Status        string            `json:"status"`
		Gateways      map[string]string `json:"gateways"`
		UptimeSeconds int               `json:"uptime_seconds"`
	}
	if err := json.Unmarshal(body, &health); err != nil {
		return fmt.Errorf("parsing health response: %w", err)
	}

	fmt.Printf("smsverify server is running.\n")
	fmt.Printf("  Status:  %s\n", health.Status)
	fmt.Printf("  Uptime:  %ds\n", health.UptimeSeconds)
	for name, state := range health.Gateways {
		fmt.Printf("  Gateway %s: %s\n", name, state)
	}
	return nil
}
