package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/4rctail/restarter/internal/config"
	"github.com/4rctail/restarter/internal/server"
)

var (
	daemonURL string
	secret    string
)

func main() {
	root := &cobra.Command{
		Use:   "restarter",
		Short: "Restarter CLI: trigger and inspect the restart daemon",
	}

	root.PersistentFlags().StringVar(&daemonURL, "daemon", "", "daemon URL (default http://localhost:8080)")
	root.PersistentFlags().StringVar(&secret, "secret", "", "shared secret (default $RESTARTER_SHARED_SECRET)")

	root.AddCommand(
		statusCmd(),
		triggerCmd(),
		configCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func getDaemonURL() string {
	if daemonURL != "" {
		return daemonURL
	}
	if v := os.Getenv("RESTARTER_DAEMON"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func getSecret() string {
	if secret != "" {
		return secret
	}
	return os.Getenv("RESTARTER_SHARED_SECRET")
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon health",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(getDaemonURL() + "/health")
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode >= 400 {
				return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
			}

			var health struct {
				OK       bool `json:"ok"`
				Services int  `json:"services"`
			}
			if err := json.Unmarshal(body, &health); err != nil {
				return fmt.Errorf("parse health response: %w", err)
			}
			fmt.Printf("Restarter daemon\n")
			fmt.Printf("  OK:       %v\n", health.OK)
			fmt.Printf("  Services: %d\n", health.Services)
			return nil
		},
	}
}

func triggerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger [name]",
		Short: "Trigger a restart of all configured services",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "manual"
			if len(args) == 1 {
				name = args[0]
			}

			req, err := http.NewRequest(http.MethodPost, getDaemonURL()+"/webhook/"+name, nil)
			if err != nil {
				return err
			}
			req.Header.Set(server.SecretHeader, getSecret())

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode >= 400 {
				return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
			}
			fmt.Println(string(body))
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Config utilities"}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(args[0]); err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			fmt.Println("OK")
			return nil
		},
	})
	return cmd
}
