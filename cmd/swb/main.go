package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/switchboard/internal/client"
	"github.com/alfredjeanlab/switchboard/internal/ui"
)

var (
	serverAddr string
	httpURL    string
	transport  string
	authToken  string
	jsonOutput bool

	sbClient client.SwitchboardClient
)

func defaultHTTPURL() string {
	if s := os.Getenv("SWITCHBOARD_HTTP_URL"); s != "" {
		return s
	}
	if u := activeRemoteURL(); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func defaultServer() string {
	if s := os.Getenv("SWITCHBOARD_SERVER"); s != "" {
		return s
	}
	if s := activeRemoteServer(); s != "" {
		return s
	}
	return "localhost:9090"
}

func defaultTransport() string {
	if s := os.Getenv("SWITCHBOARD_TRANSPORT"); s != "" {
		return s
	}
	if s := activeRemoteTransport(); s != "" {
		return s
	}
	return "http"
}

func defaultToken() string {
	if s := os.Getenv("SWITCHBOARD_TOKEN"); s != "" {
		return s
	}
	return activeRemoteToken()
}

var rootCmd = &cobra.Command{
	Use:   "swb <command>",
	Short: "CLI client for the Switchboard service",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		sbClient = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if sbClient != nil {
			sbClient.Close()
		}
	},
}

func newClient() (client.SwitchboardClient, error) {
	switch transport {
	case "http":
		return client.NewHTTPClient(httpURL, authToken), nil
	case "grpc":
		c, err := client.NewGRPCClient(serverAddr, authToken)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to server: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown transport %q (must be http or grpc)", transport)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", defaultHTTPURL(), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", defaultServer(), "gRPC server address")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", defaultTransport(), "transport protocol (http or grpc)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", defaultToken(), "bearer token")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "switches", Title: "Switches:"},
		&cobra.Group{ID: "defects", Title: "Defects:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Switches
	rootCmd.AddCommand(switchCmd)
	rootCmd.AddCommand(releaseCmd)
	rootCmd.AddCommand(watchCmd)

	// Defects
	rootCmd.AddCommand(defectCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if !ui.ShouldUseColor() {
		ui.ForceNoColor()
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
