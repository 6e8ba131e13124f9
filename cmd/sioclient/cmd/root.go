package cmd

import (
	"github.com/spf13/cobra"
)

// Version is reported to the otel metrics provider and stamped on every log
// line. Overridden at link time.
var Version = "dev"

var (
	verbose  bool
	debug    bool
	logLevel string

	configPaths   []string
	serverURL     string
	namespace     string
	framing       string
	authJSON      string
	headers       []string
	metricsKind   string
	metricsListen string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sioclient",
	Short: "Socket.IO protocol client",
	Long: `sioclient speaks the Socket.IO packet protocol over a websocket.

It can emit events (optionally waiting for the server's acknowledgement,
or repeating them on a cron schedule) and listen for events, filtering
them by name and reshaping their payloads with jq.

Connection settings come from flags or from HCL configuration files.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()

	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.BoolVarP(&debug, "debug", "d", false, "debug output")
	flags.StringVarP(&logLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")

	flags.StringSliceVarP(&configPaths, "config", "c", nil, "HCL configuration files or directories")
	flags.StringVarP(&serverURL, "url", "u", "", "server URL (ws, wss, http or https)")
	flags.StringVarP(&namespace, "namespace", "n", "", "namespace to join (default \"/\")")
	flags.StringVar(&framing, "framing", "", "frame encoding: raw or engineio (default raw)")
	flags.StringVar(&authJSON, "auth", "", "JSON payload sent with the Connect packet")
	flags.StringArrayVarP(&headers, "header", "H", nil, "extra handshake header as Key=Value (repeatable)")
	flags.StringVar(&metricsKind, "metrics", "", "metrics provider: prometheus, otel, memory or none")
	flags.StringVar(&metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address")
}
