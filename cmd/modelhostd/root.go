package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagConfig        string
	flagAddr          string
	flagModelsDirs    []string
	flagStorePath     string
	flagLogLevel      string
	flagFallbackModel string
	flagLlamaCtxSize  int
	flagLlamaThreads  int
	flagCORSOrigins   []string
)

var rootCmd = &cobra.Command{
	Use:           "modelhostd",
	Short:         "Local AI model host daemon",
	Long:          "modelhostd discovers GGUF/GGML models on disk, serves inference over HTTP, and manages model memory within the host's budget.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP daemon",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(os.Stdout, version)
	},
}

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func init() {
	serveCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "config file (.yaml, .json or .toml)")
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "HTTP listen address (overrides config)")
	serveCmd.Flags().StringSliceVar(&flagModelsDirs, "models-dir", nil, "directory to scan for model files (repeatable)")
	serveCmd.Flags().StringVar(&flagStorePath, "store", "", "path to the sqlite state store")
	serveCmd.Flags().StringVar(&flagLogLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	serveCmd.Flags().StringVar(&flagFallbackModel, "fallback-model", "", "model id used when an inference request names none")
	serveCmd.Flags().IntVar(&flagLlamaCtxSize, "llama-ctx", 4096, "llama context window size in tokens")
	serveCmd.Flags().IntVar(&flagLlamaThreads, "llama-threads", 0, "llama worker threads (0 = number of CPUs)")
	serveCmd.Flags().StringSliceVar(&flagCORSOrigins, "cors-origin", nil, "allowed CORS origin (repeatable; CORS disabled when empty)")

	rootCmd.AddCommand(serveCmd, versionCmd)
}
