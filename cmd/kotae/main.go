// Package main is the kotae CLI entry point.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

type globalOptions struct {
	configPath string
	debug      bool
	serverURL  string
	output     string
	user       string
}

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory takes precedence so that running from a project dir uses the
// project's config. Missing files fall back to defaults.
// Returns the config and the path that was actually consulted.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				path = fallback
			}
		}
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// setup loads config and builds the logger shared by in-process commands.
func setup(opts *globalOptions) (*config.Config, *zap.Logger, error) {
	cfg, resolved, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	debug := cfg.Debug || opts.debug
	logger, err := utils.NewLogger(debug)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Info("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debug))
	return cfg, logger, nil
}

func (o *globalOptions) format() (cli.OutputFormat, error) {
	return cli.ParseOutputFormat(o.output)
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "kotae",
		Short:         "Ask questions about your PDF and Word documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "config file path")
	pf.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	pf.StringVar(&opts.serverURL, "server", "http://localhost:8080", "kotae server URL for client commands")
	pf.StringVarP(&opts.output, "output", "o", "text", "output format: text or json")
	pf.StringVarP(&opts.user, "user", "u", defaultUser(), "user id")

	root.AddCommand(
		newServeCmd(opts),
		newChatCmd(opts),
		newIngestCmd(opts),
		newDocumentsCmd(opts),
		newSelectCmd(opts),
		newFinishCmd(opts),
		newAskCmd(opts),
		newStatusCmd(opts),
		newVersionCmd(),
	)
	return root
}

func defaultUser() string {
	if u := os.Getenv("KOTAE_USER"); u != "" {
		return u
	}
	return "local"
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kotae version %s\n", version)
		},
	}
}

func main() {
	// Secrets such as OPENAI_API_KEY may live in a .env file next to the binary's working dir.
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
