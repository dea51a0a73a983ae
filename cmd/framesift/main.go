package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kikiluvv/framesift/internal/config"
	"github.com/kikiluvv/framesift/internal/logging"
	"github.com/kikiluvv/framesift/internal/provider"
	"github.com/kikiluvv/framesift/pkg/util"
)

var (
	cfgFile   string
	verbose   bool
	logFormat string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "framesift",
	Short: "framesift - keyframe selection for vision models",
	Long:  "Pick the few least-redundant frames from videos, live cameras and snapshots, and hand them to a vision model.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logging
		logging.Init(verbose, logFormat)

		// Load config
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		// Store config in context
		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log output: console or json")

	rootCmd.AddCommand(videoCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(configCmd)
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Vision provider commands",
}

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		for _, name := range provider.DefaultRegistry().List() {
			marker := " "
			if name == cfg.Provider.Kind {
				marker = "*"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
		}
		return nil
	},
}

var providersValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configured provider is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		p, err := provider.DefaultRegistry().Resolve(log.Logger, cfg.Provider)
		if err != nil {
			return err
		}
		if err := p.Validate(cmd.Context()); err != nil {
			return fmt.Errorf("%s: %w", p.Name(), err)
		}

		log.Info().Str("provider", p.Name()).Str("model", cfg.Provider.Model).Msg("provider ok")
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configForce bool

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if util.FileExists(path) && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		if err := config.Default().Save(path); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		log.Info().Str("path", path).Msg("config written")
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *config.FromContext(cmd.Context())

		// secrets stay out of terminals and logs
		if cfg.Provider.APIKey != "" {
			cfg.Provider.APIKey = "********"
		}
		if cfg.Expose.MinIO.SecretKey != "" {
			cfg.Expose.MinIO.SecretKey = "********"
		}

		out, err := yaml.Marshal(&cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	providersCmd.AddCommand(providersListCmd)
	providersCmd.AddCommand(providersValidateCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}
