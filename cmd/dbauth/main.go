// Package main implements the dbauth CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/CliForge/dbauth/pkg/config"
	"github.com/CliForge/dbauth/pkg/dbauth"
	"github.com/CliForge/dbauth/pkg/secrets"
)

var (
	// Version is set at build time
	version = "0.1.0"
	// BuildDate is set at build time
	buildDate = "unknown"
)

var logger = loggo.GetLogger("dbauth.cmd")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions is the state shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	verbose    bool

	config *config.Config
	masker *secrets.MaskingWriter

	// clientOptions are appended to every client the CLI creates.
	clientOptions []dbauth.Option
}

func newRootCmd(clientOptions ...dbauth.Option) *cobra.Command {
	opts := &rootOptions{clientOptions: clientOptions}

	cmd := &cobra.Command{
		Use:   "dbauth",
		Short: "dbauth - Generate database auth tokens from cloud credentials",
		Long: `dbauth requests short-lived database passwords from the CAM
BuildDataFlowAuthToken API, decrypts them locally and keeps them fresh.

Cloud credentials are read from TENCENTCLOUD_SECRET_ID and
TENCENTCLOUD_SECRET_KEY (and TENCENTCLOUD_SESSION_TOKEN for temporary
credentials).`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd.ErrOrStderr())
		},
	}

	cmd.SetGlobalNormalizationFunc(normalizeFlags)
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to the config file (default $XDG_CONFIG_HOME/dbauth/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", `Logging config, e.g. "<root>=INFO;dbauth.signer=DEBUG"`)
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging for dbauth")

	cmd.AddCommand(newTokenCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// normalizeFlags accepts underscores in flag names, e.g. --instance_id.
func normalizeFlags(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// setup loads the configuration and routes logs through the secret masker.
func (o *rootOptions) setup(stderr io.Writer) error {
	loader := config.NewLoader(config.DefaultAppName)
	if o.configPath != "" {
		loader.WithConfigPath(o.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return errors.Annotate(err, "loading config")
	}
	o.config = cfg

	o.masker = secrets.NewMaskingWriter(stderr, &cfg.Masking)
	if _, err := loggo.ReplaceDefaultWriter(loggo.NewSimpleWriter(o.masker, loggo.DefaultFormatter)); err != nil {
		return errors.Annotate(err, "configuring log writer")
	}

	level := cfg.Logging.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	if o.verbose {
		level = strings.TrimPrefix(level+";dbauth=DEBUG", ";")
	}
	return errors.Annotate(loggo.ConfigureLoggers(level), "configuring loggers")
}
