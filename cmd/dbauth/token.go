package main

import (
	"context"
	"net/http"
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CliForge/dbauth/pkg/dbauth"
	"github.com/CliForge/dbauth/pkg/secrets"
)

type tokenOptions struct {
	region     string
	instanceID string
	user       string
	endpoint   string
	reveal     bool
	watch      time.Duration
	output     string
}

func newTokenCmd(root *rootOptions) *cobra.Command {
	opts := &tokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate a database auth token",
		Long: `Generate a database password for an instance account.

The password is masked unless --reveal is given. With --watch the command
keeps running, checks the token at the given interval and prints it whenever
it changes.`,
		Example: `  dbauth token --region ap-guangzhou --instance-id cdb-123456 --user camtest
  dbauth token --region ap-guangzhou --instance-id cdb-123456 --user camtest --watch 30s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.region, "region", "", "Instance region (required)")
	cmd.Flags().StringVar(&opts.instanceID, "instance-id", "", "Database instance ID (required)")
	cmd.Flags().StringVar(&opts.user, "user", "", "Database account name (required)")
	cmd.Flags().StringVar(&opts.endpoint, "endpoint", "", "Override the issuance API endpoint")
	cmd.Flags().BoolVar(&opts.reveal, "reveal", false, "Print the password in clear")
	cmd.Flags().DurationVar(&opts.watch, "watch", 0, "Keep running and print the password whenever it changes")
	cmd.Flags().StringVarP(&opts.output, "output", "o", formatTable, "Output format: table, json or yaml")
	_ = cmd.MarkFlagRequired("region")
	_ = cmd.MarkFlagRequired("instance-id")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

// credentialFromEnv reads the cloud credential from the environment.
func credentialFromEnv() (*dbauth.Credential, error) {
	v := viper.New()
	v.SetEnvPrefix("TENCENTCLOUD")
	for _, key := range []string{"secret_id", "secret_key", "session_token"} {
		if err := v.BindEnv(key); err != nil {
			return nil, errors.Trace(err)
		}
	}

	cred := &dbauth.Credential{
		SecretID:  v.GetString("secret_id"),
		SecretKey: v.GetString("secret_key"),
		Token:     v.GetString("session_token"),
	}
	if cred.SecretID == "" || cred.SecretKey == "" {
		return nil, errors.NotFoundf("TENCENTCLOUD_SECRET_ID and TENCENTCLOUD_SECRET_KEY")
	}
	return cred, nil
}

func runToken(cmd *cobra.Command, root *rootOptions, opts *tokenOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	switch opts.output {
	case formatTable, formatJSON, formatYAML:
	default:
		return errors.NotValidf("output format %q", opts.output)
	}

	cred, err := credentialFromEnv()
	if err != nil {
		return err
	}
	root.masker.Register(cred.SecretKey, cred.Token)

	var reqOpts []dbauth.RequestOption
	if opts.endpoint != "" {
		reqOpts = append(reqOpts, dbauth.WithClientProfile(&dbauth.ClientProfile{Endpoint: opts.endpoint}))
	}
	req, err := dbauth.NewGenerateAuthenticationTokenRequest(opts.region, opts.instanceID, opts.user, cred, reqOpts...)
	if err != nil {
		return err
	}

	clientOpts := append([]dbauth.Option(nil), root.clientOptions...)
	var registry *prometheus.Registry
	if root.config.Metrics.Enabled && opts.watch > 0 {
		registry = prometheus.NewRegistry()
		clientOpts = append(clientOpts, dbauth.WithRegisterer(registry))
	}

	client, err := dbauth.NewClientFromConfig(root.config, clientOpts...)
	if err != nil {
		return errors.Annotate(err, "creating client")
	}
	defer client.Close()

	password, err := client.GenerateAuthenticationToken(ctx, req)
	if err != nil {
		return err
	}
	if err := printToken(cmd, root, opts, req, password); err != nil {
		return err
	}

	if opts.watch <= 0 {
		return nil
	}

	if registry != nil {
		server := serveMetrics(root.config.Metrics.Address, registry)
		defer server.Close()
		pterm.Info.WithWriter(out).Printfln("Serving metrics on http://%s/metrics", root.config.Metrics.Address)
	}
	return watchToken(ctx, cmd, root, opts, client, req, password)
}

// watchToken polls the client until ctx is done, printing changed passwords.
func watchToken(ctx context.Context, cmd *cobra.Command, root *rootOptions, opts *tokenOptions,
	client *dbauth.Client, req *dbauth.Request, last string) error {
	ticker := time.NewTicker(opts.watch)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			pterm.Info.WithWriter(cmd.OutOrStdout()).Println("Stopped watching.")
			return nil
		case <-ticker.C:
		}

		password, err := client.GenerateAuthenticationToken(ctx, req)
		if err != nil {
			if dbauth.RequiresUserNotification(err) {
				return err
			}
			pterm.Warning.WithWriter(cmd.ErrOrStderr()).Printfln("Token refresh failed: %v", err)
			continue
		}
		if password != last {
			last = password
			if err := printToken(cmd, root, opts, req, password); err != nil {
				return err
			}
		}
	}
}

func printToken(cmd *cobra.Command, root *rootOptions, opts *tokenOptions, req *dbauth.Request, password string) error {
	shown := password
	if !opts.reveal {
		shown = secrets.MaskValue(password, &root.config.Masking)
	}
	return formatToken(cmd.OutOrStdout(), opts.output, tokenView{
		Account:  req.Identity().Account(),
		Password: shown,
		Issued:   time.Now(),
	})
}

func serveMetrics(addr string, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics server: %v", err)
		}
	}()
	return server
}
