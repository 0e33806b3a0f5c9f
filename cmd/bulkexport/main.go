// Command bulkexport submits a bulk query, waits for the job to complete,
// and writes the full result set to a file or stdout.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sfdctools/bulkquery/pkg/auth"
	"github.com/sfdctools/bulkquery/pkg/bulk"
	"github.com/sfdctools/bulkquery/pkg/client"
	"github.com/sfdctools/bulkquery/pkg/job"
	"github.com/sfdctools/bulkquery/pkg/logging"
	"github.com/sfdctools/bulkquery/pkg/sink"
)

type options struct {
	loginURL     string
	clientID     string
	clientSecret string
	username     string
	password     string

	token       string
	instanceURL string

	apiVersion      string
	query           string
	output          string
	includeArchived bool
	pollInterval    time.Duration
	maxWait         time.Duration
	maxRecords      int
	redisAddr       string

	logLevel string
	pretty   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "bulkexport",
		Short: "Export the result set of a bulk query to a file",
		Long: `bulkexport submits an asynchronous bulk query job, polls it to
completion, and streams the paginated CSV result set into one file with a
single header line. Memory use stays constant regardless of result size.

Authenticate either with connected-app credentials (--login-url, --client-id,
--username plus BULKEXPORT_PASSWORD and BULKEXPORT_CLIENT_SECRET) or with a
pre-issued token (--token and --instance-url).`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.loginURL, "login-url", "https://login.salesforce.com", "login host for the OAuth password flow")
	flags.StringVar(&opts.clientID, "client-id", "", "connected app client id")
	flags.StringVar(&opts.username, "username", "", "integration user name")
	flags.StringVar(&opts.token, "token", getEnv("BULKEXPORT_TOKEN", ""), "pre-issued access token (skips login)")
	flags.StringVar(&opts.instanceURL, "instance-url", "", "instance URL (required with --token, otherwise taken from login)")
	flags.StringVar(&opts.apiVersion, "api-version", client.DefaultAPIVersion, "REST API version")
	flags.StringVarP(&opts.query, "query", "q", "", "query to execute (required)")
	flags.StringVarP(&opts.output, "output", "o", "-", "output file path, or - for stdout")
	flags.BoolVar(&opts.includeArchived, "include-archived", false, "include soft-deleted and archived records (queryAll)")
	flags.DurationVar(&opts.pollInterval, "poll-interval", job.DefaultPollInterval, "wait between job status polls")
	flags.DurationVar(&opts.maxWait, "max-wait", 30*time.Minute, "maximum total polling time (0 = unbounded)")
	flags.IntVar(&opts.maxRecords, "max-records", 0, "per-page record count hint (0 = server default)")
	flags.StringVar(&opts.redisAddr, "redis", "", "Redis address for the shared token cache (optional)")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.BoolVar(&opts.pretty, "pretty", false, "human-readable log output")

	cobra.CheckErr(cmd.MarkFlagRequired("query"))

	opts.password = getEnv("BULKEXPORT_PASSWORD", "")
	opts.clientSecret = getEnv("BULKEXPORT_CLIENT_SECRET", "")

	return cmd
}

func runExport(ctx context.Context, opts *options) error {
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(opts.logLevel),
		Pretty: opts.pretty,
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, baseURL, err := buildAuth(ctx, opts, logger)
	if err != nil {
		return err
	}

	cfg := client.DefaultConfig(provider, baseURL)
	cfg.APIVersion = opts.apiVersion
	api, err := client.New(cfg)
	if err != nil {
		return err
	}

	exp := bulk.New(api)
	exportOpts := bulk.ExportOptions{
		IncludeArchived: opts.includeArchived,
		PollInterval:    opts.pollInterval,
		MaxWait:         opts.maxWait,
		MaxRecords:      opts.maxRecords,
	}

	jobID, err := exp.Submit(ctx, opts.query, opts.includeArchived)
	if err != nil {
		return err
	}

	if err := exp.Wait(ctx, jobID, exportOpts); err != nil {
		if errors.Is(err, context.Canceled) {
			abortJob(exp, jobID, logger)
		}
		return err
	}

	stream := exp.Stream(ctx, jobID, exportOpts)
	defer stream.Close()

	var written int64
	if opts.output == "-" {
		written, err = io.Copy(os.Stdout, stream)
		if err != nil {
			err = fmt.Errorf("write results to stdout: %w", err)
		}
	} else {
		written, err = sink.WriteFile(opts.output, stream)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			abortJob(exp, jobID, logger)
		}
		return err
	}

	logger.Info().
		Str("job_id", jobID).
		Str("output", opts.output).
		Int64("bytes", written).
		Msg("Export complete")

	return nil
}

// buildAuth selects the token source: a pre-issued token or the password
// flow, with an optional Redis-backed token cache.
func buildAuth(ctx context.Context, opts *options, logger zerolog.Logger) (auth.TokenProvider, string, error) {
	if opts.token != "" {
		if opts.instanceURL == "" {
			return nil, "", fmt.Errorf("--instance-url is required with --token")
		}
		return auth.StaticProvider(opts.token), opts.instanceURL, nil
	}

	cfg := auth.Config{
		LoginURL:     opts.loginURL,
		ClientID:     opts.clientID,
		ClientSecret: opts.clientSecret,
		Username:     opts.username,
		Password:     opts.password,
	}

	if opts.redisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: opts.redisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", opts.redisAddr).
				Msg("Redis unreachable, continuing without token cache")
		} else {
			cfg.Store = auth.NewTokenStore(redisClient)
		}
	}

	provider, err := auth.NewPasswordProvider(cfg)
	if err != nil {
		return nil, "", err
	}

	// Log in up front: the instance URL comes from the token response.
	if _, err := provider.Token(ctx); err != nil {
		return nil, "", err
	}

	baseURL := opts.instanceURL
	if baseURL == "" {
		baseURL = provider.InstanceURL()
	}
	if baseURL == "" {
		return nil, "", fmt.Errorf("login did not report an instance URL; pass --instance-url")
	}

	return provider, baseURL, nil
}

// abortJob cancels a job after an interrupted export, on a fresh context so
// the abort call itself is not already cancelled.
func abortJob(exp *bulk.Client, jobID string, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := exp.Abort(ctx, jobID); err != nil {
		logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to abort job after interrupt")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
