// Command flaectl drives the time tracker from a terminal, either against a
// local store or against a running bot over its v1 API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/radhhh/flae-bot/internal/adapter/botapi"
	"github.com/radhhh/flae-bot/internal/config"
	"github.com/radhhh/flae-bot/internal/dispatch"
	"github.com/radhhh/flae-bot/internal/domain"
	"github.com/radhhh/flae-bot/internal/repository"
	"github.com/radhhh/flae-bot/internal/service"
	"github.com/radhhh/flae-bot/policy"
)

// errReported marks a failure whose message was already printed.
var errReported = errors.New("reported")

func main() {
	if err := newRootCmd(openBackend).Execute(); err != nil {
		if !errors.Is(err, errReported) {
			_, _ = fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

type options struct {
	configPath   string
	server       string
	apiKey       string
	user         string
	invocationID string
	plain        bool
}

// backend dispatches invocations, locally or remotely.
type backend interface {
	Dispatch(ctx context.Context, inv domain.Invocation) *domain.Response
}

type openFunc func(ctx context.Context, opts *options) (backend, func() error, error)

func newRootCmd(open openFunc) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "flaectl",
		Short:         "Track study sessions and weekly allocations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if opts.user != "" {
				return nil
			}
			if u, err := user.Current(); err == nil {
				opts.user = u.Username
				return nil
			}
			return fmt.Errorf("--user is required")
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("FLAE_CONFIG"), "config file")
	root.PersistentFlags().StringVar(&opts.server, "server", os.Getenv("FLAE_SERVER"), "bot base URL; empty uses the local store")
	root.PersistentFlags().StringVar(&opts.apiKey, "api-key", os.Getenv("FLAE_API_KEY"), "API key for --server")
	root.PersistentFlags().StringVar(&opts.user, "user", os.Getenv("FLAE_USER"), "user id (defaults to the OS user)")
	root.PersistentFlags().StringVar(&opts.invocationID, "invocation-id", "", "idempotency key; reuse it to retry safely")
	root.PersistentFlags().BoolVar(&opts.plain, "plain", false, "plain output without borders")

	r := &runner{opts: opts, open: open}
	root.AddCommand(newSessionCmd(r))
	root.AddCommand(newAllocCmd(r))
	root.AddCommand(newRegisterCmd(opts))
	root.AddCommand(newMigrateCmd(opts))
	return root
}

func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.LoadFile(opts.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openBackend(ctx context.Context, opts *options) (backend, func() error, error) {
	if opts.server != "" {
		return botapi.NewClient(opts.server, opts.apiKey), func() error { return nil }, nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	store, err := repository.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	engine, err := policy.Load(ctx, cfg.PolicyFile)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	svc := service.New(store, service.SystemClock{}, cfg, engine)
	return dispatch.New(svc), store.Close, nil
}
