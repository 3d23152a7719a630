// Command form4 prints recent SEC Form 4 insider activity for a company or
// for the whole market.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/trogers1052/form4-tracker/internal/cache"
	"github.com/trogers1052/form4-tracker/internal/config"
	"github.com/trogers1052/form4-tracker/internal/edgar"
	"github.com/trogers1052/form4-tracker/internal/service"
	"github.com/trogers1052/form4-tracker/internal/syncer"
)

// app is the wiring shared by every subcommand
type app struct {
	cfg     *config.Config
	service *service.Form4Service
	out     io.Writer
	closers []func() error
}

var current *app

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SetArgs(normalizeArgs(os.Args[1:]))
	err := root.ExecuteContext(ctx)
	if current != nil {
		current.close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "form4",
		Short:         "Track SEC Form 4 insider transactions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configFile, _ := cmd.Flags().GetString("config")
			verbose, _ := cmd.Flags().GetBool("verbose")
			if !verbose {
				log.SetOutput(io.Discard)
			}

			a, err := newApp(configFile, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			current = a
			return nil
		},
	}

	root.PersistentFlags().String("config", "", "config file path (default: ./form4.yaml)")
	root.PersistentFlags().BoolP("verbose", "v", false, "log sync progress to stderr")

	root.AddCommand(newCompanyCmd(), newLatestCmd(), newLookupCmd(), newRefreshCmd())
	return root
}

// newApp builds the Form 4 service on a cache the CLI can reach without a database
func newApp(configFile string, out io.Writer) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, out: out}

	backend, err := a.cacheBackend()
	if err != nil {
		return nil, err
	}
	store := cache.NewStore(backend, cache.WithMaxAge(cfg.Cache.MaxAge, cfg.Cache.LenientMaxAge))

	clientCfg := edgar.DefaultClientConfig(cfg.Edgar.UserAgent)
	clientCfg.RateLimit = cfg.Edgar.RateLimit
	clientCfg.Timeout = cfg.Edgar.Timeout
	clientCfg.MaxRetries = cfg.Edgar.MaxRetries
	clientCfg.ClassifierMode = edgar.ClassifierMode(cfg.Edgar.ClassifierMode)
	client, err := edgar.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create EDGAR client: %w", err)
	}

	engine := syncer.NewEngine(client, store, syncer.Config{
		Workers:       cfg.Sync.Workers,
		Buffer:        cfg.Sync.Buffer,
		DefaultTarget: cfg.Sync.DefaultTarget,
	})
	a.service = service.NewForm4Service(engine, client, nil, store)
	return a, nil
}

// cacheBackend uses Redis or memory when configured and the file cache
// otherwise, including when the server is configured for Postgres
func (a *app) cacheBackend() (cache.Backend, error) {
	switch a.cfg.Cache.Backend {
	case config.CacheBackendMemory:
		return cache.NewMemoryBackend(), nil
	case config.CacheBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		a.closers = append(a.closers, client.Close)
		return cache.NewRedisBackend(client, cache.DefaultRedisPrefix, a.cfg.Cache.LenientMaxAge), nil
	default:
		backend, err := cache.NewFileBackend(a.cfg.Cache.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open cache directory: %w", err)
		}
		return backend, nil
	}
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			log.Printf("Error closing resource: %v", err)
		}
	}
}
