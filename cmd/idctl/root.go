package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"salonid/internal/app"
	"salonid/internal/config"
	"salonid/pkg/logger"
)

// buildFunc assembles the application; tests replace it.
type buildFunc func(ctx context.Context, cfg *config.Config, log *logger.Logger, opts app.Options) (*app.App, error)

type cli struct {
	build   buildFunc
	memory  bool
	verbose bool

	cfg *config.Config
	app *app.App
}

func newRootCmd(build buildFunc) *cobra.Command {
	if build == nil {
		build = app.Build
	}
	c := &cli{build: build}

	root := &cobra.Command{
		Use:   "idctl",
		Short: "Operate the salon identifier allocator",
		Long: `idctl issues, validates and inspects salon identifiers (CL-73841, CT-10492, ...)
against the configured store. Configuration is read from the same environment
variables as the server (DATABASE_URL, CLAIM_BACKEND, ID_*).`,
		SilenceUsage: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.app != nil {
				c.app.Close()
			}
		},
	}
	root.PersistentFlags().BoolVar(&c.memory, "memory", false, "use a throwaway in-memory store")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log allocator activity to stderr")

	root.AddCommand(
		c.migrateCmd(),
		c.generateCmd(),
		c.batchCmd(),
		c.validateCmd(),
		c.lookupCmd(),
		c.entitiesCmd(),
		c.statsCmd(),
		c.resetCmd(),
		c.selfcheckCmd(),
		c.purgeCmd(),
		c.tokenCmd(),
	)
	return root
}

func (c *cli) loadConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	if c.memory {
		if err := os.Setenv("STORAGE_BACKEND", config.StorageMemory); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

// open builds the application once per invocation.
func (c *cli) open(cmd *cobra.Command, ensureSchema bool) (*app.App, error) {
	if c.app != nil {
		return c.app, nil
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}

	log := logger.Nop()
	if c.verbose {
		if log, err = logger.New(logger.Config{Level: "debug", Development: true, OutputPaths: []string{"stderr"}}); err != nil {
			return nil, err
		}
	}

	a, err := c.build(cmd.Context(), cfg, log, app.Options{EnsureSchema: ensureSchema, PoolMaxConns: 4})
	if err != nil {
		if a != nil {
			a.Close()
		}
		return nil, fmt.Errorf("connect: %w", err)
	}
	c.app = a
	return a, nil
}
