package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/olehluchkiv/gosignature/internal/analyzer"
	"github.com/olehluchkiv/gosignature/internal/config"
	"github.com/olehluchkiv/gosignature/internal/diagram"
	"github.com/olehluchkiv/gosignature/internal/logging"
	"github.com/olehluchkiv/gosignature/internal/resolver"
	"github.com/olehluchkiv/gosignature/internal/schema"
	"github.com/olehluchkiv/gosignature/internal/server"
	"github.com/olehluchkiv/gosignature/pkg/cache"
	"github.com/olehluchkiv/gosignature/pkg/signature"
)

type app struct {
	v          *viper.Viper
	configFile string
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:   "gosignature",
		Short: "Describe the constructor, properties and methods of Go types",
		Long: `gosignature extracts normalized object signatures from Go packages or a
YAML schema, caches them locally and optionally in Redis or SQL, and renders
them as text, JSON or Mermaid class diagrams.

Types are named "<import path>.<Name>". With the packages provider, ".Name"
and "./pkg.Name" are resolved against the analyzed module.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if cmd.Flags().Changed("schema") && !cmd.Flags().Changed("provider") {
				a.v.Set("provider", config.ProviderSchema)
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (default ./gosignature.yaml)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-file", "logs/gosignature.log", "log file path, empty for stderr only")
	pf.String("provider", config.ProviderPackages, "metadata provider (packages, schema)")
	pf.String("schema", "", "YAML schema file; selects the schema provider")
	pf.String("filter", "", "package path prefix filter for listed types")
	pf.Bool("include-stdlib", false, "include standard library types")
	pf.Bool("include-unexported", false, "include unexported types")
	pf.String("untyped-properties", "reject", "untyped property policy (reject, allow)")
	pf.Duration("cache-ttl", 0, "shared cache entry lifetime, 0 for no expiry")
	pf.String("redis-addr", "", "Redis address for the shared cache")
	pf.String("sql-driver", "", "database/sql driver for the shared cache (sqlite3, pgx, postgres)")
	pf.String("sql-dsn", "", "data source name for the SQL cache")

	a.bind(pf.Lookup("log-level"), "log.level")
	a.bind(pf.Lookup("log-file"), "log.file")
	a.bind(pf.Lookup("provider"), "provider")
	a.bind(pf.Lookup("schema"), "schema")
	a.bind(pf.Lookup("filter"), "filter")
	a.bind(pf.Lookup("include-stdlib"), "include_stdlib")
	a.bind(pf.Lookup("include-unexported"), "include_unexported")
	a.bind(pf.Lookup("untyped-properties"), "untyped_properties")
	a.bind(pf.Lookup("cache-ttl"), "cache.ttl")
	a.bind(pf.Lookup("redis-addr"), "cache.redis.addr")
	a.bind(pf.Lookup("sql-driver"), "cache.sql.driver")
	a.bind(pf.Lookup("sql-dsn"), "cache.sql.dsn")

	root.AddCommand(
		a.inspectCmd(),
		a.abstractCmd(),
		a.diagramCmd(),
		a.typesCmd(),
		a.serveCmd(),
		a.cacheCmd(),
	)
	return root
}

func (a *app) bind(flag *pflag.Flag, key string) {
	if err := a.v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("binding flag %s: %v", flag.Name, err))
	}
}

func (a *app) inspectCmd() *cobra.Command {
	var asJSON, colored bool
	cmd := &cobra.Command{
		Use:   "inspect [path] <type>...",
		Short: "Print the signature of one or more types",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, ids, err := a.openTypes(cmd.Context(), args)
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			for i, id := range ids {
				sig, err := s.extractor.ReadSignature(cmd.Context(), id)
				if err != nil {
					return err
				}
				if asJSON {
					if err := writeJSON(out, sig); err != nil {
						return err
					}
					continue
				}
				if i > 0 {
					fmt.Fprintln(out)
				}
				if err := diagram.WriteText(out, sig, colored); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print signatures as JSON")
	cmd.Flags().BoolVar(&colored, "color", false, "colorize text output")
	return cmd
}

func (a *app) abstractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "abstract [path] <type>...",
		Short: "Report whether types can be instantiated directly",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, ids, err := a.openTypes(cmd.Context(), args)
			if err != nil {
				return err
			}
			defer s.Close()

			for _, id := range ids {
				abstract, err := s.extractor.IsAbstract(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %t\n", id, abstract)
			}
			return nil
		},
	}
}

func (a *app) diagramCmd() *cobra.Command {
	var (
		output      string
		hidePrivate bool
		maxMembers  int
	)
	cmd := &cobra.Command{
		Use:   "diagram [path] <type>...",
		Short: "Render types as a Mermaid class diagram",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, ids, err := a.openTypes(cmd.Context(), args)
			if err != nil {
				return err
			}
			defer s.Close()

			opts := diagram.DefaultDiagramOptions()
			opts.HidePrivate = hidePrivate
			opts.MaxMembersPerBox = maxMembers
			opts.Abstract = make(map[string]bool, len(ids))
			// File output: include %%{init:}%% for standalone .mmd rendering
			opts.IncludeInit = output != ""

			sigs := make([]*signature.ObjectSignature, 0, len(ids))
			for _, id := range ids {
				sig, err := s.extractor.ReadSignature(cmd.Context(), id)
				if err != nil {
					return err
				}
				abstract, err := s.extractor.IsAbstract(cmd.Context(), id)
				if err != nil {
					return err
				}
				opts.Abstract[sig.ObjectName] = abstract
				sigs = append(sigs, sig)
			}
			mermaid := diagram.GenerateMermaid(sigs, opts)

			if output == "" {
				fmt.Fprintln(cmd.OutOrStdout(), mermaid)
				return nil
			}
			if err := os.WriteFile(output, []byte(mermaid), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote diagram to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the diagram to a file")
	cmd.Flags().BoolVar(&hidePrivate, "hide-private", false, "omit private members")
	cmd.Flags().IntVar(&maxMembers, "max-members", diagram.DefaultDiagramOptions().MaxMembersPerBox, "members shown per class before truncating")
	return cmd
}

func (a *app) typesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types [path]",
		Short: "List the types the provider can describe",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := a.open(cmd.Context(), args)
			if err != nil {
				return err
			}
			defer s.Close()

			for _, id := range s.types.Identifiers() {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func (a *app) serveCmd() *cobra.Command {
	var noBrowser bool
	cmd := &cobra.Command{
		Use:   "serve [path]",
		Short: "Serve signatures and diagrams over HTTP",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := a.open(cmd.Context(), args)
			if err != nil {
				return err
			}
			defer s.Close()

			api := server.NewAPI(s.extractor, s.logger,
				server.WithTypes(s.types),
				server.WithIdentifierExpansion(s.expand))

			fmt.Fprintf(cmd.OutOrStdout(), "Starting server on http://localhost:%d\n", s.cfg.Server.Port)
			return server.Serve(cmd.Context(), api, server.Config{
				Port:            s.cfg.Server.Port,
				ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
				OpenBrowser:     !noBrowser,
			}, s.logger)
		},
	}
	cmd.Flags().Int("port", 8080, "HTTP server port")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "skip auto-opening browser")
	a.bind(cmd.Flags().Lookup("port"), "server.port")
	return cmd
}

func (a *app) cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the shared signature cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached signature from the shared tier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, cleanup, err := a.setup()
			if err != nil {
				return err
			}
			defer cleanup()

			store, closeStore := openStore(cmd.Context(), cfg.Cache, logger)
			if store == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No shared cache available")
				return nil
			}
			defer closeStore()

			if err := store.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("clearing cache: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared")
			return nil
		},
	})
	return cmd
}

// session is everything a command needs to answer signature queries.
type session struct {
	cfg       *config.Config
	logger    *slog.Logger
	extractor *signature.Extractor
	types     server.Lister
	expand    func(string) string
	closers   []func()
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// setup loads the configuration and the logger it describes.
func (a *app) setup() (*config.Config, *slog.Logger, func(), error) {
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return nil, nil, nil, err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, cleanup, err := logging.Setup(cfg.Log.File, level)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	return cfg, logger, cleanup, nil
}

// open builds a session. With the packages provider the first argument is
// the path or GitHub URL to analyze; the remaining arguments are returned,
// expanded against the module path.
func (a *app) open(ctx context.Context, args []string) (*session, []string, error) {
	cfg, logger, cleanup, err := a.setup()
	if err != nil {
		return nil, nil, err
	}
	s := &session{cfg: cfg, logger: logger, expand: func(id string) string { return id }}
	s.closers = append(s.closers, cleanup)

	var provider signature.Provider
	switch cfg.Provider {
	case config.ProviderSchema:
		p, err := schema.Load(cfg.Schema)
		if err != nil {
			s.Close()
			return nil, nil, err
		}
		logger.Info("schema loaded", "file", cfg.Schema, "types_count", len(p.Identifiers()))
		provider, s.types = p, p
	default:
		if len(args) == 0 {
			s.Close()
			return nil, nil, errors.New("a path or GitHub URL to analyze is required")
		}
		mod, resolverCleanup, err := resolver.Resolve(ctx, args[0], logger)
		if err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("resolving input: %w", err)
		}
		s.closers = append(s.closers, resolverCleanup)
		args = args[1:]

		p, err := analyzer.NewProvider(ctx, mod.Dir, analyzer.Options{
			Filter:            cfg.Filter,
			IncludeStdlib:     cfg.IncludeStdlib,
			IncludeUnexported: cfg.IncludeUnexported,
		}, logger)
		if err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("analyzing packages: %w", err)
		}
		provider, s.types = p, p
		s.expand = func(id string) string { return resolver.ExpandIdentifier(mod.Path, id) }
	}

	cacheOpts := []cache.Option{cache.WithLogger(logger)}
	if store, closeStore := openStore(ctx, cfg.Cache, logger); store != nil {
		cacheOpts = append(cacheOpts, cache.WithStore(store))
		s.closers = append(s.closers, closeStore)
	}
	policy, err := cfg.UntypedPolicy()
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	s.extractor = signature.NewExtractor(provider,
		cache.New[*signature.ObjectSignature](cacheOpts...),
		signature.WithUntypedProperties(policy),
		signature.WithCacheTTL(cfg.Cache.TTL),
		signature.WithLogger(logger))

	ids := make([]string, len(args))
	for i, arg := range args {
		ids[i] = s.expand(strings.TrimSpace(arg))
	}
	return s, ids, nil
}

// openTypes is open for commands that need at least one type.
func (a *app) openTypes(ctx context.Context, args []string) (*session, []string, error) {
	s, ids, err := a.open(ctx, args)
	if err != nil {
		return nil, nil, err
	}
	if len(ids) == 0 {
		s.Close()
		return nil, nil, errors.New("at least one type is required")
	}
	return s, ids, nil
}

// openStore connects the configured shared tier. Redis wins over SQL. An
// unreachable store is logged and the cache stays process-local.
func openStore(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) (cache.Store, func()) {
	switch {
	case cfg.Redis.Addr != "":
		store, err := cache.NewRedisStore(ctx, cfg.RedisStoreConfig())
		if err != nil {
			logger.Warn("shared cache unavailable, using process-local cache", "backend", "redis", "error", err)
			return nil, func() {}
		}
		logger.Info("shared cache connected", "backend", "redis", "addr", cfg.Redis.Addr)
		return store, func() { _ = store.Close() }
	case cfg.SQL.Driver != "":
		store, err := cache.OpenSQLStore(ctx, cfg.SQL.Driver, cfg.SQL.DSN, cfg.SQL.Table)
		if err != nil {
			logger.Warn("shared cache unavailable, using process-local cache", "backend", cfg.SQL.Driver, "error", err)
			return nil, func() {}
		}
		logger.Info("shared cache connected", "backend", cfg.SQL.Driver, "table", cfg.SQL.Table)
		return store, func() { _ = store.Close() }
	default:
		return nil, func() {}
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
