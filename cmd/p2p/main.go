// Package main provides the p2p binary: the HTTP API server plus a few
// commands to inspect connection types and connected objects from a shell.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/scrypster/p2p/internal/config"
	"github.com/scrypster/p2p/internal/p2p"
	"github.com/scrypster/p2p/internal/server"
	"github.com/scrypster/p2p/pkg/types"
)

const (
	Version = "0.1.0"
	appName = "p2p"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the persistent flags shared by every command.
type options struct {
	typesPath string
	logLevel  string
}

func rootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Posts-to-posts connection query service",
		Long: `p2p serves typed, directed connections between items and users.

Connection types are loaded from a YAML file (--types or P2P_CONNECTION_TYPES).
Every other setting comes from P2P_* environment variables.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.typesPath, "types", "", "Connection types file (overrides P2P_CONNECTION_TYPES)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})
	cmd.AddCommand(serveCmd(opts))
	cmd.AddCommand(typesCmd(opts))
	cmd.AddCommand(connectedCmd(opts))
	cmd.AddCommand(relatedCmd(opts))
	cmd.AddCommand(backupCmd(opts))

	return cmd
}

func serveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, app, err := loadApp(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			addr, err := server.Start(ctx, cfg, app)
			if err != nil {
				return fmt.Errorf("failed to start server: %w", err)
			}
			app.Logger.Info("p2p API listening", "addr", addr, "types", len(app.Registry.All()))

			<-ctx.Done()
			app.Logger.Info("shutting down")
			return nil
		},
	}
}

func typesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List registered connection types",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, app, err := loadApp(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tFROM\tTO\tCARDINALITY\tDESCRIPTION")
			for _, ct := range app.Registry.All() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s-to-%s\t%s\n",
					ct.Name(),
					ct.Object(types.DirectionFrom),
					ct.Object(types.DirectionTo),
					ct.Cardinality(types.DirectionFrom),
					ct.Cardinality(types.DirectionTo),
					ct.Desc(),
				)
			}
			return tw.Flush()
		},
	}
}

// listFlags are the flags of the connected and related commands.
type listFlags struct {
	user      bool
	direction string
	page      int
	perPage   int
	search    string
	asJSON    bool
}

func (f *listFlags) register(cmd *cobra.Command, paging bool) {
	cmd.Flags().BoolVar(&f.user, "user", false, "Treat the id as a user id")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "Print JSON instead of a table")
	if !paging {
		return
	}
	cmd.Flags().StringVar(&f.direction, "direction", "", "from, to or any (resolved from the object when empty)")
	cmd.Flags().IntVar(&f.page, "page", 0, "Page number")
	cmd.Flags().IntVar(&f.perPage, "per-page", 0, "Page size")
	cmd.Flags().StringVar(&f.search, "search", "", "Search term")
}

func (f *listFlags) extra() types.QueryVars {
	extra := types.QueryVars{}
	if f.page > 0 {
		extra["p2p:page"] = f.page
	}
	if f.perPage > 0 {
		extra["p2p:per_page"] = f.perPage
	}
	if f.search != "" {
		extra["p2p:search"] = f.search
	}
	return extra
}

func connectedCmd(opts *options) *cobra.Command {
	flags := &listFlags{}
	cmd := &cobra.Command{
		Use:   "connected <type> <id>",
		Short: "List the objects connected to an item or user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, app, err := loadApp(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()
			ctx := cmd.Context()

			ct, candidate, err := lookup(ctx, app, args, flags.user)
			if err != nil {
				return err
			}

			var d *p2p.Directed
			if flags.direction != "" {
				d, err = ct.SetDirection(types.Direction(flags.direction))
			} else {
				d, err = ct.ResolveDirection(ctx, candidate)
			}
			if err != nil {
				return err
			}

			list, err := d.GetConnected(ctx, candidate, flags.extra())
			if err != nil {
				return err
			}
			return printList(cmd.OutOrStdout(), d.OppositeSide(), list, flags.asJSON)
		},
	}
	flags.register(cmd, true)
	return cmd
}

func relatedCmd(opts *options) *cobra.Command {
	flags := &listFlags{}
	cmd := &cobra.Command{
		Use:   "related <type> <id>",
		Short: "List the objects sharing a connection partner with an item or user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, app, err := loadApp(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()
			ctx := cmd.Context()

			ct, candidate, err := lookup(ctx, app, args, flags.user)
			if err != nil {
				return err
			}
			d, err := ct.ResolveDirection(ctx, candidate)
			if err != nil {
				return err
			}

			list, err := ct.GetRelated(ctx, candidate, nil)
			if err != nil {
				return err
			}
			return printList(cmd.OutOrStdout(), d.Side(), list, flags.asJSON)
		},
	}
	flags.register(cmd, false)
	return cmd
}

// loadConfig reads the environment config, applies the persistent flags and
// installs the default logger.
func loadConfig(opts *options, logOut io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if opts.typesPath != "" {
		cfg.Types.ConnectionTypesPath = opts.typesPath
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: cfg.LogLevel()}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// loadApp is loadConfig followed by opening the application.
func loadApp(opts *options, logOut io.Writer) (*config.Config, *server.App, error) {
	cfg, logger, err := loadConfig(opts, logOut)
	if err != nil {
		return nil, nil, err
	}

	app, err := server.OpenApp(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, app, nil
}

// lookup resolves the <type> <id> arguments.
func lookup(ctx context.Context, app *server.App, args []string, user bool) (*p2p.ConnectionType, types.Object, error) {
	ct, ok := app.Registry.Get(args[0])
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", p2p.ErrUnknownConnectionType, args[0])
	}

	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid id %q", args[1])
	}

	if user {
		u, err := app.Host.Store.GetUser(ctx, id)
		if err != nil {
			return nil, nil, fmt.Errorf("user %d: %w", id, err)
		}
		return ct, u, nil
	}
	item, err := app.Host.Store.GetItem(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("item %d: %w", id, err)
	}
	return ct, item, nil
}

func printList(out io.Writer, side p2p.Side, list *p2p.List, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	if list.Empty() {
		fmt.Fprintln(out, side.Labels().NotFound)
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tP2P_ID")
	for _, obj := range list.Items {
		fmt.Fprintf(tw, "%d\t%s\t%d\n", obj.ObjectID(), side.ItemTitle(obj), obj.P2P().P2PID)
	}
	fmt.Fprintf(tw, "\npage %d of %d\n", list.CurrentPage, list.TotalPages)
	return tw.Flush()
}
