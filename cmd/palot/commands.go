package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/ItsWendell/palot/internal/config"
	"github.com/ItsWendell/palot/internal/engine"
	"github.com/ItsWendell/palot/internal/logging"
	"github.com/ItsWendell/palot/internal/store"
)

type rootOptions struct {
	server   string
	logLevel string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "palot",
		Short:         "Live client for a coding-agent server",
		Version:       fmt.Sprintf("%s (%s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.server, "server", "", "server base URL (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.AddCommand(
		newAgentsCommand(opts),
		newTailCommand(opts),
		newSendCommand(opts),
		newConfigCommand(opts),
	)
	return cmd
}

func (o *rootOptions) settings() (config.Settings, error) {
	settings, err := config.Load()
	if err != nil {
		return settings, err
	}
	if strings.TrimSpace(o.server) != "" {
		settings.Server.URL = strings.TrimRight(o.server, "/")
	}
	if strings.TrimSpace(o.logLevel) != "" {
		settings.Log.Level = o.logLevel
	}
	return settings, nil
}

func (o *rootOptions) engine() (*engine.Engine, error) {
	settings, err := o.settings()
	if err != nil {
		return nil, err
	}
	log := logging.New(os.Stderr, logging.ParseLevel(settings.Log.Level))
	return engine.New(settings, log), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newAgentsCommand(opts *rootOptions) *cobra.Command {
	var directory string
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List agent sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			eng, err := opts.engine()
			if err != nil {
				return err
			}
			sessions, err := eng.Scoped(directory).ListSessions(ctx)
			if err != nil {
				return err
			}
			eng.Store().Update(func(tx *store.Tx) {
				for _, sess := range sessions {
					tx.UpsertSession(*sess)
				}
			})
			for _, summary := range eng.Views().Agents() {
				title := summary.Title
				if title == "" {
					title = "(untitled)"
				}
				if summary.Hydrating {
					title = "(hydrating)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-26s %-6s %-10s %s\n",
					summary.ID, summary.Status, summary.Activity, title)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&directory, "directory", "d", "", "filter by project directory")
	return cmd
}

func newTailCommand(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "tail <session-id>",
		Short: "Follow a session's conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := args[0]
			ctx, cancel := signalContext()
			defer cancel()
			eng, err := opts.engine()
			if err != nil {
				return err
			}
			if err := eng.Connect(ctx); err != nil {
				return err
			}
			defer eng.Close()
			if err := eng.LoadInitialSnapshot(ctx, sessionID, limit); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printed := map[string]int{}
			render := func() {
				for _, turn := range eng.Views().Turns(sessionID) {
					if turn.User != nil {
						printDelta(out, printed, eng.Views().LiveText(turn.User.ID), turn.User.ID, "> ")
					}
					for _, msg := range turn.Assistant {
						printDelta(out, printed, eng.Views().LiveText(msg.ID), msg.ID, "")
					}
				}
			}
			render()
			unsubscribe := eng.Views().Subscribe("turns", render)
			defer unsubscribe()

			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 200, "messages to hydrate")
	return cmd
}

func printDelta(out io.Writer, printed map[string]int, text, id, prefix string) {
	n := printed[id]
	if len(text) <= n {
		return
	}
	if n == 0 && prefix != "" {
		_, _ = out.Write([]byte(prefix))
	}
	_, _ = out.Write([]byte(text[n:]))
	printed[id] = len(text)
}

func newSendCommand(opts *rootOptions) *cobra.Command {
	var directory string
	cmd := &cobra.Command{
		Use:   "send <session-id> <text>",
		Short: "Send a prompt to a session",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			eng, err := opts.engine()
			if err != nil {
				return err
			}
			return eng.Scoped(directory).SendPrompt(ctx, args[0], strings.Join(args[1:], " "))
		},
	}
	cmd.Flags().StringVarP(&directory, "directory", "d", "", "project directory scope")
	return cmd
}

func newConfigCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.Path()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := opts.settings()
			if err != nil {
				return err
			}
			data, err := toml.Marshal(settings)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})
	return cmd
}
