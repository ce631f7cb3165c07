// Package cli implements the taskctl command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tasklist/internal/apierr"
	"tasklist/internal/client"
	"tasklist/internal/config"
	"tasklist/internal/domain"
)

// LoadFunc supplies configuration to the command tree.
type LoadFunc func() (config.Config, error)

type app struct {
	load   LoadFunc
	logger *logrus.Logger
	client *client.Client

	apiURL   string
	logLevel string
}

// NewRootCommand builds taskctl with configuration from the environment.
func NewRootCommand() *cobra.Command {
	return newRootCommand(config.Load)
}

func newRootCommand(load LoadFunc) *cobra.Command {
	a := &app{load: load}

	root := &cobra.Command{
		Use:           "taskctl",
		Short:         "Manage your task list from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context(), cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&a.apiURL, "api", "", "API base URL (overrides TASKLIST_API_BASEURL)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (overrides TASKLIST_LOG_LEVEL)")

	root.AddCommand(
		a.signUpCommand(),
		a.signInCommand(),
		a.signOutCommand(),
		a.whoAmICommand(),
		a.tasksCommand(),
	)
	a.closeAfterRun(root)
	return root
}

// Execute runs the command tree and prints a user-facing error.
func Execute(root *cobra.Command) error {
	cmd, err := root.ExecuteC()
	if cmd == nil {
		cmd = root
	}
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "error:", describe(err))
	}
	return err
}

func (a *app) open(ctx context.Context, logOut io.Writer) error {
	cfg, err := a.load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.apiURL != "" {
		cfg.API.BaseURL = a.apiURL
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	a.logger = logrus.New()
	a.logger.SetOutput(logOut)
	a.logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	a.logger.SetLevel(level)

	if ctx == nil {
		ctx = context.Background()
	}
	a.client, err = client.New(ctx, cfg, a.logger)
	return err
}

// closeAfterRun wraps every runnable command so the client is closed even
// when the command fails; PersistentPostRun only runs on success.
func (a *app) closeAfterRun(cmd *cobra.Command) {
	if run := cmd.RunE; run != nil {
		cmd.RunE = func(cmd *cobra.Command, args []string) (err error) {
			defer func() {
				if cerr := a.close(); err == nil {
					err = cerr
				}
			}()
			return run(cmd, args)
		}
	}
	for _, sub := range cmd.Commands() {
		a.closeAfterRun(sub)
	}
}

func (a *app) close() error {
	if a.client == nil {
		return nil
	}
	err := a.client.Close()
	a.client = nil
	return err
}

var errNotSignedIn = errors.New("not signed in, run 'taskctl signin' first")

// requireUser resolves the stored credential into a signed-in user.
func (a *app) requireUser(ctx context.Context) (domain.UserIdentity, error) {
	user, err := a.client.Session.Refresh(ctx)
	if err != nil {
		if apierr.IsKind(err, apierr.KindAuthentication) {
			return domain.UserIdentity{}, errNotSignedIn
		}
		return domain.UserIdentity{}, err
	}
	return user, nil
}

// describe renders err for a person; API failures use their generic text.
func describe(err error) string {
	var ce *apierr.ClassifiedError
	if errors.As(err, &ce) {
		return apierr.UserMessage(ce)
	}
	return err.Error()
}
