package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockapp/internal/config"
	"github.com/mamadbah2/stockapp/internal/querycache"
	"github.com/mamadbah2/stockapp/internal/service/stock"
	"github.com/mamadbah2/stockapp/internal/session"
	"github.com/mamadbah2/stockapp/pkg/clients/inventory"
	"github.com/mamadbah2/stockapp/pkg/logger"
)

// sessionID keys the single session kept in the local file store.
const sessionID = "stockctl"

var errNotLoggedIn = errors.New("non connecté: lancez `stockctl login`")

type options struct {
	apiURL      string
	sessionFile string
	timeout     time.Duration
	verbose     bool
}

// cli holds the state shared by every subcommand once PersistentPreRunE ran.
type cli struct {
	opts options
	out  io.Writer

	logger   *zap.Logger
	sessions *session.Manager
	client   *inventory.APIClient
	stock    *stock.Service
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:           "stockctl",
		Short:         "Inventory API command-line client",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.SetOut(out)

	root.PersistentFlags().StringVar(&c.opts.apiURL, "api", "", "Inventory API base URL (default: API_BASE_URL)")
	root.PersistentFlags().StringVar(&c.opts.sessionFile, "session-file", "", "Where the token is kept (default: user config dir)")
	root.PersistentFlags().DurationVar(&c.opts.timeout, "timeout", 0, "API request timeout (default: API_TIMEOUT)")
	root.PersistentFlags().BoolVarP(&c.opts.verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(c.loginCmd())
	root.AddCommand(c.logoutCmd())
	root.AddCommand(c.statsCmd())
	root.AddCommand(c.productsCmd())
	root.AddCommand(c.suppliesCmd())
	root.AddCommand(c.outputsCmd())
	root.AddCommand(c.exportCmd())

	return root
}

func (c *cli) init() error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	if c.opts.apiURL == "" {
		c.opts.apiURL = cfg.API.BaseURL
	}
	if c.opts.timeout <= 0 {
		c.opts.timeout = cfg.API.Timeout
	}
	if c.opts.sessionFile == "" {
		if c.opts.sessionFile, err = session.DefaultFilePath(); err != nil {
			return err
		}
	}

	c.logger, err = logger.NewCLI(c.opts.verbose)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	c.sessions = session.NewManager(session.NewFileStore(c.opts.sessionFile), c.logger.Named("session"))
	c.client = inventory.NewClient(inventory.Options{
		BaseURL: c.opts.apiURL,
		Timeout: c.opts.timeout,
		Tokens:  inventory.TokenFunc(c.sessions.BearerToken),
		Logger:  c.logger.Named("client.inventory"),
	})
	cache := querycache.New(querycache.Options{Logger: c.logger.Named("querycache")})
	c.stock = stock.NewService(c.client, cache, nil, c.logger.Named("svc.stock"))
	return nil
}

// context binds the local session so the client picks up its token.
func (c *cli) context(cmd *cobra.Command) context.Context {
	return session.WithID(cmd.Context(), sessionID)
}

// authenticated returns a session-bound context, or errNotLoggedIn.
func (c *cli) authenticated(cmd *cobra.Command) (context.Context, error) {
	ctx := c.context(cmd)
	token, err := c.sessions.Token(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, errNotLoggedIn
	}
	return ctx, nil
}

// apiError forgets a rejected token so the next command asks for a login.
func (c *cli) apiError(ctx context.Context, err error) error {
	if errors.Is(err, inventory.ErrUnauthorized) {
		if clearErr := c.sessions.Clear(ctx, sessionID, "unauthorized"); clearErr != nil {
			c.logger.Warn("failed to clear session", zap.Error(clearErr))
		}
		return errors.New("session expirée: lancez `stockctl login`")
	}
	return err
}
