// Package commands implements the deviceauth command line.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/openclaw/deviceauth-go/internal/client"
	"github.com/openclaw/deviceauth-go/internal/cliconfig"
	"github.com/openclaw/deviceauth-go/internal/credstore"
	apperrors "github.com/openclaw/deviceauth-go/internal/errors"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	return newRootCommand(os.Stdout, os.Stderr, os.Environ).Run(ctx, args)
}

func newRootCommand(out, errOut io.Writer, environ func() []string) *cli.Command {
	r := &runner{out: out, errOut: errOut, environ: environ}

	return &cli.Command{
		Name:      "deviceauth",
		Usage:     "Sign this device in to an OpenClaw account",
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
			},
			&cli.StringFlag{
				Name:  "server-url",
				Usage: "authorization server base URL",
			},
			&cli.StringFlag{
				Name:  "credentials--storage",
				Usage: "where to keep the credential (file|keyring)",
			},
			&cli.StringFlag{
				Name:  "credentials--file",
				Usage: "credential file path for file storage",
			},
			&cli.StringFlag{
				Name:  "credentials--keyring-user",
				Usage: "keyring entry user for keyring storage",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "pair this device and store the issued credential",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "do not try to open the verification page",
					},
				},
				Action: r.login,
			},
			{
				Name:   "logout",
				Usage:  "remove the stored credential",
				Action: r.logout,
			},
			{
				Name:   "whoami",
				Usage:  "show the account of the stored credential",
				Action: r.whoami,
			},
		},
	}
}

type runner struct {
	out     io.Writer
	errOut  io.Writer
	environ func() []string
}

func (r *runner) setup(cmd *cli.Command) (*cliconfig.Config, credstore.Store, error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, r.environ)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: r.errOut, NoColor: true}).
		Level(level).With().Timestamp().Logger()

	store, err := cfg.Credentials.NewStore()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	return cfg, store, nil
}

func (r *runner) login(ctx context.Context, cmd *cli.Command) error {
	cfg, store, err := r.setup(cmd)
	if err != nil {
		return err
	}

	api, err := client.NewAPIClient(cfg.ServerURL)
	if err != nil {
		return err
	}

	opts := client.LoginOptions{
		API:       api,
		Store:     store,
		Presenter: client.NewTextPresenter(r.errOut),
	}
	if !cfg.NoBrowser {
		opts.OpenBrowser = client.OpenBrowser
	}

	log.Debug().Str("server", cfg.ServerURL).Msg("starting device pairing")

	cred, err := client.Login(ctx, opts)
	if err != nil {
		return describeLoginError(err)
	}

	fmt.Fprintf(r.out, "Signed in as %s\n", cred.Account.Email)
	return nil
}

func (r *runner) logout(ctx context.Context, cmd *cli.Command) error {
	_, store, err := r.setup(cmd)
	if err != nil {
		return err
	}

	if err := store.Delete(ctx); err != nil {
		return fmt.Errorf("failed to remove credential: %w", err)
	}
	fmt.Fprintln(r.out, "Signed out")
	return nil
}

func (r *runner) whoami(ctx context.Context, cmd *cli.Command) error {
	_, store, err := r.setup(cmd)
	if err != nil {
		return err
	}

	cred, err := store.Read(ctx)
	if errors.Is(err, credstore.ErrNotFound) {
		return errors.New("not signed in, run `deviceauth login`")
	}
	if err != nil {
		return fmt.Errorf("failed to read credential: %w", err)
	}

	fmt.Fprintf(r.out, "%s <%s>\n", cred.Account.Name, cred.Account.Email)
	fmt.Fprintf(r.out, "Signed in %s\n", cred.IssuedAt.Local().Format("2006-01-02 15:04"))
	if len(cred.Workspaces) > 0 {
		names := make([]string, 0, len(cred.Workspaces))
		for _, ws := range cred.Workspaces {
			names = append(names, fmt.Sprintf("%s (%s)", ws.Name, ws.Role))
		}
		fmt.Fprintf(r.out, "Workspaces: %s\n", strings.Join(names, ", "))
	}
	return nil
}

func describeLoginError(err error) error {
	switch {
	case apperrors.HasCode(err, apperrors.ErrCodeAccessDenied):
		return errors.New("pairing was denied")
	case apperrors.HasCode(err, apperrors.ErrCodeExpired):
		return errors.New("pairing code expired, run login again")
	case apperrors.HasCode(err, apperrors.ErrCodeClientTimeout):
		return errors.New("timed out waiting for approval")
	default:
		return err
	}
}
