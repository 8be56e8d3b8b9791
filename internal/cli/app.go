// Package cli is the terminal front end: cobra commands driving the session
// gate and the character and inventory boards against the tracker API.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ttrpg-tracker/internal/apiclient"
	"ttrpg-tracker/internal/app/session"
	"ttrpg-tracker/internal/app/view"
	"ttrpg-tracker/internal/platform/config"
	"ttrpg-tracker/internal/platform/localstore"
	"ttrpg-tracker/internal/platform/observability"
)

// errSilent marks a failure that has already been reported to the user.
var errSilent = errors.New("reported")

type Option func(*App)

func WithStorage(s session.Storage) Option {
	return func(a *App) { a.store = s }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(a *App) { a.httpClient = hc }
}

func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

func WithExitDelay(d time.Duration) Option {
	return func(a *App) { a.exitDelay = &d }
}

// App holds the state shared by every command in one process. In the shell it
// lives across commands, so the lockout counter and the boards persist.
type App struct {
	cfg        config.ClientConfig
	in         *bufio.Reader
	stdin      io.Reader
	out        io.Writer
	errOut     io.Writer
	verbose    bool
	running    bool
	now        func() time.Time
	httpClient *http.Client
	exitDelay  *time.Duration

	logger zerolog.Logger
	store  session.Storage
	client *apiclient.Client
	gate   *session.Gate

	boardsFor uuid.UUID
	chars     *view.CharacterBoard
	items     map[uuid.UUID]*view.InventoryBoard
}

func NewApp(cfg config.ClientConfig, in io.Reader, out, errOut io.Writer, opts ...Option) *App {
	a := &App{
		cfg:    cfg,
		stdin:  in,
		in:     bufio.NewReader(in),
		out:    out,
		errOut: errOut,
		now:    time.Now,
		logger: zerolog.Nop(),
		items:  map[uuid.UUID]*view.InventoryBoard{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run executes one command line and returns the process exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	if err := a.execute(ctx, args); err != nil {
		return 1
	}
	return 0
}

// execute runs args against a fresh command tree and reports any failure.
// Errors raised before a command body runs are usage errors and print as is.
func (a *App) execute(ctx context.Context, args []string) error {
	a.running = false
	root := a.rootCommand()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	switch {
	case err == nil, errors.Is(err, errSilent):
	case !a.running:
		a.usage(err)
	default:
		a.fail(err)
	}
	return err
}

func (a *App) start(ctx context.Context) error {
	if a.gate != nil {
		return nil
	}
	a.logger = observability.NewCLILogger(a.errOut, a.verbose)

	if a.store == nil {
		path := a.cfg.StatePath
		if path == "" {
			var err error
			if path, err = localstore.DefaultPath(); err != nil {
				return err
			}
		}
		store, err := localstore.Open(path)
		if err != nil {
			return fmt.Errorf("open state file: %w", err)
		}
		a.store = store
	}

	hc := a.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: a.cfg.Timeout}
	}
	client, err := apiclient.New(a.cfg.APIURL, a.store, a.logger, apiclient.WithHTTPClient(hc))
	if err != nil {
		return err
	}
	a.client = client

	var gateOpts []session.Option
	if a.exitDelay != nil {
		gateOpts = append(gateOpts, session.WithExitDelay(*a.exitDelay))
	}
	a.gate = session.NewGate(client, session.NewLockout(a.store, a.now), a.logger, gateOpts...)
	a.gate.Observe(a.onSession)
	a.gate.Start(ctx)
	return nil
}

// onSession drops the boards whenever the signed-in user changes.
func (a *App) onSession(u *session.User) {
	var id uuid.UUID
	if u != nil {
		id = u.ID
	}
	if id == a.boardsFor {
		return
	}
	a.boardsFor = id
	a.chars = nil
	a.items = map[uuid.UUID]*view.InventoryBoard{}
	a.logger.Debug().Str("user_id", id.String()).Msg("session changed")
}

// requireUser applies the route guard for commands that need a session.
func (a *App) requireUser() (*session.User, error) {
	route := view.Guard(a.gate.Resolved(), a.gate.User())
	switch route.Access {
	case view.AccessAllow:
		return a.gate.User(), nil
	case view.AccessRedirect:
		a.warn(route.Message + " Run `tracker login <email>`.")
		return nil, errSilent
	default:
		return nil, errors.New("session not resolved")
	}
}

func (a *App) characterBoard(ctx context.Context) (*view.CharacterBoard, error) {
	u, err := a.requireUser()
	if err != nil {
		return nil, err
	}
	if a.chars == nil {
		b := view.NewCharacterBoard(a.client.Characters(), u.ID, a.logger, a.now)
		if err := b.Load(ctx); err != nil {
			return nil, err
		}
		a.chars = b
	}
	return a.chars, nil
}

func (a *App) inventoryBoard(ctx context.Context, characterID uuid.UUID) (*view.InventoryBoard, error) {
	u, err := a.requireUser()
	if err != nil {
		return nil, err
	}
	b, ok := a.items[characterID]
	if !ok {
		b = view.NewInventoryBoard(a.client.Items(), u.ID, characterID, a.logger, a.now)
		if err := b.Load(ctx); err != nil {
			return nil, err
		}
		a.items[characterID] = b
	}
	return b, nil
}
