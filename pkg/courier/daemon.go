package courier

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alcionai/clues"

	"github.com/monoco-dev/fabric/internal/clock"
	"github.com/monoco-dev/fabric/pkg/courier/debounce"
	"github.com/monoco-dev/fabric/pkg/courier/state"
	"github.com/monoco-dev/fabric/pkg/courierapi"
	"github.com/monoco-dev/fabric/pkg/logger"
	"github.com/monoco-dev/fabric/pkg/mailbox"
	"github.com/monoco-dev/fabric/pkg/metrics"
)

// DaemonConfig configures a single daemon run.
type DaemonConfig struct {
	ProjectRoot string
	Host        string
	Port        int
	Debug       bool
}

// Daemon composes the mailbox store, lock/state manager, debounce
// handler, and HTTP API into the long-running background process that
// handles inbound/outbound message traffic for one project.
type Daemon struct {
	cfg DaemonConfig

	mailboxRoot string

	Store    *mailbox.Store
	Locks    *state.LockManager
	States   *state.MessageStateManager
	Registry *Registry
	Debounce *debounce.Handler
	API      *courierapi.Server
	Metrics  *metrics.Collectors
}

// NewDaemon constructs a Daemon for cfg without starting anything.
func NewDaemon(cfg DaemonConfig) *Daemon {
	return &Daemon{cfg: cfg}
}

// Initialize wires every component together and loads persisted
// state. Must be called before Run.
func (d *Daemon) Initialize() error {
	d.mailboxRoot = filepath.Join(d.cfg.ProjectRoot, ".monoco", "mailbox")

	if err := d.ensureDirectories(); err != nil {
		return err
	}

	d.Store = mailbox.New(d.mailboxRoot)

	clk := clock.New()

	d.Locks = state.NewLockManager(d.Store.LocksPath(), clk)
	if err := d.Locks.Initialize(); err != nil {
		return clues.Wrap(err, "initializing lock manager")
	}

	d.Metrics = metrics.New()
	d.States = state.NewMessageStateManager(d.Locks, d.Store).WithMetrics(d.Metrics)

	d.Registry = NewRegistry(DefaultRegistryFile())
	if err := d.Registry.Load(); err != nil {
		return clues.Wrap(err, "loading project registry")
	}

	d.Debounce = debounce.NewHandler(debounce.DefaultConfig, d.onDebounceFlush, clk)

	d.API = courierapi.NewServer(d.Locks, d.States, d.Registry, d.cfg.Host, d.cfg.Port, clk).WithMetrics(d.Metrics)

	return nil
}

func (d *Daemon) ensureDirectories() error {
	dirs := []string{
		d.mailboxRoot,
		filepath.Join(d.mailboxRoot, "inbound"),
		filepath.Join(d.mailboxRoot, "outbound"),
		filepath.Join(d.mailboxRoot, "archive"),
		filepath.Join(d.mailboxRoot, ".state"),
		filepath.Join(d.mailboxRoot, ".deadletter"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return clues.Wrap(err, "creating mailbox directory").With("dir", dir)
		}
	}

	return nil
}

func (d *Daemon) onDebounceFlush(messages []mailbox.Message) {
	logger.Ctx(context.Background()).Infow("debounce flush", "count", len(messages))
}

// Run starts the HTTP API and the debounce idle-sweeper, blocking
// until ctx is cancelled or a SIGTERM/SIGINT arrives.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	errCh := make(chan error, 1)

	go func() {
		errCh <- d.API.ListenAndServe(ctx)
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.Debounce.Shutdown()
			d.Debounce.FlushAll()

			return <-errCh
		case <-ticker.C:
			d.Debounce.CheckIdle()
		case err := <-errCh:
			return err
		}
	}
}
