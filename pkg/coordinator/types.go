package coordinator

import (
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/hashicorp/go-hclog"

	"github.com/pkgmill/pkgmill/pkg/config"
	"github.com/pkgmill/pkgmill/pkg/graph"
	"github.com/pkgmill/pkgmill/pkg/notify"
	"github.com/pkgmill/pkgmill/pkg/recipe"
	"github.com/pkgmill/pkgmill/pkg/runner"
	"github.com/pkgmill/pkgmill/pkg/source"
	"github.com/pkgmill/pkgmill/pkg/state"
	"github.com/pkgmill/pkgmill/pkg/updates"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// A Summary is the in-memory record of the most recent run, kept for
// the HTTP surface.
type Summary struct {
	Rev      string
	Start    time.Time
	End      time.Time
	Manual   bool
	States   map[string]string
	Reasons  map[string]string
	RunError string
}

// Coordinator is the single entry point that ties classification,
// resolution, scheduling, and execution together for one run at a
// time.
type Coordinator struct {
	l   hclog.Logger
	cfg *config.Config

	repo     *source.RepoMngr
	recipes  *recipe.Loader
	resolver *graph.Resolver
	checker  updates.VersionChecker
	run      *runner.Runner
	notifier notify.Notifier
	st       *state.Store

	lock *flock.Flock

	trigger chan []string

	mu      sync.Mutex
	lastRun *Summary
}

// WithLogger sets the parent logger.
func WithLogger(l hclog.Logger) Option {
	return func(c *Coordinator) {
		c.l = l.Named("coordinator")
	}
}

// WithRepo provides the source control manager.
func WithRepo(r *source.RepoMngr) Option {
	return func(c *Coordinator) {
		c.repo = r
	}
}

// WithRecipes provides the recipe loader.
func WithRecipes(ld *recipe.Loader) Option {
	return func(c *Coordinator) {
		c.recipes = ld
	}
}

// WithResolver provides the dependency resolver.
func WithResolver(r *graph.Resolver) Option {
	return func(c *Coordinator) {
		c.resolver = r
	}
}

// WithChecker provides the version checker collaborator.
func WithChecker(vc updates.VersionChecker) Option {
	return func(c *Coordinator) {
		c.checker = vc
	}
}

// WithRunner provides the execution loop.
func WithRunner(r *runner.Runner) Option {
	return func(c *Coordinator) {
		c.run = r
	}
}

// WithNotifier provides the failure notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Coordinator) {
		c.notifier = n
	}
}

// WithState provides the durable state store.
func WithState(s *state.Store) Option {
	return func(c *Coordinator) {
		c.st = s
	}
}

// New returns a coordinator assembled from the given options.
func New(cfg *config.Config, opts ...Option) *Coordinator {
	c := Coordinator{
		l:       hclog.L(),
		cfg:     cfg,
		lock:    flock.New(cfg.LockPath),
		trigger: make(chan []string, 1),
	}
	for _, o := range opts {
		o(&c)
	}
	return &c
}
