package runner

import (
	"github.com/hashicorp/go-hclog"

	"github.com/pkgmill/pkgmill/pkg/builder"
	"github.com/pkgmill/pkgmill/pkg/notify"
	"github.com/pkgmill/pkgmill/pkg/types"
)

// Notification subjects used by the loop.
const (
	SubjectBuildFailure   = "%s failed to build"
	SubjectUnsupportedEnv = "%s cannot be built in this environment"
	SubjectMissingDeps    = "%s is missing dependencies"
)

// A Plan is everything the loop needs for one run: the scheduled
// order and the per-package data resolution produced.
type Plan struct {
	Order       []string
	Pkgs        map[string]*types.Package
	BuildDeps   map[string]map[string]struct{}
	InstallDeps map[string][]types.Dependency

	// Updates carries version pairs for packages the checker
	// reported; packages absent here build at their recipe
	// version.
	Updates map[string]types.UpdateInfo
}

// A RunContext is the run-scoped accumulator threaded through the
// loop.  It is owned by the coordinator, which merges it into the
// durable failure record after the loop returns; the loop itself
// never touches persisted state.
type RunContext struct {
	States  map[string]types.BuildState
	Reasons map[string]string

	// Failed maps each package that failed this run to the
	// version it was attempted at.
	Failed map[string]string

	// Succeeded lists packages built cleanly this run.
	Succeeded map[string]struct{}

	// Logs holds captured build output per attempted package.
	Logs map[string][]byte

	Interrupted bool
}

// NewRunContext returns an accumulator with every scheduled package
// pending.
func NewRunContext(order []string) *RunContext {
	rc := RunContext{
		States:    make(map[string]types.BuildState, len(order)),
		Reasons:   make(map[string]string),
		Failed:    make(map[string]string),
		Succeeded: make(map[string]struct{}),
		Logs:      make(map[string][]byte),
	}
	for _, name := range order {
		rc.States[name] = types.StatePending
	}
	return &rc
}

// MarkFailed records a terminal failure decided outside the loop,
// such as a resolution load failure or a cycle member.
func (rc *RunContext) MarkFailed(name, version, reason string) {
	rc.States[name] = types.StateFailed
	rc.Reasons[name] = reason
	rc.Failed[name] = version
}

// Runner walks a scheduled order and drives the build step for each
// package.
type Runner struct {
	l hclog.Logger

	builder   builder.Builder
	publisher builder.Publisher
	notifier  notify.Notifier
}

// New returns a Runner over the given collaborators.
func New(l hclog.Logger, b builder.Builder, p builder.Publisher, n notify.Notifier) *Runner {
	return &Runner{
		l:         l.Named("runner"),
		builder:   b,
		publisher: p,
		notifier:  n,
	}
}
