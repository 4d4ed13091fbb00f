package types

import (
	"fmt"
	"strings"
	"time"
)

// ErrRecipe is returned when a package's recipe cannot be loaded or
// references a package that does not exist in the repository.
type ErrRecipe struct {
	Pkg    string
	Detail string
}

func (e ErrRecipe) Error() string {
	return "recipe error for " + e.Pkg + ": " + e.Detail
}

// ErrCycle is returned when the build dependencies cannot be
// flattened because some packages depend on each other.
type ErrCycle struct {
	Members []string
}

func (e ErrCycle) Error() string {
	return "dependency cycle among: " + strings.Join(e.Members, ", ")
}

// ErrBuildTool is returned when the underlying build tool exits
// nonzero or produces output the builder cannot interpret.
type ErrBuildTool struct {
	Cmd      string
	ExitCode int
	Output   string
}

func (e ErrBuildTool) Error() string {
	return fmt.Sprintf("build tool failed: %s (exit %d)", e.Cmd, e.ExitCode)
}

// ErrTimeout is returned when a build exceeds its time budget.  The
// builder terminates the whole process group before returning it.
// Output holds whatever the tool wrote before it was cut off.
type ErrTimeout struct {
	Pkg    string
	Budget time.Duration
	Output string
}

func (e ErrTimeout) Error() string {
	return fmt.Sprintf("build of %s exceeded budget of %s", e.Pkg, e.Budget)
}

// ErrInterrupted is returned when a build is cut short by an
// operator-requested abort rather than by anything the package did.
// It unwraps to the context error so callers can tell abort from
// failure.
type ErrInterrupted struct {
	Err    error
	Output string
}

func (e ErrInterrupted) Error() string {
	return "build interrupted: " + e.Err.Error()
}

func (e ErrInterrupted) Unwrap() error {
	return e.Err
}

// ErrMissingDependencies is returned when a build cannot proceed
// because dependency artifacts are absent at build time.  This is
// distinct from a resolution-time missing package: the packages
// exist, but their artifacts are not available, typically because a
// sibling build failed earlier in the run.
type ErrMissingDependencies struct {
	Pkg  string
	Deps []string
}

func (e ErrMissingDependencies) Error() string {
	return e.Pkg + " is missing dependencies: " + strings.Join(e.Deps, ", ")
}

// ErrUnsupportedEnvironment is returned when a package cannot be
// built in this environment at all, such as a deprecated build
// target.  These are not retried automatically.
type ErrUnsupportedEnvironment struct {
	Pkg    string
	Detail string
}

func (e ErrUnsupportedEnvironment) Error() string {
	return e.Pkg + " cannot be built here: " + e.Detail
}

// ErrInfrastructure wraps failures outside the build loop proper:
// source control sync, version checker configuration, and the like.
// These are reported to the administrative contact and do not stop a
// loop already in progress.
type ErrInfrastructure struct {
	Op  string
	Err error
}

func (e ErrInfrastructure) Error() string {
	return "infrastructure failure during " + e.Op + ": " + e.Err.Error()
}

func (e ErrInfrastructure) Unwrap() error {
	return e.Err
}
