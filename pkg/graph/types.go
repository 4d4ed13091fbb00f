package graph

import (
	"github.com/hashicorp/go-hclog"

	"github.com/pkgmill/pkgmill/pkg/types"
)

// RecipeSource loads package recipes out of the repository.
type RecipeSource interface {
	Load(name string) (*types.Package, error)
	Exists(name string) bool
}

// Availability answers whether an artifact is already published at a
// version, making an in-run build of it unnecessary.
type Availability interface {
	Available(artifact, version string) bool
}

// Reporter is the slice of the notifier the resolver needs to flag
// packages whose recipes could not be loaded.
type Reporter interface {
	Report(pkg, errInfo, subject string)
}

// Resolver discovers the set of packages a seed set transitively
// requires built this run.
type Resolver struct {
	l hclog.Logger

	recipes  RecipeSource
	idx      Availability
	reporter Reporter
}

// A Resolution is the full output of one resolver pass.
type Resolution struct {
	// Pkgs holds every successfully loaded package, seeds and
	// discovered dependencies alike.
	Pkgs map[string]*types.Package

	// BuildDeps maps each package to the set of dependencies
	// that must also be built this run.
	BuildDeps map[string]map[string]struct{}

	// InstallDeps maps each package to its dependencies in
	// declaration order, the form the build step consumes.
	InstallDeps map[string][]types.Dependency

	// LoadFailures holds packages whose recipes failed to load or
	// that reference packages missing from the repository, with
	// the reason.
	LoadFailures map[string]string
}
