package builder

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/pkgmill/pkgmill/pkg/types"
)

// A Request is all the information required to build one package.
type Request struct {
	Pkg    *types.Package
	OldVer string
	NewVer string

	// InstallDeps in declaration order; resolved entries come
	// from the published index, the rest from this run.
	InstallDeps []types.Dependency

	// BindMounts are host paths exposed to this build in addition
	// to the builder's configured set.
	BindMounts []string
}

// Builder is the build step collaborator.  It signals its three-way
// outcome through the returned Outcome and raises generic tool
// failures as errors.
type Builder interface {
	Build(ctx context.Context, req *Request) (*types.Outcome, error)
}

// Publisher signs and publishes output artifacts after a successful
// build.
type Publisher interface {
	SignAndPublish(artifacts []string) error
}

// Local runs builds serially in the repository checkout.  Many build
// toolchains are not safe to run concurrently against a shared build
// root, so there is exactly one build at a time.
type Local struct {
	l hclog.Logger

	path   string
	cmd    []string
	mounts []string

	defaultBudget time.Duration
	shortBudget   time.Duration
	shortStyles   map[string]struct{}
}
