package types

import (
	"strconv"
)

// A Dependency is a reference from one package to another package it
// must be built against.  Target optionally names a specific
// sub-artifact of the dependency.  Resolved means the dependency is
// already satisfied by a published artifact and needs no in-run
// build.
type Dependency struct {
	Name     string
	Target   string
	Resolved bool
}

// Package represents a single buildable unit in the repository, as
// read in from its recipe on disk.
type Package struct {
	Name       string
	Version    string
	Revision   int
	BuildStyle string
	Depends    []Dependency

	State BuildState
}

// FullVersion returns the version as artifacts carry it, with the
// revision counter appended.
func (p *Package) FullVersion() string {
	return p.Version + "_" + strconv.Itoa(p.Revision)
}

// UpdateInfo carries the version pair the version checker reported
// for a package.
type UpdateInfo struct {
	OldVer string
	NewVer string
}

// BuildState tracks where a package is in the current run.
type BuildState int

// The states a package moves through in one run.  Succeeded, Failed,
// and SkippedDepFailed are terminal.
const (
	StatePending BuildState = iota
	StateBuilding
	StateSucceeded
	StateFailed
	StateSkippedDepFailed
)

func (s BuildState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateBuilding:
		return "building"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateSkippedDepFailed:
		return "skipped-dependency-failed"
	}
	return "unknown"
}

// Terminal returns whether a state is one the package will stay in
// for the rest of the run.
func (s BuildState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateSkippedDepFailed
}

// OutcomeStatus is the tag on a build step result.
type OutcomeStatus int

// The three ways a build step can signal back without a tool error.
const (
	OutcomeSuccess OutcomeStatus = iota
	OutcomeMissingDeps
	OutcomeUnsupportedEnv
)

// Outcome is the tagged result of one build step invocation.  Output
// is the captured combined output of the underlying tool, retained
// for every status so failures can be reported with context.
type Outcome struct {
	Status      OutcomeStatus
	MissingDeps []string
	Detail      string
	Output      []byte
	Artifacts   []string
}
