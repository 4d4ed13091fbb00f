package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pkgmill/pkgmill/pkg/builder"
	"github.com/pkgmill/pkgmill/pkg/types"
)

// Execute walks the scheduled order one package at a time.  A
// package whose same-run dependency already failed or was skipped is
// skipped without being attempted; every per-package error is caught
// here and never unwinds past the loop.  Cancellation of ctx ends
// the loop immediately, preserving terminal states already decided
// and leaving the remainder pending.
func (r *Runner) Execute(ctx context.Context, plan *Plan, rc *RunContext) *RunContext {
	for _, name := range plan.Order {
		if ctx.Err() != nil {
			r.l.Info("Run interrupted, remaining packages left pending")
			rc.Interrupted = true
			break
		}

		if rc.States[name].Terminal() {
			// Decided before the loop started, e.g. a load
			// failure or cycle member.
			continue
		}

		if bad := r.failedDep(plan, rc, name); bad != "" {
			r.l.Info("Skipping package, dependency failed", "package", name, "dependency", bad)
			rc.States[name] = types.StateSkippedDepFailed
			rc.Reasons[name] = "dependency " + bad + " did not build"
			continue
		}

		r.buildOne(ctx, plan, rc, name)
		if rc.Interrupted {
			break
		}
	}
	return rc
}

// failedDep returns the name of a same-run dependency in a failed or
// skipped state, or empty if all dependencies reached success.
func (r *Runner) failedDep(plan *Plan, rc *RunContext, name string) string {
	for dep := range plan.BuildDeps[name] {
		st, ok := rc.States[dep]
		if !ok {
			// Not scheduled at all; it cannot have been
			// built this run.
			return dep
		}
		if st == types.StateFailed || st == types.StateSkippedDepFailed {
			return dep
		}
	}
	return ""
}

func (r *Runner) buildOne(ctx context.Context, plan *Plan, rc *RunContext, name string) {
	pkg := plan.Pkgs[name]
	if pkg == nil {
		rc.MarkFailed(name, "", "package was never resolved")
		return
	}

	version := pkg.Version
	req := builder.Request{
		Pkg:         pkg,
		InstallDeps: plan.InstallDeps[name],
	}
	if ui, ok := plan.Updates[name]; ok {
		req.OldVer = ui.OldVer
		req.NewVer = ui.NewVer
		version = ui.NewVer
	}

	rc.States[name] = types.StateBuilding
	outcome, err := r.builder.Build(ctx, &req)

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Operator abort mid-build: the package never
			// reached a decision.  Partial output is kept so
			// the interrupted attempt can still be inspected.
			var ierr types.ErrInterrupted
			if errors.As(err, &ierr) && ierr.Output != "" {
				rc.Logs[name] = []byte(ierr.Output)
			}
			rc.States[name] = types.StatePending
			rc.Interrupted = true
			return
		}
		rc.MarkFailed(name, version, err.Error())

		var toolErr types.ErrBuildTool
		if errors.As(err, &toolErr) {
			rc.Logs[name] = []byte(toolErr.Output)
			r.notifier.Report(name, fmt.Sprintf("%s\n\ncaptured output:\n%s", toolErr.Error(), toolErr.Output), SubjectBuildFailure)
			return
		}
		var toErr types.ErrTimeout
		if errors.As(err, &toErr) {
			if toErr.Output != "" {
				rc.Logs[name] = []byte(toErr.Output)
			}
			r.notifier.Report(name, fmt.Sprintf("%s\n\ncaptured output:\n%s", toErr.Error(), toErr.Output), SubjectBuildFailure)
			return
		}
		r.notifier.Report(name, err.Error(), SubjectBuildFailure)
		return
	}

	if outcome.Output != nil {
		rc.Logs[name] = outcome.Output
	}

	switch outcome.Status {
	case types.OutcomeSuccess:
		rc.States[name] = types.StateSucceeded
		rc.Succeeded[name] = struct{}{}
		r.l.Info("Package built", "package", name, "version", version)
		if r.publisher != nil {
			if perr := r.publisher.SignAndPublish(outcome.Artifacts); perr != nil {
				// Publication trouble is infrastructure,
				// not a build failure.
				r.l.Warn("Error publishing", "package", name, "error", perr)
			}
		}

	case types.OutcomeMissingDeps:
		// The packages exist but their artifacts are not
		// usable at build time, typically a sibling failure
		// earlier in the run.
		merr := types.ErrMissingDependencies{Pkg: name, Deps: outcome.MissingDeps}
		rc.MarkFailed(name, version, merr.Error())
		r.notifier.Report(name, r.describeMissing(rc, merr), SubjectMissingDeps)

	case types.OutcomeUnsupportedEnv:
		uerr := types.ErrUnsupportedEnvironment{Pkg: name, Detail: outcome.Detail}
		rc.MarkFailed(name, version, uerr.Error())
		r.notifier.Report(name, uerr.Error(), SubjectUnsupportedEnv)
	}
}

// describeMissing annotates a missing-dependency report with whether
// each unmet dependency failed earlier in this same run.
func (r *Runner) describeMissing(rc *RunContext, merr types.ErrMissingDependencies) string {
	lines := []string{merr.Error(), ""}
	for _, dep := range merr.Deps {
		switch rc.States[dep] {
		case types.StateFailed:
			lines = append(lines, dep+": failed earlier in this run")
		case types.StateSkippedDepFailed:
			lines = append(lines, dep+": skipped earlier in this run")
		default:
			lines = append(lines, dep+": not part of this run")
		}
	}
	return strings.Join(lines, "\n")
}
