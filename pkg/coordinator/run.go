package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkgmill/pkgmill/pkg/graph"
	"github.com/pkgmill/pkgmill/pkg/runner"
	"github.com/pkgmill/pkgmill/pkg/state"
	"github.com/pkgmill/pkgmill/pkg/types"
	"github.com/pkgmill/pkgmill/pkg/updates"
)

// SubjectCheckerConfig is the notification subject for per-package
// version checker configuration errors.
const SubjectCheckerConfig = "version checker configuration for %s is invalid"

// Run performs one complete orchestration pass.  With no explicit
// packages it scans the whole repository for update signals and
// resolves dependencies; with explicit packages it builds exactly
// those, in the order given, without expanding the dependency graph.
// The returned map is the set of packages that failed this run with
// the version each was attempted at.
//
// The entire run holds a process-exclusive lock; a second instance
// blocks until the first finishes rather than failing.  Durable
// state is committed exactly once, after the loop returns, so a
// crash mid-run never leaves a half-written snapshot.
func (c *Coordinator) Run(ctx context.Context, explicit []string) map[string]string {
	start := time.Now()
	manual := len(explicit) > 0

	if err := c.lock.Lock(); err != nil {
		c.reportInfra("run lock", err)
		return nil
	}
	defer c.lock.Unlock()

	defer func() {
		if rec := recover(); rec != nil {
			c.l.Error("Run failed unexpectedly", "panic", rec)
			c.notifier.ReportAdmin("pkgmill run failed unexpectedly", fmt.Sprintf("%v", rec))
		}
	}()

	snap, err := c.st.Load()
	if err != nil {
		c.reportInfra("state load", err)
		return nil
	}

	var plan *runner.Plan
	var rc *runner.RunContext
	var cls *updates.Classification
	head := snap.LastRev

	if manual {
		plan, rc = c.manualPlan(explicit)
	} else {
		plan, rc, cls, head, err = c.automaticPlan(snap)
		if err != nil {
			// Before the loop starts an infrastructure
			// failure does stop the run.
			c.reportInfra("run setup", err)
			c.storeSummary(&Summary{Start: start, End: time.Now(), Manual: manual, RunError: err.Error()})
			return nil
		}
	}

	rc = c.run.Execute(ctx, plan, rc)

	for name := range rc.Succeeded {
		delete(snap.Failures, name)
	}
	for name, ver := range rc.Failed {
		snap.Failures[name] = ver
	}
	if !manual && !rc.Interrupted {
		// An interrupted run keeps the old revision so recipe
		// changes are reconsidered next time.
		snap.LastRev = head
	}
	if err := c.st.Commit(snap, rc.Logs); err != nil {
		c.reportInfra("state commit", err)
	}

	c.acknowledge(rc, cls, plan.Updates)

	if !manual {
		if err := c.repo.Push(); err != nil {
			c.reportInfra("source push", err)
		}
	}

	c.storeSummary(summarize(rc, head, start, manual))

	failed := make(map[string]string, len(rc.Failed))
	for name, ver := range rc.Failed {
		failed[name] = ver
	}
	c.l.Info("Run complete", "manual", manual, "built", len(rc.Succeeded), "failed", len(failed), "interrupted", rc.Interrupted)
	return failed
}

// automaticPlan computes the full-repository build plan: sync the
// checkout, classify update signals over every managed package, and
// resolve dependencies over the resulting seed set.
func (c *Coordinator) automaticPlan(snap *state.Snapshot) (*runner.Plan, *runner.RunContext, *updates.Classification, string, error) {
	if err := c.repo.HardResetToHEAD(); err != nil {
		c.reportInfra("source reset", err)
	}
	if err := c.repo.Pull(); err != nil {
		// Reported, not fatal: we can still run against the
		// checkout we have.
		c.reportInfra("source pull", err)
	}

	head, err := c.repo.LastCommit()
	if err != nil {
		return nil, nil, nil, "", types.ErrInfrastructure{Op: "source revision", Err: err}
	}

	all, err := c.recipes.All()
	if err != nil {
		return nil, nil, nil, "", types.ErrInfrastructure{Op: "repository scan", Err: err}
	}

	changed := make(map[string]struct{})
	paths, err := c.repo.ChangedPaths(snap.LastRev, head)
	if err != nil {
		c.reportInfra("source diff", err)
	}
	for _, p := range paths {
		if name, ok := c.recipes.PackageForPath(p); ok {
			changed[name] = struct{}{}
		}
	}

	check, err := c.checker.Check(all)
	if err != nil {
		return nil, nil, nil, "", err
	}
	for name, msg := range check.ConfigErrors {
		c.notifier.Report(name, msg, SubjectCheckerConfig)
	}

	bumped := make(map[string]struct{})
	for name := range changed {
		cur, lerr := c.recipes.Load(name)
		if lerr != nil {
			// Resolution will flag it if it gets built.
			continue
		}
		if updates.BuildNumberChanged(c.l, c.repo, snap.LastRev, c.recipes.TemplatePath(name), cur.Revision) {
			bumped[name] = struct{}{}
		}
	}

	cls := updates.Classify(c.l, updates.Signals{
		Updates:        check.Updates,
		Unknown:        check.Unknown,
		ChangedRecipes: changed,
		BumpedRevision: bumped,
	}, snap.Failures)

	if len(cls.Unknown) > 0 {
		// These are withheld from building, so say so once per
		// run rather than leaving them to vanish silently.
		unknown := make([]string, 0, len(cls.Unknown))
		for name := range cls.Unknown {
			unknown = append(unknown, name)
		}
		sort.Strings(unknown)
		c.l.Warn("Packages unknown to the version checker", "packages", unknown)
		c.notifier.ReportAdmin("packages unknown to the version checker", strings.Join(unknown, "\n"))
	}

	seeds := make([]string, 0, len(cls.ToBuild))
	for name := range cls.ToBuild {
		seeds = append(seeds, name)
	}
	sort.Strings(seeds)

	res := c.resolver.Resolve(seeds)

	order, oerr := graph.Order(res.BuildDeps)
	rc := runner.NewRunContext(order)

	for name, reason := range res.LoadFailures {
		rc.MarkFailed(name, attemptVersion(check.Updates, res.Pkgs, name), reason)
	}
	if oerr != nil {
		// A cycle is a configuration error fatal to its
		// members.  Their dependents stay in the order and get
		// skipped by the loop; the rest still builds.
		c.l.Error("Dependency cycle detected", "error", oerr)
		c.notifier.ReportAdmin("dependency cycle in package repository", oerr.Error())
		var cyc types.ErrCycle
		if errors.As(oerr, &cyc) {
			for _, name := range cyc.Members {
				rc.MarkFailed(name, attemptVersion(check.Updates, res.Pkgs, name), oerr.Error())
			}
		}
	}

	plan := runner.Plan{
		Order:       order,
		Pkgs:        res.Pkgs,
		BuildDeps:   res.BuildDeps,
		InstallDeps: res.InstallDeps,
		Updates:     check.Updates,
	}
	return &plan, rc, &cls, head, nil
}

// manualPlan builds exactly the named packages in the order given.
// The caller is asserting these should be attempted regardless of
// interdependency, so the graph is neither expanded nor reordered.
func (c *Coordinator) manualPlan(explicit []string) (*runner.Plan, *runner.RunContext) {
	order := append([]string{}, explicit...)
	rc := runner.NewRunContext(order)

	pkgs := make(map[string]*types.Package, len(order))
	installDeps := make(map[string][]types.Dependency, len(order))
	for _, name := range order {
		p, err := c.recipes.Load(name)
		if err != nil {
			rc.MarkFailed(name, "unknown", err.Error())
			c.notifier.Report(name, err.Error(), graph.SubjectLoadFailure)
			continue
		}
		pkgs[name] = p
		installDeps[name] = p.Depends
	}

	var upd map[string]types.UpdateInfo
	if check, err := c.checker.Check(order); err == nil {
		upd = check.Updates
	} else {
		c.l.Warn("Version checker unavailable for manual run", "error", err)
	}

	plan := runner.Plan{
		Order:       order,
		Pkgs:        pkgs,
		BuildDeps:   make(map[string]map[string]struct{}),
		InstallDeps: installDeps,
		Updates:     upd,
	}
	return &plan, rc
}

// acknowledge tells the version checker which versions are processed,
// per the configured policy.  Only packages the checker reported an
// update for are eligible: dependency-only builds and revision-only
// rebuilds never touch version bookkeeping.
func (c *Coordinator) acknowledge(rc *runner.RunContext, cls *updates.Classification, upd map[string]types.UpdateInfo) {
	names := []string{}
	switch {
	case c.cfg.AckPolicy == "detected" && cls != nil:
		for name := range cls.ToBuild {
			if _, reported := upd[name]; !reported {
				continue
			}
			if _, revOnly := cls.RevisionOnly[name]; revOnly {
				continue
			}
			names = append(names, name)
		}
	default:
		for name := range rc.Succeeded {
			if _, reported := upd[name]; !reported {
				continue
			}
			if cls != nil {
				if _, revOnly := cls.RevisionOnly[name]; revOnly {
					continue
				}
			}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if err := c.checker.MarkTaken(names); err != nil {
		c.reportInfra("version ack", err)
	}
}

func (c *Coordinator) reportInfra(op string, err error) {
	c.l.Error("Infrastructure failure", "op", op, "error", err)
	c.notifier.ReportAdmin("pkgmill infrastructure failure: "+op, err.Error())
}

func attemptVersion(upd map[string]types.UpdateInfo, pkgs map[string]*types.Package, name string) string {
	if ui, ok := upd[name]; ok {
		return ui.NewVer
	}
	if p, ok := pkgs[name]; ok {
		return p.Version
	}
	return "unknown"
}


func summarize(rc *runner.RunContext, rev string, start time.Time, manual bool) *Summary {
	s := Summary{
		Rev:     rev,
		Start:   start,
		End:     time.Now(),
		Manual:  manual,
		States:  make(map[string]string, len(rc.States)),
		Reasons: rc.Reasons,
	}
	for name, st := range rc.States {
		s.States[name] = st.String()
	}
	return &s
}

func (c *Coordinator) storeSummary(s *Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastRun = s
}

// LastRun returns the summary of the most recent run, or nil if none
// has happened yet.
func (c *Coordinator) LastRun() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRun
}

// FailureRecord returns the persisted failure record.
func (c *Coordinator) FailureRecord() (map[string]string, error) {
	snap, err := c.st.Load()
	if err != nil {
		return nil, err
	}
	return snap.Failures, nil
}

// BuildLog returns the stored output of a package's most recent
// build.
func (c *Coordinator) BuildLog(pkg string) ([]byte, error) {
	return c.st.BuildLog(pkg)
}
