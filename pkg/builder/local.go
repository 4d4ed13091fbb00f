package builder

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/pkgmill/pkgmill/pkg/types"
)

// Markers the build tool emits on its output to signal structured
// conditions back to the loop.
const (
	markerMissingDep     = "MISSING_DEPENDENCY:"
	markerUnsupportedEnv = "UNSUPPORTED_ENVIRONMENT:"
	markerArtifact       = "ARTIFACT:"
)

// New returns a local builder that operates on the checkout.  The
// mounts are exposed to every build.
func New(l hclog.Logger, path string, cmd, mounts []string, defaultBudget, shortBudget time.Duration, shortStyles []string) *Local {
	x := Local{
		l:             l.Named("builder"),
		cmd:           cmd,
		mounts:        mounts,
		defaultBudget: defaultBudget,
		shortBudget:   shortBudget,
		shortStyles:   make(map[string]struct{}, len(shortStyles)),
	}
	x.path, _ = filepath.Abs(path)
	for _, s := range shortStyles {
		x.shortStyles[s] = struct{}{}
	}
	return &x
}

// Budget returns the time budget for a package.  Build styles with
// poor failure signaling get the short budget so a wedged build
// doesn't hold the whole run.
func (b *Local) Budget(p *types.Package) time.Duration {
	if _, ok := b.shortStyles[p.BuildStyle]; ok {
		return b.shortBudget
	}
	return b.defaultBudget
}

// Build runs the build tool for one package under its time budget.
// On timeout the whole process group is killed before the timeout is
// propagated, so no orphaned toolchain children linger.
func (b *Local) Build(ctx context.Context, req *Request) (*types.Outcome, error) {
	args := append([]string{}, b.cmd[1:]...)
	for _, d := range req.InstallDeps {
		spec := d.Name
		if d.Target != "" {
			spec = d.Target
		}
		args = append(args, "-d", spec)
	}
	for _, m := range append(append([]string{}, b.mounts...), req.BindMounts...) {
		args = append(args, "-m", m)
	}
	args = append(args, req.Pkg.Name)

	output := &bytes.Buffer{}
	cmd := exec.Command(b.cmd[0], args...)
	cmd.Dir = b.path
	cmd.Stdout = output
	cmd.Stderr = output
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	budget := b.Budget(req.Pkg)
	b.l.Debug("Building package", "package", req.Pkg.Name, "budget", budget)
	if err := cmd.Start(); err != nil {
		b.l.Warn("Error starting build tool", "package", req.Pkg.Name, "error", err)
		return nil, types.ErrBuildTool{Cmd: b.cmd[0], ExitCode: -1, Output: err.Error()}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(budget)
	defer timer.Stop()

	var werr error
	select {
	case werr = <-done:
	case <-timer.C:
		b.killGroup(cmd)
		<-done
		b.l.Warn("Build exceeded budget", "package", req.Pkg.Name, "budget", budget)
		return nil, types.ErrTimeout{Pkg: req.Pkg.Name, Budget: budget, Output: output.String()}
	case <-ctx.Done():
		b.killGroup(cmd)
		<-done
		return nil, types.ErrInterrupted{Err: ctx.Err(), Output: output.String()}
	}

	out := b.parseOutput(output.Bytes())
	if werr == nil {
		out.Status = types.OutcomeSuccess
		b.l.Debug("Build succeeded", "package", req.Pkg.Name, "artifacts", len(out.Artifacts))
		return out, nil
	}

	// A nonzero exit with a structured marker is a tagged outcome,
	// not a tool error.
	switch {
	case len(out.MissingDeps) > 0:
		out.Status = types.OutcomeMissingDeps
		return out, nil
	case out.Detail != "":
		out.Status = types.OutcomeUnsupportedEnv
		return out, nil
	}

	code := -1
	var exitError *exec.ExitError
	if errors.As(werr, &exitError) {
		code = exitError.ExitCode()
	}
	b.l.Warn("Build tool failed", "package", req.Pkg.Name, "exit", code)
	return nil, types.ErrBuildTool{
		Cmd:      b.cmd[0] + " " + strings.Join(args, " "),
		ExitCode: code,
		Output:   output.String(),
	}
}

func (b *Local) killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	// Negative pid kills the whole process group.
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		b.l.Warn("Error killing process group", "pid", cmd.Process.Pid, "error", err)
	}
}

func (b *Local) parseOutput(raw []byte) *types.Outcome {
	out := types.Outcome{Output: raw}
	s := bufio.NewScanner(bytes.NewReader(raw))
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		switch {
		case strings.HasPrefix(line, markerMissingDep):
			out.MissingDeps = append(out.MissingDeps, strings.TrimSpace(strings.TrimPrefix(line, markerMissingDep)))
		case strings.HasPrefix(line, markerUnsupportedEnv):
			out.Detail = strings.TrimSpace(strings.TrimPrefix(line, markerUnsupportedEnv))
		case strings.HasPrefix(line, markerArtifact):
			out.Artifacts = append(out.Artifacts, strings.TrimSpace(strings.TrimPrefix(line, markerArtifact)))
		}
	}
	return &out
}
