package updates

import (
	"encoding/json"
	"os/exec"

	"github.com/hashicorp/go-hclog"

	"github.com/pkgmill/pkgmill/pkg/types"
)

// A CheckResult is everything one checker pass reports: version
// pairs for updated packages, the requested names the checker does
// not know about, and per-package checker configuration errors.
type CheckResult struct {
	Updates      map[string]types.UpdateInfo
	Unknown      map[string]struct{}
	ConfigErrors map[string]string
}

// VersionChecker is the upstream version collaborator.
type VersionChecker interface {
	Check(names []string) (*CheckResult, error)
	MarkTaken(names []string) error
}

// ExecChecker shells out to an external checker tool.  The check
// command gets the package names appended and must emit one JSON
// entry per requested name it has checker configuration for: an
// oldver/newver pair when an update is pending, an empty object when
// the package is current, or an error string for broken per-package
// configuration.  Names absent from the output entirely are unknown
// to the checker.  A current package is not unknown; the distinction
// matters because unknown packages are withheld from building while
// current ones can still be rebuilt for recipe reasons.
type ExecChecker struct {
	l hclog.Logger

	checkCmd []string
	ackCmd   []string
}

type checkerEntry struct {
	OldVer string `json:"oldver"`
	NewVer string `json:"newver"`
	Error  string `json:"error"`
}

// NewExecChecker returns a checker around the two configured
// commands.
func NewExecChecker(l hclog.Logger, checkCmd, ackCmd []string) *ExecChecker {
	return &ExecChecker{
		l:        l.Named("checker"),
		checkCmd: checkCmd,
		ackCmd:   ackCmd,
	}
}

// Check runs the checker over the named packages.
func (c *ExecChecker) Check(names []string) (*CheckResult, error) {
	args := append(append([]string{}, c.checkCmd[1:]...), names...)
	out, err := exec.Command(c.checkCmd[0], args...).Output()
	if err != nil {
		c.l.Error("Error running version checker", "error", err)
		return nil, types.ErrInfrastructure{Op: "version check", Err: err}
	}

	raw := make(map[string]checkerEntry)
	if err := json.Unmarshal(out, &raw); err != nil {
		c.l.Error("Error decoding checker output", "error", err)
		return nil, types.ErrInfrastructure{Op: "version check", Err: err}
	}

	res := CheckResult{
		Updates:      make(map[string]types.UpdateInfo),
		Unknown:      make(map[string]struct{}),
		ConfigErrors: make(map[string]string),
	}
	for name, e := range raw {
		if e.Error != "" {
			res.ConfigErrors[name] = e.Error
			continue
		}
		if e.NewVer == "" || e.NewVer == e.OldVer {
			// Known to the checker and current upstream.
			continue
		}
		res.Updates[name] = types.UpdateInfo{OldVer: e.OldVer, NewVer: e.NewVer}
	}
	for _, name := range names {
		if _, ok := raw[name]; !ok {
			res.Unknown[name] = struct{}{}
		}
	}

	c.l.Debug("Checker pass complete", "updated", len(res.Updates), "unknown", len(res.Unknown), "badcfg", len(res.ConfigErrors))
	return &res, nil
}

// MarkTaken acknowledges the named packages' versions as processed.
func (c *ExecChecker) MarkTaken(names []string) error {
	if len(names) == 0 {
		return nil
	}
	args := append(append([]string{}, c.ackCmd[1:]...), names...)
	if err := exec.Command(c.ackCmd[0], args...).Run(); err != nil {
		c.l.Warn("Error acknowledging versions", "error", err)
		return types.ErrInfrastructure{Op: "version ack", Err: err}
	}
	return nil
}
