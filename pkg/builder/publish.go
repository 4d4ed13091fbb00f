package builder

import (
	"os/exec"

	"github.com/hashicorp/go-hclog"

	"github.com/pkgmill/pkgmill/pkg/types"
)

// ExecPublisher shells out to an external sign-and-publish tool with
// the artifact paths appended.
type ExecPublisher struct {
	l   hclog.Logger
	cmd []string
}

// NewExecPublisher returns a publisher around the configured
// command.
func NewExecPublisher(l hclog.Logger, cmd []string) *ExecPublisher {
	return &ExecPublisher{
		l:   l.Named("publish"),
		cmd: cmd,
	}
}

// SignAndPublish signs and publishes the given artifacts.  With no
// command configured publication is disabled and artifacts stay
// local.
func (p *ExecPublisher) SignAndPublish(artifacts []string) error {
	if len(artifacts) == 0 || len(p.cmd) == 0 {
		return nil
	}
	args := append(append([]string{}, p.cmd[1:]...), artifacts...)
	if err := exec.Command(p.cmd[0], args...).Run(); err != nil {
		p.l.Warn("Error publishing artifacts", "count", len(artifacts), "error", err)
		return types.ErrInfrastructure{Op: "publish", Err: err}
	}
	p.l.Debug("Published artifacts", "count", len(artifacts))
	return nil
}
