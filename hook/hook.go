package hook

import (
	"strings"

	"dockwatch/shell"

	"github.com/pkg/errors"
)

// Runner invokes named hooks from the config registry on the host shell.
type Runner struct {
	exec     shell.CommandExecutor
	registry map[string]string
}

func NewRunner(exec shell.CommandExecutor, registry map[string]string) *Runner {
	return &Runner{
		exec:     exec,
		registry: registry,
	}
}

// Invoke runs the command registered under name.
func (r *Runner) Invoke(name string) error {
	cmd, ok := r.registry[name]
	if !ok {
		return errors.Errorf("unknown hook %q", name)
	}

	out, err := r.exec.Execute("sh", "-c", cmd)
	if err != nil {
		return errors.Wrapf(err, "hook %s failed: %s", name, strings.TrimSpace(string(out)))
	}
	return nil
}
