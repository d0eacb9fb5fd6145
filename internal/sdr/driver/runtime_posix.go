//go:build !windows

package driver

import (
	"errors"
	"fmt"
	"os/exec"
)

// FindRuntime locates the receive tool of a radio on PATH.
func FindRuntime(runtime string) (string, error) {
	binPath, err := exec.LookPath(runtime)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", NewConfigError(fmt.Sprintf("`%s` not found in PATH", runtime))
		}
		return "", NewConfigError(fmt.Sprintf("failed to locate `%s`: %s", runtime, err))
	}

	return binPath, nil
}
