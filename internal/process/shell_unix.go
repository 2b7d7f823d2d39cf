//go:build !windows

package process

import "os/exec"

// shellCommand wraps script in /bin/sh -c. The absolute path avoids PATH lookups.
func shellCommand(script string) *exec.Cmd {
	// #nosec G204
	return exec.Command("/bin/sh", "-c", script)
}
