//go:build !windows

package process

import "syscall"

// Terminate sends SIGTERM to pid. It does not wait for the process to exit.
func Terminate(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}

// Exists reports whether pid can be signalled.
func Exists(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
