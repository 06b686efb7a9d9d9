//go:build linux

package bootstrap

import (
	"fmt"
	"os"
	"syscall"
)

func switchIdentity(id Identity) error {
	if err := syscall.Setgroups(id.Groups); err != nil {
		return fmt.Errorf("setgroups: %w", err)
	}
	if err := syscall.Setgid(id.GID); err != nil {
		return fmt.Errorf("setgid: %w", err)
	}
	if err := syscall.Setuid(id.UID); err != nil {
		return fmt.Errorf("setuid: %w", err)
	}
	return nil
}

func execSelf(path string, argv, env []string) error {
	return syscall.Exec(path, argv, env)
}

func selfExecutable() (string, error) {
	if _, err := os.Stat("/proc/self/exe"); err == nil {
		return os.Readlink("/proc/self/exe")
	}
	return os.Executable()
}
