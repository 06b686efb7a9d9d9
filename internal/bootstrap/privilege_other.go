//go:build !linux

package bootstrap

import (
	"errors"
	"os"
)

var errPrivilegeUnsupported = errors.New("privilege drop is only supported on linux; start as a non-root user")

func switchIdentity(Identity) error { return errPrivilegeUnsupported }

func execSelf(string, []string, []string) error { return errPrivilegeUnsupported }

func selfExecutable() (string, error) { return os.Executable() }
