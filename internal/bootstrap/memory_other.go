//go:build !linux

package bootstrap

import "errors"

func sysMemory() (uint64, error) {
	return 0, errors.New("memory total unavailable on this platform")
}
