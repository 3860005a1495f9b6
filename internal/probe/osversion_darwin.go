//go:build darwin

package probe

import "golang.org/x/sys/unix"

// osVersion returns the macOS product version, e.g. "14.4.1".
func osVersion() string {
	v, err := unix.Sysctl("kern.osproductversion")
	if err != nil {
		return ""
	}
	return v
}

func kernelVersion() string {
	v, err := unix.Sysctl("kern.osrelease")
	if err != nil {
		return ""
	}
	return v
}
