//go:build linux

package probe

import (
	"os"

	"golang.org/x/sys/unix"
)

var osReleasePaths = []string{"/etc/os-release", "/usr/lib/os-release"}

// osVersion returns the distribution VERSION_ID, falling back to the
// kernel release.
func osVersion() string {
	for _, path := range osReleasePaths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		v := parseOSRelease(f)
		f.Close()
		if v != "" {
			return v
		}
	}
	return kernelVersion()
}

func kernelVersion() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return ""
	}
	return unix.ByteSliceToString(uts.Release[:])
}
