// Package probe records what the host machine offers: CPU features and the
// operating system version. The record is informational and is gathered
// once per run.
package probe

import (
	"bufio"
	"io"
	"runtime"
	"slices"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// Unknown is reported for any attribute that could not be read.
const Unknown = "unknown"

// Capability describes the host. It is never mutated after Probe returns.
type Capability struct {
	OS            string `json:"os"`
	Arch          string `json:"arch"`
	OSVersion     string `json:"os_version"`
	KernelVersion string `json:"kernel_version"`
	CPUBrand      string `json:"cpu_brand"`
	// CPUFeatures is a sorted set of feature names, e.g. "AVX2", "SSE4".
	CPUFeatures []string `json:"cpu_features"`
}

// HasFeature reports whether the CPU advertises name.
func (c Capability) HasFeature(name string) bool {
	_, found := slices.BinarySearch(c.CPUFeatures, name)
	return found
}

// Probe inspects the host. It never fails; unreadable attributes are
// reported as Unknown.
func Probe() Capability {
	c := Capability{
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
		OSVersion:     orUnknown(osVersion()),
		KernelVersion: orUnknown(kernelVersion()),
		CPUBrand:      orUnknown(strings.TrimSpace(cpuid.CPU.BrandName)),
		CPUFeatures:   normalizeFeatures(cpuid.CPU.FeatureSet()),
	}
	return c
}

func normalizeFeatures(in []string) []string {
	out := make([]string, 0, len(in))
	for _, f := range in {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return Unknown
	}
	return strings.TrimSpace(s)
}

// parseOSRelease returns VERSION_ID from an os-release file.
func parseOSRelease(r io.Reader) string {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, "=")
		if !ok || key != "VERSION_ID" {
			continue
		}
		return strings.Trim(value, `"'`)
	}
	return ""
}
