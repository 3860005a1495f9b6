//go:build !darwin && !linux

package probe

func osVersion() string { return "" }

func kernelVersion() string { return "" }
