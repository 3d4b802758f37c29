package compiler

import (
	"fmt"
	"runtime"
)

// Target is a host description. Output is always a linux/amd64 ELF image;
// the target only decides whether that image can run here.
type Target struct {
	OS   string
	Arch string
}

// osNames and archNames map accepted names (the names Go uses, plus the
// common aliases) to canonical ones.
var (
	osNames = map[string]string{
		"linux":   "linux",
		"darwin":  "darwin",
		"windows": "windows",
	}
	archNames = map[string]string{
		"amd64":   "amd64",
		"x86_64":  "amd64",
		"386":     "386",
		"x86":     "386",
		"arm64":   "arm64",
		"aarch64": "arm64",
	}
)

// HostTarget returns the Target of the running Go program.
func HostTarget() *Target {
	t, err := ResolveTarget(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return &Target{OS: runtime.GOOS, Arch: runtime.GOARCH}
	}
	return t
}

// ResolveTarget builds a Target from OS/Arch names.
func ResolveTarget(osName, archName string) (*Target, error) {
	goos, ok := osNames[osName]
	if !ok {
		return nil, fmt.Errorf("unsupported OS: %s", osName)
	}
	goarch, ok := archNames[archName]
	if !ok {
		return nil, fmt.Errorf("unsupported architecture: %s", archName)
	}
	return &Target{OS: goos, Arch: goarch}, nil
}

// CanExecute reports whether images produced by the compiler run on t.
func (t *Target) CanExecute() bool {
	return t.OS == "linux" && t.Arch == "amd64"
}

func (t *Target) String() string {
	return t.OS + "/" + t.Arch
}
