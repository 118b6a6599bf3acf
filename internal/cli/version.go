package cli

import (
	"runtime/debug"
	"strings"
)

// Version and Commit are set at build time via -ldflags.
//
//	go build -ldflags "-X github.com/scbrown/flit/internal/cli.Version=v0.2.0
//	  -X github.com/scbrown/flit/internal/cli.Commit=48cae1d"
var (
	Version = ""
	Commit  = ""
)

// devVersion is reported when no version was stamped into the binary.
const devVersion = "0.0.0-dev"

// cliVersion returns the version of the flit binary itself, without a
// leading "v".
func cliVersion() string {
	v := Version
	if v == "" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
	}
	if v == "" {
		v = devVersion
	}
	return strings.TrimPrefix(v, "v")
}

// cliCommit returns the stamped commit, or the VCS revision from build info.
func cliCommit() string {
	if Commit != "" {
		return Commit
	}
	return commitFromBuildInfo()
}

// commitFromBuildInfo extracts vcs.revision from Go's embedded build info.
func commitFromBuildInfo() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}

// shortCommit returns the first 7 characters of a commit hash.
func shortCommit(c string) string {
	if len(c) > 7 {
		return c[:7]
	}
	return c
}
