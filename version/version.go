// Package version reports build information set with -ldflags or recorded by the Go toolchain.
package version //nolint:revive // package name intentionally matches build-info convention

import (
	"fmt"
	"runtime/debug"
)

const develVersion = "dev"

//nolint:gochecknoglobals //version information is set at build time
var (
	Repository = "github.com/pitabwire/sitekit"
	Version    = develVersion
	Commit     string
	Date       string

	readBuildInfo = debug.ReadBuildInfo
)

// Info is the resolved build information.
type Info struct {
	Repository string
	Version    string
	Commit     string
	Date       string
}

// Get fills missing ldflags values from the module build info.
func Get() Info {
	info := Info{Repository: Repository, Version: Version, Commit: Commit, Date: Date}

	bi, ok := readBuildInfo()
	if !ok {
		return info
	}

	if info.Version == develVersion && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, setting := range bi.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = setting.Value
			}
		case "vcs.time":
			if info.Date == "" {
				info.Date = setting.Value
			}
		}
	}
	return info
}

func (i Info) String() string {
	s := i.Repository + " " + i.Version
	if i.Commit != "" {
		s += fmt.Sprintf(" (commit %s", i.Commit)
		if i.Date != "" {
			s += ", built " + i.Date
		}
		s += ")"
	}
	return s
}
