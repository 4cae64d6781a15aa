// Package version reports the build version of keyhost.
package version

import (
	"runtime/debug"
	"strings"
)

// Version is set at build time via ldflags.
var Version = ""

// String returns Version, falling back to the Go build info.
func String() string {
	return effective(Version, readBuildInfo)
}

var readBuildInfo = debug.ReadBuildInfo

func effective(v string, read func() (*debug.BuildInfo, bool)) string {
	if v != "" {
		return v
	}

	info, ok := read()
	if !ok {
		return "unknown"
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}

	var revision string
	var dirty bool
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}

	if revision == "" {
		return "devel"
	}
	ver := "devel+" + revision
	if len(ver) > 20 {
		ver = ver[:20]
	}
	if dirty {
		ver += "+dirty"
	}
	return ver
}

// IsDevelopment returns true for non-release versions.
func IsDevelopment(v string) bool {
	return v == "" || v == "unknown" || v == "devel" || strings.HasPrefix(v, "devel+")
}
