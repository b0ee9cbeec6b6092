// Package buildinfo identifies the running build. The variables are set with
// -ldflags "-X tickos/internal/buildinfo.Version=...".
package buildinfo

import "runtime/debug"

var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Info is the resolved build identity.
type Info struct {
	Version string
	Commit  string
	Date    string
	// Modified is set when the VCS tree was dirty at build time.
	Modified bool
}

// Read returns the build identity. Values missing from the linker flags are
// filled from the VCS stamp the go command embeds, when there is one.
func Read() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Date == "" {
				info.Date = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

// Short returns a compact identifier for logs: the version when one was
// stamped, else an abbreviated commit, else "dev".
func Short() string { return Read().Short() }

func (i Info) Short() string {
	switch {
	case i.Version != "" && i.Version != "dev":
		return i.Version
	case i.Commit != "":
		c := i.Commit
		if len(c) > 12 {
			c = c[:12]
		}
		if i.Modified {
			c += "+dirty"
		}
		return c
	default:
		return "dev"
	}
}
