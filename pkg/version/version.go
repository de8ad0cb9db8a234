// Package version reports the build identity of the binaries. Version,
// Commit and BuildTime are set with -ldflags "-X"; Commit and BuildTime
// fall back to the VCS stamp of the Go toolchain.
package version

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is the build identity of the running binary.
type Info struct {
	Version   string
	Commit    string
	BuildTime string
	GoVersion string
	Platform  string
}

// Get returns the build identity, completed from the embedded build info
// where the linker flags left defaults.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.fill(bi.Settings)
	}
	return info
}

func (i *Info) fill(settings []debug.BuildSetting) {
	for _, s := range settings {
		switch {
		case s.Key == "vcs.revision" && i.Commit == "unknown":
			i.Commit = s.Value
		case s.Key == "vcs.time" && i.BuildTime == "unknown":
			i.BuildTime = s.Value
		}
	}
}

// Short is the one-line form used in logs.
func (i Info) Short() string {
	return fmt.Sprintf("%s (commit %s, built %s)", i.Version, i.Commit, i.BuildTime)
}

// Print writes the version command output for binary bin.
func (i Info) Print(w io.Writer, bin string) {
	fmt.Fprintf(w, "%s version %s\n", bin, i.Version)
	fmt.Fprintf(w, "  Git Commit: %s\n", i.Commit)
	fmt.Fprintf(w, "  Build Time: %s\n", i.BuildTime)
	fmt.Fprintf(w, "  Go Version: %s\n", i.GoVersion)
	fmt.Fprintf(w, "  OS/Arch:    %s\n", i.Platform)
}
