// Package version reports build metadata injected with -ldflags -X, falling
// back to the vcs stamps the go toolchain embeds.
package version

import (
	"fmt"
	"runtime/debug"
	"strconv"
)

// AppName names the service in logs, traces, profiles and build_info.
const AppName = "playdrop"

// Set with -ldflags "-X github.com/keithlinneman/playdrop/internal/version.Version=...".
var (
	Version    = "dev"
	Commit     = "none"
	CommitDate string
	BuildDate  string
	BuildId    string
	GoVersion  string
	VCSDirty   *bool
)

type Info struct {
	AppName    string `json:"app_name"`
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	CommitDate string `json:"commit_date"`
	BuildDate  string `json:"build_date"`
	BuildId    string `json:"build_id"`
	GoVersion  string `json:"go_version"`
	VCSDirty   *bool  `json:"vcs_dirty,omitempty"`
}

// Dirty renders VCSDirty as "true", "false" or "unknown".
func (i Info) Dirty() string {
	if i.VCSDirty == nil {
		return "unknown"
	}
	return strconv.FormatBool(*i.VCSDirty)
}

func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%s)",
		i.AppName, i.Version, i.Commit, i.CommitDate, i.BuildId, i.BuildDate, i.GoVersion, i.Dirty())
}

func Get() Info {
	out := Info{
		AppName:    AppName,
		Version:    Version,
		Commit:     Commit,
		CommitDate: CommitDate,
		BuildDate:  BuildDate,
		BuildId:    BuildId,
		GoVersion:  GoVersion,
		VCSDirty:   VCSDirty,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		out.GoVersion = bi.GoVersion
		for _, s := range bi.Settings {
			out.applyVCS(s.Key, s.Value)
		}
	}
	return out
}

// applyVCS fills gaps left by ldflags from one embedded vcs setting.
func (i *Info) applyVCS(key, val string) {
	if val == "" {
		return
	}
	switch key {
	case "vcs.revision":
		if i.Commit == "none" {
			i.Commit = val
		}
	case "vcs.time":
		i.CommitDate = val
		if i.BuildDate == "" {
			i.BuildDate = val
		}
	case "vcs.modified":
		if b, err := strconv.ParseBool(val); err == nil {
			i.VCSDirty = &b
		}
	}
}
