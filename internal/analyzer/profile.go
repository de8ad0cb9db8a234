package analyzer

import (
	"fmt"
	"strings"

	"github.com/memdump-analysis/internal/memorydump"
)

// AnalysisProfile selects how much of each global dump ends up in the report.
type AnalysisProfile string

const (
	// ProfileQuick reports per-dump summaries and allocator stats only.
	ProfileQuick AnalysisProfile = "quick"
	// ProfileStandard adds per-process summaries (default).
	ProfileStandard AnalysisProfile = "standard"
	// ProfileDetailed adds the per-process category breakdown.
	ProfileDetailed AnalysisProfile = "detailed"
)

// ProfileInfo describes a profile for help output.
type ProfileInfo struct {
	Profile     AnalysisProfile
	Description string
	Detail      memorydump.ReportDetail
}

// profiles is ordered from least to most detail.
var profiles = []ProfileInfo{
	{ProfileQuick, "per-dump summary and allocator totals", memorydump.DetailSummary},
	{ProfileStandard, "adds one summary per process", memorydump.DetailProcesses},
	{ProfileDetailed, "adds every category bucket of every process", memorydump.DetailCategories},
}

// Profiles returns the known profiles, least detailed first.
func Profiles() []ProfileInfo {
	out := make([]ProfileInfo, len(profiles))
	copy(out, profiles)
	return out
}

// ValidProfiles returns the profile names joined by ", ".
func ValidProfiles() string {
	names := make([]string, len(profiles))
	for i, p := range profiles {
		names[i] = string(p.Profile)
	}
	return strings.Join(names, ", ")
}

// ParseProfile parses a profile name. An empty name selects ProfileStandard.
func ParseProfile(s string) (AnalysisProfile, error) {
	name := AnalysisProfile(strings.ToLower(strings.TrimSpace(s)))
	if name == "" {
		return ProfileStandard, nil
	}
	for _, p := range profiles {
		if p.Profile == name {
			return name, nil
		}
	}
	return "", fmt.Errorf("unknown analysis profile: %q (valid: %s)", s, ValidProfiles())
}

// ReportDetail returns the report depth selected by the profile. Unknown
// profiles get the standard depth.
func (p AnalysisProfile) ReportDetail() memorydump.ReportDetail {
	for _, info := range profiles {
		if info.Profile == p {
			return info.Detail
		}
	}
	return memorydump.DetailProcesses
}
