package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestFromBuildInfoFillsVCS(t *testing.T) {
	t.Parallel()
	bi := &debug.BuildInfo{
		Main: debug.Module{Version: "v1.2.3"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	got := fromBuildInfo(Info{}, bi)
	if got.Version != "v1.2.3" || got.Commit != "0123456789abcdef0123" || got.BuildTime != "2026-01-02T03:04:05Z" || !got.Modified {
		t.Fatalf("unexpected info %+v", got)
	}
}

func TestFromBuildInfoKeepsLdflags(t *testing.T) {
	t.Parallel()
	bi := &debug.BuildInfo{
		Main:     debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "fromvcs"}},
	}
	got := fromBuildInfo(Info{Version: "v0.1.0", Commit: "fromldflags"}, bi)
	if got.Version != "v0.1.0" || got.Commit != "fromldflags" {
		t.Fatalf("ldflags values overwritten: %+v", got)
	}
	if got := fromBuildInfo(Info{}, bi); got.Version != "" {
		t.Fatalf("(devel) should not be used as a version, got %q", got.Version)
	}
}

func TestResolveNeverEmpty(t *testing.T) {
	t.Parallel()
	info := Resolve()
	if info.Version == "" || info.GoVersion == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if !strings.HasPrefix(String(), info.Version) {
		t.Fatalf("String() = %q, want prefix %q", String(), info.Version)
	}
}

func TestShortCommit(t *testing.T) {
	t.Parallel()
	if got := shortCommit("abc"); got != "abc" {
		t.Fatalf("shortCommit(abc) = %q", got)
	}
	if got := shortCommit("0123456789abcdef"); got != "0123456789ab" {
		t.Fatalf("shortCommit = %q", got)
	}
}
