package main

import (
	"path/filepath"
	"testing"
)

func TestResolvePath(t *testing.T) {
	t.Run("relative without home", func(t *testing.T) {
		t.Setenv(envHome, "")
		if got := resolvePath("training_checkpoints/"); got != "training_checkpoints" {
			t.Fatalf("got %q", got)
		}
	})

	t.Run("relative with home", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv(envHome, home)
		want := filepath.Join(home, "one_step")
		if got := resolvePath("one_step"); got != want {
			t.Fatalf("got %q want %q", got, want)
		}
	})

	t.Run("absolute ignores home", func(t *testing.T) {
		t.Setenv(envHome, t.TempDir())
		abs := filepath.Join(t.TempDir(), "words.txt")
		if got := resolvePath(abs); got != abs {
			t.Fatalf("got %q want %q", got, abs)
		}
	})

	t.Run("empty stays empty", func(t *testing.T) {
		t.Setenv(envHome, t.TempDir())
		if got := resolvePath("  "); got != "" {
			t.Fatalf("got %q", got)
		}
	})
}

func TestParseCount(t *testing.T) {
	t.Parallel()
	if n, err := parseCount("12", "epochs"); err != nil || n != 12 {
		t.Fatalf("parseCount(12) = %d, %v", n, err)
	}
	for _, raw := range []string{"", "-1", "abc", "1.5"} {
		if _, err := parseCount(raw, "epochs"); err == nil {
			t.Fatalf("parseCount(%q) should fail", raw)
		}
	}
}
