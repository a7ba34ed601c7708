package main

import (
	"os"
	"path/filepath"
	"strings"
)

// envHome relocates relative artifact paths (corpus, checkpoints, bundle and
// history database) away from the working directory.
const envHome = "CHARRNN_HOME"

func resolvePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if home := strings.TrimSpace(os.Getenv(envHome)); home != "" {
		return filepath.Join(home, p)
	}
	return filepath.Clean(p)
}
