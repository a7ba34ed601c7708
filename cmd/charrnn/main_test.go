package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/urfave/cli/v3"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ExitErrHandler = func(context.Context, *cli.Command, error) {}
	err := app.Run(context.Background(), append([]string{"charrnn", "--log-level", "error"}, args...))
	return out.String(), err
}

// TestTrainGenerateHistory drives the CLI end to end on a tiny corpus. It uses
// the package-level flag variables and environment, so it is not parallel.
func TestTrainGenerateHistory(t *testing.T) {
	home := t.TempDir()
	t.Setenv(envHome, home)
	t.Setenv(envConfigPath, filepath.Join(home, "missing.yaml"))
	corpus := strings.Repeat("abcabc abc cab bca\n", 10)
	if err := os.WriteFile(filepath.Join(home, defaultCorpus), []byte(corpus), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := runApp(t, "train",
		"--seq-length", "6",
		"--batch-size", "4",
		"--buffer-size", "16",
		"--embedding-dim", "4",
		"--rnn-units", "8",
		"--seed", "1",
		"2",
	)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	for _, p := range []string{
		filepath.Join(defaultCheckpointDir, "ckpt_1"),
		filepath.Join(defaultCheckpointDir, "ckpt_2"),
		filepath.Join(defaultBundleDir, "weights.safetensors"),
		filepath.Join(defaultBundleDir, "vocab.json"),
		filepath.Join(defaultBundleDir, "model.yaml"),
		"charrnn-history.db",
	} {
		if _, err := os.Stat(filepath.Join(home, p)); err != nil {
			t.Fatalf("expected %s: %v", p, err)
		}
	}

	out, err := runApp(t, "generate", "--seed", "3", "5")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	text := strings.TrimSuffix(out, "\n")
	if utf8.RuneCountInString(text) != 6 || !strings.HasPrefix(text, "I") {
		t.Fatalf("generate printed %q, want 6 characters starting with I", text)
	}

	out, err = runApp(t, "history", "--epochs")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "completed") || !strings.Contains(out, "epoch 2") {
		t.Fatalf("unexpected history output:\n%s", out)
	}

	_, err = runApp(t, "train",
		"--seq-length", "6",
		"--batch-size", "4",
		"--embedding-dim", "4",
		"--rnn-units", "8",
		"--resume", "latest",
		"1",
	)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, defaultCheckpointDir, "ckpt_3")); err != nil {
		t.Fatalf("resumed run should continue at epoch 3: %v", err)
	}
}

func TestTrainRequiresEpochs(t *testing.T) {
	home := t.TempDir()
	t.Setenv(envHome, home)
	t.Setenv(envConfigPath, filepath.Join(home, "missing.yaml"))
	if _, err := runApp(t, "train"); err == nil {
		t.Fatal("expected error without <epochs>")
	}
	if _, err := runApp(t, "train", "0"); err == nil {
		t.Fatal("expected error for zero epochs")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runApp(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "version:") {
		t.Fatalf("unexpected output %q", out)
	}
}
