package gitexec

import (
	"context"
	"log/slog"
	"os"
	"testing"
)

func testInvoker() *Invoker {
	return &Invoker{GitPath: "git", Log: slog.New(slog.NewTextHandler(os.Stderr, nil))}
}

func TestRunSuccess(t *testing.T) {
	dir := t.TempDir()
	inv := testInvoker()
	ctx := context.Background()

	if _, err := inv.Run(ctx, dir, nil, "init", "--bare"); err != nil {
		t.Fatalf("git init --bare failed: %v", err)
	}

	res, err := inv.Run(ctx, dir, nil, "rev-parse", "--is-bare-repository")
	if err != nil {
		t.Fatalf("rev-parse failed: %v", err)
	}
	if res.Stdout != "true" {
		t.Errorf("expected bare repo, got stdout=%q", res.Stdout)
	}
}

func TestRunNonRetryableExitCode(t *testing.T) {
	inv := testInvoker()
	ctx := context.Background()

	_, err := inv.Run(ctx, t.TempDir(), nil, "this-is-not-a-git-command")
	if err == nil {
		t.Fatal("expected error for unknown git subcommand")
	}
}

func TestRunWithRetryStopsOnNonRetryableExitCode(t *testing.T) {
	inv := testInvoker()
	ctx := context.Background()

	_, err := inv.RunWithRetry(ctx, t.TempDir(), nil, "clone", "--depth=1", "file:///does/not/exist", "x")
	if err == nil {
		t.Fatal("expected error cloning a nonexistent local path")
	}
}
