package cache

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/gitcachehq/git-cache/internal/gitexec"
)

func testInvoker() *gitexec.Invoker {
	return gitexec.New(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

// newOrigin creates a local, non-bare repository with one commit on its
// default branch and returns its file:// URL, a stand-in for a remote the
// five-phase lifecycle engine can clone from without network access.
func newOrigin(t *testing.T, inv *gitexec.Invoker) string {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	envs := []string{
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
	}
	run := func(args ...string) {
		if _, err := inv.Run(ctx, dir, envs, args...); err != nil {
			t.Fatalf("git %v: %v", args, err)
		}
	}

	run("init")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("write README.md: %v", err)
	}
	run("add", "README.md")
	run("commit", "-m", "initial commit")

	return "file://" + dir
}

func TestEnsureMirrorMaterializesFreshMirror(t *testing.T) {
	inv := testInvoker()
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	originURL := newOrigin(t, inv)
	mirrorPath := filepath.Join(t.TempDir(), "mirror.git")

	if err := EnsureMirror(ctx, inv, log, mirrorPath, originURL); err != nil {
		t.Fatalf("EnsureMirror() error = %v", err)
	}
	if got := Inspect(ctx, inv, mirrorPath, true); got != GitRepoValid {
		t.Errorf("Inspect(mirror) = %v, want GitRepoValid", got)
	}
}

func TestEnsureMirrorFastPathUpdatesInPlace(t *testing.T) {
	inv := testInvoker()
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	originURL := newOrigin(t, inv)
	mirrorPath := filepath.Join(t.TempDir(), "mirror.git")

	if err := EnsureMirror(ctx, inv, log, mirrorPath, originURL); err != nil {
		t.Fatalf("first EnsureMirror() error = %v", err)
	}
	if err := EnsureMirror(ctx, inv, log, mirrorPath, originURL); err != nil {
		t.Fatalf("second EnsureMirror() (fast path) error = %v", err)
	}
	if got := Inspect(ctx, inv, mirrorPath, true); got != GitRepoValid {
		t.Errorf("Inspect(mirror) after fast-path update = %v, want GitRepoValid", got)
	}
}

func TestEnsureMirrorReplacesNonGitDir(t *testing.T) {
	inv := testInvoker()
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	originURL := newOrigin(t, inv)
	mirrorPath := filepath.Join(t.TempDir(), "mirror.git")
	if err := os.MkdirAll(mirrorPath, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(mirrorPath, "junk.txt"), []byte("not a repo"), 0o644); err != nil {
		t.Fatalf("write junk file: %v", err)
	}

	if err := EnsureMirror(ctx, inv, log, mirrorPath, originURL); err != nil {
		t.Fatalf("EnsureMirror() over non-git dir error = %v", err)
	}
	if got := Inspect(ctx, inv, mirrorPath, true); got != GitRepoValid {
		t.Errorf("Inspect(mirror) = %v, want GitRepoValid", got)
	}
}

func TestEnsureCheckoutMaterializesAndValidatesAlternates(t *testing.T) {
	inv := testInvoker()
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	originURL := newOrigin(t, inv)
	mirrorPath := filepath.Join(t.TempDir(), "mirror.git")
	checkoutPath := filepath.Join(t.TempDir(), "checkout")

	if err := EnsureMirror(ctx, inv, log, mirrorPath, originURL); err != nil {
		t.Fatalf("EnsureMirror() error = %v", err)
	}
	if err := EnsureCheckout(ctx, inv, log, mirrorPath, checkoutPath, "full", originURL, 0); err != nil {
		t.Fatalf("EnsureCheckout() error = %v", err)
	}

	if got := Inspect(ctx, inv, checkoutPath, false); got != GitRepoValid {
		t.Errorf("Inspect(checkout) = %v, want GitRepoValid", got)
	}
	if !ValidateAlternates(checkoutPath, mirrorPath) {
		t.Error("ValidateAlternates() = false, want true after EnsureCheckout")
	}
	if _, err := os.Stat(filepath.Join(checkoutPath, "README.md")); err != nil {
		t.Errorf("expected README.md checked out, stat error = %v", err)
	}
}

func TestEnsureCheckoutIsIdempotent(t *testing.T) {
	inv := testInvoker()
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	originURL := newOrigin(t, inv)
	mirrorPath := filepath.Join(t.TempDir(), "mirror.git")
	checkoutPath := filepath.Join(t.TempDir(), "checkout")

	if err := EnsureMirror(ctx, inv, log, mirrorPath, originURL); err != nil {
		t.Fatalf("EnsureMirror() error = %v", err)
	}
	if err := EnsureCheckout(ctx, inv, log, mirrorPath, checkoutPath, "full", originURL, 0); err != nil {
		t.Fatalf("first EnsureCheckout() error = %v", err)
	}
	if err := EnsureCheckout(ctx, inv, log, mirrorPath, checkoutPath, "full", originURL, 0); err != nil {
		t.Fatalf("second EnsureCheckout() error = %v", err)
	}
	if got := Inspect(ctx, inv, checkoutPath, false); got != GitRepoValid {
		t.Errorf("Inspect(checkout) = %v, want GitRepoValid", got)
	}
}

func TestEnsureCheckoutRecreatesWhenAlternatesPointElsewhere(t *testing.T) {
	inv := testInvoker()
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	originURL := newOrigin(t, inv)
	mirrorPath := filepath.Join(t.TempDir(), "mirror.git")
	otherMirrorPath := filepath.Join(t.TempDir(), "other-mirror.git")
	checkoutPath := filepath.Join(t.TempDir(), "checkout")

	if err := EnsureMirror(ctx, inv, log, mirrorPath, originURL); err != nil {
		t.Fatalf("EnsureMirror(mirror) error = %v", err)
	}
	if err := EnsureMirror(ctx, inv, log, otherMirrorPath, originURL); err != nil {
		t.Fatalf("EnsureMirror(otherMirror) error = %v", err)
	}
	if err := EnsureCheckout(ctx, inv, log, otherMirrorPath, checkoutPath, "full", originURL, 0); err != nil {
		t.Fatalf("EnsureCheckout(otherMirror) error = %v", err)
	}

	if err := EnsureCheckout(ctx, inv, log, mirrorPath, checkoutPath, "full", originURL, 0); err != nil {
		t.Fatalf("EnsureCheckout(mirror) after alternates mismatch error = %v", err)
	}
	if !ValidateAlternates(checkoutPath, mirrorPath) {
		t.Error("ValidateAlternates() = false, want true after recreation against the correct mirror")
	}
}

func TestStrategyFlags(t *testing.T) {
	tests := []struct {
		strategy string
		want     []string
	}{
		{"full", nil},
		{"shallow", []string{"--depth=1"}},
		{"treeless", []string{"--filter=tree:0"}},
		{"blobless", []string{"--filter=blob:none"}},
	}
	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			got := strategyFlags(tt.strategy, 0)
			if len(got) != len(tt.want) {
				t.Fatalf("strategyFlags(%q) = %v, want %v", tt.strategy, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("strategyFlags(%q)[%d] = %q, want %q", tt.strategy, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestStrategyFlagsShallowCustomDepth(t *testing.T) {
	got := strategyFlags("shallow", 5)
	want := []string{"--depth=5"}
	if len(got) != 1 || got[0] != want[0] {
		t.Errorf("strategyFlags(shallow, 5) = %v, want %v", got, want)
	}
}
