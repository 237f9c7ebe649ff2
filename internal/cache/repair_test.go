package cache

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/gitcachehq/git-cache/pkg/giturl"
)

func TestNeedsRepairUpToDate(t *testing.T) {
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

	repair, err := NeedsRepair(ctx, inv, checkoutPath, mirrorPath, 0)
	if err != nil {
		t.Fatalf("NeedsRepair() error = %v", err)
	}
	if repair {
		t.Error("NeedsRepair() = true for a freshly cloned, up-to-date checkout, want false")
	}
}

func TestNeedsRepairAlternatesMismatch(t *testing.T) {
	inv := testInvoker()
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	originURL := newOrigin(t, inv)
	mirrorPath := filepath.Join(t.TempDir(), "mirror.git")
	otherMirrorPath := filepath.Join(t.TempDir(), "other-mirror.git")
	checkoutPath := filepath.Join(t.TempDir(), "checkout")

	if err := EnsureMirror(ctx, inv, log, mirrorPath, originURL); err != nil {
		t.Fatalf("EnsureMirror() error = %v", err)
	}
	if err := EnsureCheckout(ctx, inv, log, mirrorPath, checkoutPath, "full", originURL, 0); err != nil {
		t.Fatalf("EnsureCheckout() error = %v", err)
	}

	repair, err := NeedsRepair(ctx, inv, checkoutPath, otherMirrorPath, 0)
	if err != nil {
		t.Fatalf("NeedsRepair() error = %v", err)
	}
	if !repair {
		t.Error("NeedsRepair() = false against an unrelated mirror, want true")
	}
}

func TestNeedsRepairBehindWithCleanTree(t *testing.T) {
	inv := testInvoker()
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	originDir := t.TempDir()
	envs := []string{
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
	}
	run := func(dir string, args ...string) {
		if _, err := inv.Run(ctx, dir, envs, args...); err != nil {
			t.Fatalf("git %v (in %s): %v", args, dir, err)
		}
	}
	run(originDir, "init")
	if err := os.WriteFile(filepath.Join(originDir, "README.md"), []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("write README.md: %v", err)
	}
	run(originDir, "add", "README.md")
	run(originDir, "commit", "-m", "initial commit")
	originURL := "file://" + originDir

	mirrorPath := filepath.Join(t.TempDir(), "mirror.git")
	checkoutPath := filepath.Join(t.TempDir(), "checkout")

	if err := EnsureMirror(ctx, inv, log, mirrorPath, originURL); err != nil {
		t.Fatalf("EnsureMirror() error = %v", err)
	}
	if err := EnsureCheckout(ctx, inv, log, mirrorPath, checkoutPath, "full", originURL, 0); err != nil {
		t.Fatalf("EnsureCheckout() error = %v", err)
	}

	// Advance origin past what the checkout has, then refresh the mirror
	// but leave the checkout untouched.
	if err := os.WriteFile(filepath.Join(originDir, "NEWS.md"), []byte("new\n"), 0o644); err != nil {
		t.Fatalf("write NEWS.md: %v", err)
	}
	run(originDir, "add", "NEWS.md")
	run(originDir, "commit", "-m", "second commit")

	if err := EnsureMirror(ctx, inv, log, mirrorPath, originURL); err != nil {
		t.Fatalf("second EnsureMirror() error = %v", err)
	}
	if _, err := inv.Run(ctx, checkoutPath, nil, "fetch", "origin"); err != nil {
		t.Fatalf("checkout fetch origin: %v", err)
	}

	clean, err := workingTreeClean(ctx, inv, checkoutPath)
	if err != nil {
		t.Fatalf("workingTreeClean() error = %v", err)
	}
	if !clean {
		t.Fatal("precondition: checkout working tree is not clean")
	}

	behind, err := commitsBehind(ctx, inv, checkoutPath)
	if err != nil {
		t.Fatalf("commitsBehind() error = %v", err)
	}
	if behind <= 0 {
		t.Fatalf("precondition: commitsBehind() = %d, want > 0", behind)
	}

	repair, err := NeedsRepair(ctx, inv, checkoutPath, mirrorPath, 0)
	if err != nil {
		t.Fatalf("NeedsRepair() error = %v", err)
	}
	if !repair {
		t.Error("NeedsRepair() = false for a checkout behind origin/HEAD with a clean tree, want true")
	}
}

func TestNeedsRepairBehindWithDirtyTree(t *testing.T) {
	inv := testInvoker()
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	originDir := t.TempDir()
	envs := []string{
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
	}
	run := func(dir string, args ...string) {
		if _, err := inv.Run(ctx, dir, envs, args...); err != nil {
			t.Fatalf("git %v (in %s): %v", args, dir, err)
		}
	}
	run(originDir, "init")
	if err := os.WriteFile(filepath.Join(originDir, "README.md"), []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("write README.md: %v", err)
	}
	run(originDir, "add", "README.md")
	run(originDir, "commit", "-m", "initial commit")
	originURL := "file://" + originDir

	mirrorPath := filepath.Join(t.TempDir(), "mirror.git")
	checkoutPath := filepath.Join(t.TempDir(), "checkout")

	if err := EnsureMirror(ctx, inv, log, mirrorPath, originURL); err != nil {
		t.Fatalf("EnsureMirror() error = %v", err)
	}
	if err := EnsureCheckout(ctx, inv, log, mirrorPath, checkoutPath, "full", originURL, 0); err != nil {
		t.Fatalf("EnsureCheckout() error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(originDir, "NEWS.md"), []byte("new\n"), 0o644); err != nil {
		t.Fatalf("write NEWS.md: %v", err)
	}
	run(originDir, "add", "NEWS.md")
	run(originDir, "commit", "-m", "second commit")

	if err := EnsureMirror(ctx, inv, log, mirrorPath, originURL); err != nil {
		t.Fatalf("second EnsureMirror() error = %v", err)
	}
	if _, err := inv.Run(ctx, checkoutPath, nil, "fetch", "origin"); err != nil {
		t.Fatalf("checkout fetch origin: %v", err)
	}

	if err := os.WriteFile(filepath.Join(checkoutPath, "uncommitted.txt"), []byte("dirty\n"), 0o644); err != nil {
		t.Fatalf("write uncommitted.txt: %v", err)
	}

	clean, err := workingTreeClean(ctx, inv, checkoutPath)
	if err != nil {
		t.Fatalf("workingTreeClean() error = %v", err)
	}
	if clean {
		t.Fatal("precondition: checkout working tree is clean, want dirty")
	}

	repair, err := NeedsRepair(ctx, inv, checkoutPath, mirrorPath, 0)
	if err != nil {
		t.Fatalf("NeedsRepair() error = %v", err)
	}
	if repair {
		t.Error("NeedsRepair() = true for a checkout behind origin/HEAD with a dirty tree, want false")
	}
}

func TestUpdateFromMirrorFastForwards(t *testing.T) {
	inv := testInvoker()
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	originDir := t.TempDir()
	envs := []string{
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
	}
	run := func(dir string, args ...string) {
		if _, err := inv.Run(ctx, dir, envs, args...); err != nil {
			t.Fatalf("git %v (in %s): %v", args, dir, err)
		}
	}
	run(originDir, "init")
	if err := os.WriteFile(filepath.Join(originDir, "README.md"), []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("write README.md: %v", err)
	}
	run(originDir, "add", "README.md")
	run(originDir, "commit", "-m", "initial commit")
	originURL := "file://" + originDir

	mirrorPath := filepath.Join(t.TempDir(), "mirror.git")
	checkoutPath := filepath.Join(t.TempDir(), "checkout")

	if err := EnsureMirror(ctx, inv, log, mirrorPath, originURL); err != nil {
		t.Fatalf("EnsureMirror() error = %v", err)
	}
	if err := EnsureCheckout(ctx, inv, log, mirrorPath, checkoutPath, "full", originURL, 0); err != nil {
		t.Fatalf("EnsureCheckout() error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(originDir, "NEWS.md"), []byte("new\n"), 0o644); err != nil {
		t.Fatalf("write NEWS.md: %v", err)
	}
	run(originDir, "add", "NEWS.md")
	run(originDir, "commit", "-m", "second commit")
	if err := EnsureMirror(ctx, inv, log, mirrorPath, originURL); err != nil {
		t.Fatalf("second EnsureMirror() error = %v", err)
	}

	if err := UpdateFromMirror(ctx, inv, log, checkoutPath, mirrorPath, "full", originURL, 0); err != nil {
		t.Fatalf("UpdateFromMirror() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(checkoutPath, "NEWS.md")); err != nil {
		t.Errorf("expected NEWS.md present after UpdateFromMirror, stat error = %v", err)
	}
}

func TestRepairAllOutdated(t *testing.T) {
	inv := testInvoker()
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	originDir := t.TempDir()
	envs := []string{
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
	}
	run := func(dir string, args ...string) {
		if _, err := inv.Run(ctx, dir, envs, args...); err != nil {
			t.Fatalf("git %v (in %s): %v", args, dir, err)
		}
	}
	run(originDir, "init")
	if err := os.WriteFile(filepath.Join(originDir, "README.md"), []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("write README.md: %v", err)
	}
	run(originDir, "add", "README.md")
	run(originDir, "commit", "-m", "initial commit")
	originURL := "file://" + originDir

	cacheRoot := t.TempDir()
	checkoutRoot := t.TempDir()
	id := giturl.RemoteIdentity{Host: "github", Owner: "acme", Name: "widgets"}
	triple := giturl.Paths(cacheRoot, checkoutRoot, id)

	if err := EnsureMirror(ctx, inv, log, triple.MirrorPath, originURL); err != nil {
		t.Fatalf("EnsureMirror() error = %v", err)
	}
	if err := EnsureCheckout(ctx, inv, log, triple.MirrorPath, triple.ROCheckoutPath, "full", originURL, 0); err != nil {
		t.Fatalf("EnsureCheckout() error = %v", err)
	}
	meta := CreateMetadata(id, originURL, "full")
	if err := SaveMetadata(triple.MirrorPath, meta); err != nil {
		t.Fatalf("SaveMetadata() error = %v", err)
	}

	// Advance the origin, then refresh the mirror and the checkout's
	// remote-tracking refs as a sync would, so the checkout trails
	// origin/HEAD and needs repair on the next sweep.
	if err := os.WriteFile(filepath.Join(originDir, "NEWS.md"), []byte("new\n"), 0o644); err != nil {
		t.Fatalf("write NEWS.md: %v", err)
	}
	run(originDir, "add", "NEWS.md")
	run(originDir, "commit", "-m", "second commit")
	if err := EnsureMirror(ctx, inv, log, triple.MirrorPath, originURL); err != nil {
		t.Fatalf("second EnsureMirror() error = %v", err)
	}
	run(triple.ROCheckoutPath, "fetch", "origin")

	cfg := DefaultConfig()
	cfg.CacheRoot = cacheRoot
	cfg.CheckoutRoot = checkoutRoot

	report, err := RepairAllOutdated(ctx, inv, log, cfg)
	if err != nil {
		t.Fatalf("RepairAllOutdated() error = %v", err)
	}
	if report.Failed != 0 {
		t.Errorf("RepairAllOutdated() report = %+v, want Failed = 0", report)
	}
	if report.Repaired != 1 {
		t.Errorf("RepairAllOutdated() report = %+v, want Repaired = 1 (the read-only checkout)", report)
	}
	if _, err := os.Stat(filepath.Join(triple.ROCheckoutPath, "NEWS.md")); err != nil {
		t.Errorf("expected read-only checkout repaired to include NEWS.md, stat error = %v", err)
	}
}

func TestDetectOrphans(t *testing.T) {
	cacheRoot := t.TempDir()
	checkoutRoot := t.TempDir()

	if err := os.MkdirAll(filepath.Join(cacheRoot, "github", "acme", "present"), 0o755); err != nil {
		t.Fatalf("mkdir present mirror: %v", err)
	}

	orphanCheckout := filepath.Join(checkoutRoot, "acme", "orphaned")
	if err := os.MkdirAll(filepath.Join(orphanCheckout, ".git"), 0o755); err != nil {
		t.Fatalf("mkdir orphan checkout: %v", err)
	}
	presentCheckout := filepath.Join(checkoutRoot, "acme", "present")
	if err := os.MkdirAll(filepath.Join(presentCheckout, ".git"), 0o755); err != nil {
		t.Fatalf("mkdir present checkout: %v", err)
	}

	var orphans []string
	err := DetectOrphans(checkoutRoot, cacheRoot, func(checkoutPath string, id giturl.RemoteIdentity) {
		orphans = append(orphans, checkoutPath)
	})
	if err != nil {
		t.Fatalf("DetectOrphans() error = %v", err)
	}
	if len(orphans) != 1 || orphans[0] != orphanCheckout {
		t.Errorf("DetectOrphans() visited %v, want exactly [%s]", orphans, orphanCheckout)
	}
}

func TestOrphanCandidate(t *testing.T) {
	cacheRoot := t.TempDir()
	if err := os.MkdirAll(filepath.Join(cacheRoot, "github", "acme"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	mirrorPath, id, ok := orphanCandidate(cacheRoot, "acme", "widgets")
	if !ok {
		t.Fatal("orphanCandidate() ok = false, want true")
	}
	want := filepath.Join(cacheRoot, "github", "acme", "widgets")
	if mirrorPath != want {
		t.Errorf("orphanCandidate() path = %q, want %q", mirrorPath, want)
	}
	if id.Host != "github" || id.Owner != "acme" || id.Name != "widgets" {
		t.Errorf("orphanCandidate() id = %+v, unexpected", id)
	}

	if _, _, ok := orphanCandidate(cacheRoot, "no-such-owner", "widgets"); ok {
		t.Error("orphanCandidate() ok = true for an owner with no host directory, want false")
	}
}
