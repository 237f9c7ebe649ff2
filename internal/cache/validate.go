package cache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gitcachehq/git-cache/internal/gitexec"
	"github.com/gitcachehq/git-cache/internal/utils"
)

// Classification is the result of the structural inspect phase.
type Classification int

const (
	Absent Classification = iota
	GitRepoValid
	GitRepoCorrupt
	NonGitDir
)

func (c Classification) String() string {
	switch c {
	case Absent:
		return "absent"
	case GitRepoValid:
		return "valid"
	case GitRepoCorrupt:
		return "corrupt"
	case NonGitDir:
		return "non-git-dir"
	default:
		return "unknown"
	}
}

// Inspect classifies the destination directory, the first phase of the
// classify/prepare/materialize/validate/commit lifecycle. isMirror selects
// whether HEAD/refs/objects (mirror) or .git (checkout) sentinels are
// checked. A non-empty directory with none of those sentinels is NonGitDir.
func Inspect(ctx context.Context, inv *gitexec.Invoker, path string, isMirror bool) Classification {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return Absent
	}
	if err != nil || !info.IsDir() {
		return NonGitDir
	}

	empty, err := dirIsEmpty(path)
	if err != nil {
		return NonGitDir
	}
	if empty {
		return Absent
	}

	if isMirror {
		if !exists(filepath.Join(path, "HEAD")) && !exists(filepath.Join(path, "refs")) && !exists(filepath.Join(path, "objects")) {
			return NonGitDir
		}
		if validateMirrorStructural(path) && validateCommandLevel(ctx, inv, path) && validateReferenceLevel(ctx, inv, path) {
			return GitRepoValid
		}
		return GitRepoCorrupt
	}

	if !validateCheckoutStructural(path) {
		return NonGitDir
	}
	if validateCommandLevel(ctx, inv, path) && validateHEADResolution(ctx, inv, path) {
		return GitRepoValid
	}
	return GitRepoCorrupt
}

// validateMirrorStructural is validation layer 1 for a mirror: the three
// sentinels named in the Mirror invariant must exist.
func validateMirrorStructural(path string) bool {
	return exists(filepath.Join(path, "HEAD")) &&
		isDir(filepath.Join(path, "refs")) &&
		isDir(filepath.Join(path, "objects"))
}

// validateCheckoutStructural is validation layer 1 for a checkout: it must
// have a .git directory (working tree) or file (worktree-style checkout).
func validateCheckoutStructural(path string) bool {
	return exists(filepath.Join(path, ".git"))
}

// validateCommandLevel is layer 2: the external git tool must report the
// directory as a repository via "rev-parse --git-dir".
func validateCommandLevel(ctx context.Context, inv *gitexec.Invoker, path string) bool {
	res, err := inv.Run(ctx, path, nil, "rev-parse", "--git-dir")
	if err != nil {
		return false
	}
	return res.Stdout != ""
}

// validateReferenceLevel is layer 3 (mirror only): show-ref succeeds with
// exit status 0 or 1 — a fresh repo with no refs is not corrupt.
func validateReferenceLevel(ctx context.Context, inv *gitexec.Invoker, path string) bool {
	res, err := inv.Run(ctx, path, nil, "show-ref")
	if err == nil {
		return true
	}
	return res.ExitCode == 1
}

// validateHEADResolution is layer 4 (checkout only): rev-parse HEAD must
// succeed; an empty repository (unborn HEAD) is tolerated.
func validateHEADResolution(ctx context.Context, inv *gitexec.Invoker, path string) bool {
	_, err := inv.Run(ctx, path, nil, "rev-parse", "HEAD")
	if err == nil {
		return true
	}
	// "unknown revision" on an unborn branch is the only tolerated failure.
	return strings.Contains(err.Error(), "unknown revision")
}

// ValidateAlternates is validation layer 5: the checkout's alternates file
// must exist and its single significant line must resolve to
// "<mirrorPath>/objects", whether written verbatim or as a path relative to
// the checkout's own objects dir.
func ValidateAlternates(checkoutPath, mirrorPath string) bool {
	objectsDir := filepath.Join(checkoutPath, ".git", "objects")
	b, err := os.ReadFile(filepath.Join(objectsDir, "info", "alternates"))
	if err != nil {
		return false
	}
	want := filepath.Join(mirrorPath, "objects")
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line == want || utils.AbsLink(objectsDir, line) == want
	}
	return false
}

// WriteAlternates writes the checkout's alternates file so that it
// references mirrorPath/objects, the mechanism by which a checkout holds a
// weak reference to its mirror.
func WriteAlternates(checkoutPath, mirrorPath string) error {
	altPath := filepath.Join(checkoutPath, ".git", "objects", "info", "alternates")
	if err := os.MkdirAll(filepath.Dir(altPath), 0o755); err != nil {
		return newErr(KindFilesystem, "write-alternates", altPath, err)
	}
	line := filepath.Join(mirrorPath, "objects") + "\n"
	if err := os.WriteFile(altPath, []byte(line), 0o644); err != nil {
		return newErr(KindFilesystem, "write-alternates", altPath, err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func dirIsEmpty(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return false, fmt.Errorf("read dir: %w", err)
	}
	return len(entries) == 0, nil
}

// RepairMirror applies the mirror repair policy: back up, full re-clone
// into the canonical path, re-validate.
func RepairMirror(ctx context.Context, inv *gitexec.Invoker, log *slog.Logger, mirrorPath, originalURL string) error {
	log.Info("repairing corrupted mirror", "path", mirrorPath)
	return EnsureMirror(ctx, inv, log, mirrorPath, originalURL)
}

// RepairCheckout applies the checkout repair policy: remove, recreate via
// the five-phase lifecycle with the recorded strategy. A checkout whose
// alternates point at the wrong mirror is treated identically (corrupted).
func RepairCheckout(ctx context.Context, inv *gitexec.Invoker, log *slog.Logger, checkoutPath, mirrorPath, remoteURL, strategy string, depth int) error {
	log.Info("repairing corrupted checkout", "path", checkoutPath)
	return EnsureCheckout(ctx, inv, log, mirrorPath, checkoutPath, strategy, remoteURL, depth)
}
