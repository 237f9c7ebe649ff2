package cache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gitcachehq/git-cache/internal/gitexec"
)

// lowDiskThresholdBytes is the advisory free-space floor below which
// materialization logs a warning but continues.
const lowDiskThresholdBytes = 100 * 1024 * 1024

// EnsureMirror applies the five-phase contract (Inspect -> Prepare ->
// Materialize -> Validate -> Commit) to a bare mirror. It takes no clone
// strategy: the mirror is always a full "clone --bare --mirror", so no
// object filter and no shallow depth are ever applied to it.
func EnsureMirror(ctx context.Context, inv *gitexec.Invoker, log *slog.Logger, mirrorPath, remoteURL string) error {
	log = log.With("mirror", mirrorPath)

	class := Inspect(ctx, inv, mirrorPath, true)
	log.Log(ctx, -8, "inspected mirror", "classification", class.String())

	if class == GitRepoValid {
		// Fast path: in-place update.
		if _, err := inv.RunWithRetry(ctx, mirrorPath, nil, "fetch", "origin", "--prune", "--no-progress", "--porcelain", "--no-auto-gc"); err != nil {
			return newErr(KindGit, "ensure-mirror-fetch", mirrorPath, err)
		}
		if err := UpdateSync(mirrorPath); err != nil {
			log.Warn("failed to update metadata sync time", "err", err)
		}
		return nil
	}

	backupPath, err := prepare(mirrorPath, class)
	if err != nil {
		return newErr(KindFilesystem, "ensure-mirror-prepare", mirrorPath, err)
	}

	checkDiskSpace(log, filepath.Dir(mirrorPath))

	tmpPath := tempSibling(mirrorPath)
	if err := materializeMirror(ctx, inv, log, tmpPath, remoteURL); err != nil {
		cleanupFailedMaterialize(tmpPath, mirrorPath, backupPath)
		return newErr(KindGit, "ensure-mirror-materialize", mirrorPath, err)
	}

	if Inspect(ctx, inv, tmpPath, true) != GitRepoValid {
		cleanupFailedMaterialize(tmpPath, mirrorPath, backupPath)
		return newErr(KindValidation, "ensure-mirror-validate", mirrorPath, fmt.Errorf("materialized mirror failed validation"))
	}

	if err := os.Rename(tmpPath, mirrorPath); err != nil {
		cleanupFailedMaterialize(tmpPath, mirrorPath, backupPath)
		return newErr(KindFilesystem, "ensure-mirror-commit", mirrorPath, err)
	}

	if backupPath != "" {
		_ = os.RemoveAll(backupPath)
	}

	return nil
}

// EnsureCheckout implements ensure_checkout. strategy is one of
// full/shallow/treeless/blobless (never "auto" — callers resolve that via
// internal/cache/strategy before calling this).
func EnsureCheckout(ctx context.Context, inv *gitexec.Invoker, log *slog.Logger, mirrorPath, checkoutPath, strategy, remoteURL string, depth int) error {
	log = log.With("checkout", checkoutPath)

	class := Inspect(ctx, inv, checkoutPath, false)
	log.Log(ctx, -8, "inspected checkout", "classification", class.String())

	if class == GitRepoValid && ValidateAlternates(checkoutPath, mirrorPath) {
		return nil
	}
	if class == GitRepoValid {
		// Alternates point at the wrong mirror: treated as corrupted.
		class = GitRepoCorrupt
	}

	backupPath, err := prepare(checkoutPath, class)
	if err != nil {
		return newErr(KindFilesystem, "ensure-checkout-prepare", checkoutPath, err)
	}

	checkDiskSpace(log, filepath.Dir(checkoutPath))

	tmpPath := tempSibling(checkoutPath)
	if err := materializeCheckout(ctx, inv, log, tmpPath, mirrorPath, strategy, remoteURL, depth); err != nil {
		cleanupFailedMaterialize(tmpPath, checkoutPath, backupPath)
		return newErr(KindGit, "ensure-checkout-materialize", checkoutPath, err)
	}

	if Inspect(ctx, inv, tmpPath, false) != GitRepoValid || !ValidateAlternates(tmpPath, mirrorPath) {
		cleanupFailedMaterialize(tmpPath, checkoutPath, backupPath)
		return newErr(KindValidation, "ensure-checkout-validate", checkoutPath, fmt.Errorf("materialized checkout failed validation"))
	}

	if err := os.Rename(tmpPath, checkoutPath); err != nil {
		cleanupFailedMaterialize(tmpPath, checkoutPath, backupPath)
		return newErr(KindFilesystem, "ensure-checkout-commit", checkoutPath, err)
	}

	if backupPath != "" {
		_ = os.RemoveAll(backupPath)
	}

	return nil
}

// prepare is lifecycle phase 2: decide to back up (corrupt repo) or remove
// (non-git dir); Absent requires no action.
func prepare(path string, class Classification) (backupPath string, err error) {
	switch class {
	case Absent:
		return "", nil
	case GitRepoCorrupt:
		backupPath = path + ".backup." + strconv.FormatInt(time.Now().Unix(), 10)
		if err := os.Rename(path, backupPath); err != nil {
			return "", fmt.Errorf("back up corrupt path: %w", err)
		}
		return backupPath, nil
	case NonGitDir:
		if err := os.RemoveAll(path); err != nil {
			return "", fmt.Errorf("remove non-git dir: %w", err)
		}
		return "", nil
	default:
		return "", nil
	}
}

// tempSibling names the temporary materialization target for path, per the
// "<path>.tmp.<unixtime>" crash-consistency convention.
func tempSibling(path string) string {
	return path + ".tmp." + strconv.FormatInt(time.Now().Unix(), 10)
}

// cleanupFailedMaterialize removes the temp sibling and restores any
// backup to the canonical path, the rollback behavior on materialize,
// validate, or commit failure.
func cleanupFailedMaterialize(tmpPath, canonicalPath, backupPath string) {
	_ = os.RemoveAll(tmpPath)
	if backupPath != "" {
		_ = os.Rename(backupPath, canonicalPath)
	}
}

func materializeMirror(ctx context.Context, inv *gitexec.Invoker, log *slog.Logger, tmpPath, remoteURL string) error {
	if err := os.MkdirAll(filepath.Dir(tmpPath), 0o755); err != nil {
		return fmt.Errorf("mkdir parent: %w", err)
	}

	args := []string{"clone", "--bare", "--mirror", remoteURL, tmpPath}
	_, err := inv.RunWithRetry(ctx, "", nil, args...)
	return err
}

func materializeCheckout(ctx context.Context, inv *gitexec.Invoker, log *slog.Logger, tmpPath, mirrorPath, strategy, remoteURL string, depth int) error {
	if err := os.MkdirAll(filepath.Dir(tmpPath), 0o755); err != nil {
		return fmt.Errorf("mkdir parent: %w", err)
	}

	args := []string{"clone", "--reference", mirrorPath}
	args = append(args, strategyFlags(strategy, depth)...)
	args = append(args, remoteURL, tmpPath)

	_, err := inv.RunWithRetry(ctx, "", nil, args...)
	return err
}

// defaultShallowDepth is used when the shallow strategy is resolved without
// an explicit depth (CloneOptions.Depth/Config.Depth unset or <= 0).
const defaultShallowDepth = 1

// strategyFlags maps a concrete StrategyEnum value to clone flags. "auto"
// is never passed here — callers resolve it upstream (I7). depth is only
// consulted for the shallow strategy.
func strategyFlags(strategy string, depth int) []string {
	switch strategy {
	case "shallow":
		if depth <= 0 {
			depth = defaultShallowDepth
		}
		return []string{fmt.Sprintf("--depth=%d", depth)}
	case "treeless":
		return []string{"--filter=tree:0"}
	case "blobless":
		return []string{"--filter=blob:none"}
	default: // "full"
		return nil
	}
}

// checkDiskSpace is the advisory disk-space probe: if the destination
// partition reports less than 100 MB free, log a warning and continue.
func checkDiskSpace(log *slog.Logger, path string) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return
	}
	free := stat.Bavail * uint64(stat.Bsize)
	if free < lowDiskThresholdBytes {
		log.Warn("low disk space", "path", path, "free_bytes", free)
	}
}
