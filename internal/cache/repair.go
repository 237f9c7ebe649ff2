package cache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gitcachehq/git-cache/internal/gitexec"
	"github.com/gitcachehq/git-cache/internal/metrics"
	"github.com/gitcachehq/git-cache/pkg/giturl"
)

// NeedsRepair reports true if validation fails, the mirror is newer than
// the checkout, the checkout is behind the mirror's last sync, or the
// checkout trails origin/HEAD with a clean working tree.
func NeedsRepair(ctx context.Context, inv *gitexec.Invoker, checkoutPath, mirrorPath string, lastSync int64) (bool, error) {
	if Inspect(ctx, inv, checkoutPath, false) != GitRepoValid || !ValidateAlternates(checkoutPath, mirrorPath) {
		return true, nil
	}

	mirrorHeadTime, err := refModTime(filepath.Join(mirrorPath, "HEAD"))
	if err == nil {
		if checkoutHeadTime, err := refModTime(filepath.Join(checkoutPath, ".git", "HEAD")); err == nil {
			if mirrorHeadTime.After(checkoutHeadTime) {
				return true, nil
			}
			if lastSync > checkoutHeadTime.Unix() {
				return true, nil
			}
		}
	}

	behind, err := commitsBehind(ctx, inv, checkoutPath)
	if err != nil {
		return false, err
	}
	if behind <= 0 {
		return false, nil
	}

	clean, err := workingTreeClean(ctx, inv, checkoutPath)
	if err != nil {
		return false, err
	}
	return clean, nil
}

// UpdateFromMirror implements update_from_mirror: an in-place
// fetch+fast-forward reset+untracked-clean attempt. Dirty working trees
// must never reach this function (the caller is expected to have checked
// cleanliness via NeedsRepair); on any failure it falls through to a full
// checkout recreation.
func UpdateFromMirror(ctx context.Context, inv *gitexec.Invoker, log *slog.Logger, checkoutPath, mirrorPath, strategy, remoteURL string, depth int) error {
	if _, err := inv.RunWithRetry(ctx, checkoutPath, nil, "fetch", "origin", "--prune"); err != nil {
		log.Warn("in-place fetch failed, falling back to recreate", "checkout", checkoutPath, "err", err)
		return RepairCheckout(ctx, inv, log, checkoutPath, mirrorPath, remoteURL, strategy, depth)
	}
	if _, err := inv.Run(ctx, checkoutPath, nil, "reset", "--hard", "origin/HEAD"); err != nil {
		log.Warn("fast-forward reset failed, falling back to recreate", "checkout", checkoutPath, "err", err)
		return RepairCheckout(ctx, inv, log, checkoutPath, mirrorPath, remoteURL, strategy, depth)
	}
	if _, err := inv.Run(ctx, checkoutPath, nil, "clean", "-fd"); err != nil {
		log.Warn("untracked-clean failed, falling back to recreate", "checkout", checkoutPath, "err", err)
		return RepairCheckout(ctx, inv, log, checkoutPath, mirrorPath, remoteURL, strategy, depth)
	}
	return nil
}

// RepairReport is the {repaired, failed} count repair_all_outdated reports.
type RepairReport struct {
	Repaired int
	Failed   int
}

// RepairAllOutdated iterates every persisted mirror via ForEachMirror,
// reconstructs the path triple for each, and applies NeedsRepair /
// UpdateFromMirror to both its checkouts.
func RepairAllOutdated(ctx context.Context, inv *gitexec.Invoker, log *slog.Logger, cfg Config) (RepairReport, error) {
	var report RepairReport

	err := ForEachMirror(cfg.CacheRoot, func(mirrorPath string, meta Metadata) error {
		id := giturl.RemoteIdentity{Host: meta.Type, Owner: meta.Owner, Name: meta.Name}
		triple := giturl.Paths(cfg.CacheRoot, cfg.CheckoutRoot, id)

		for _, checkoutPath := range []string{triple.ROCheckoutPath, triple.ModCheckoutPath} {
			if !exists(checkoutPath) {
				continue
			}
			checkoutLock := lockForPath(checkoutPath)
			checkoutLock.Lock()
			defer checkoutLock.Unlock()

			repair, err := NeedsRepair(ctx, inv, checkoutPath, mirrorPath, meta.LastSyncTime)
			if err != nil {
				log.Error("needs_repair check failed", "checkout", checkoutPath, "err", err)
				report.Failed++
				continue
			}
			if !repair {
				continue
			}

			clean, err := workingTreeClean(ctx, inv, checkoutPath)
			if err != nil {
				log.Error("working tree check failed", "checkout", checkoutPath, "err", err)
				report.Failed++
				continue
			}
			if !clean {
				log.Warn("checkout needs repair but has uncommitted changes, leaving untouched", "checkout", checkoutPath)
				metrics.RecordRepair("skipped-dirty")
				continue
			}

			strategy := meta.Strategy
			if checkoutPath == triple.ModCheckoutPath {
				strategy = "blobless"
			}
			if err := UpdateFromMirror(ctx, inv, log, checkoutPath, mirrorPath, strategy, meta.OriginalURL, cfg.Depth); err != nil {
				log.Error("repair failed", "checkout", checkoutPath, "err", err)
				report.Failed++
				metrics.RecordRepair("failed")
				continue
			}
			report.Repaired++
			metrics.RecordRepair("repaired")
		}
		return nil
	})

	return report, err
}

// DetectOrphans walks checkoutRoot's <owner>/<name> entries and invokes
// visitor for each whose corresponding mirror_path is absent.
func DetectOrphans(checkoutRoot, cacheRoot string, visitor func(checkoutPath string, id giturl.RemoteIdentity)) error {
	owners, err := os.ReadDir(checkoutRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return newErr(KindFilesystem, "detect-orphans", checkoutRoot, err)
	}

	for _, owner := range owners {
		if !owner.IsDir() || owner.Name() == giturl.ModCheckoutDir {
			continue
		}
		ownerPath := filepath.Join(checkoutRoot, owner.Name())

		names, err := os.ReadDir(ownerPath)
		if err != nil {
			return newErr(KindFilesystem, "detect-orphans", ownerPath, err)
		}
		for _, name := range names {
			checkoutPath := filepath.Join(ownerPath, name.Name())
			if !exists(filepath.Join(checkoutPath, ".git")) {
				continue
			}

			mirrorPath, id, ok := orphanCandidate(cacheRoot, owner.Name(), name.Name())
			if !ok {
				continue
			}
			if !exists(mirrorPath) {
				visitor(checkoutPath, id)
			}
		}
	}
	return nil
}

// orphanCandidate guesses the mirror location for a checkout by matching
// it against every host tag the cache knows, since the checkout path alone
// does not carry the host.
func orphanCandidate(cacheRoot, owner, name string) (mirrorPath string, id giturl.RemoteIdentity, ok bool) {
	entries, err := os.ReadDir(cacheRoot)
	if err != nil {
		return "", giturl.RemoteIdentity{}, false
	}
	for _, host := range entries {
		if !host.IsDir() {
			continue
		}
		candidate := filepath.Join(cacheRoot, host.Name(), owner, name)
		if _, err := os.Stat(filepath.Dir(candidate)); err == nil {
			return candidate, giturl.RemoteIdentity{Host: host.Name(), Owner: owner, Name: name}, true
		}
	}
	return "", giturl.RemoteIdentity{}, false
}

func refModTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func commitsBehind(ctx context.Context, inv *gitexec.Invoker, checkoutPath string) (int, error) {
	res, err := inv.Run(ctx, checkoutPath, nil, "rev-list", "--count", "HEAD..origin/HEAD")
	if err != nil {
		return 0, fmt.Errorf("rev-list --count: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(res.Stdout))
	if err != nil {
		return 0, fmt.Errorf("parse rev-list count %q: %w", res.Stdout, err)
	}
	return n, nil
}

func workingTreeClean(ctx context.Context, inv *gitexec.Invoker, checkoutPath string) (bool, error) {
	res, err := inv.Run(ctx, checkoutPath, nil, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("status --porcelain: %w", err)
	}
	return strings.TrimSpace(res.Stdout) == "", nil
}
