package cache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gitcachehq/git-cache/internal/cache/strategy"
	"github.com/gitcachehq/git-cache/internal/gitexec"
	"github.com/gitcachehq/git-cache/internal/metrics"
	"github.com/gitcachehq/git-cache/internal/mirrorlist"
	"github.com/gitcachehq/git-cache/pkg/githubapi"
	"github.com/gitcachehq/git-cache/pkg/giturl"
	"github.com/gitcachehq/git-cache/pkg/lock"
)

// Cache is the top-level orchestrator tying the resolver (pkg/giturl), the
// per-path locks (pkg/lock), the five-phase lifecycle engine, the strategy
// auto-detector, and the optional Host REST collaborator (pkg/githubapi)
// into the clone/sync/verify/repair/list/clean operations.
type Cache struct {
	Config Config
	Invoke *gitexec.Invoker
	Log    *slog.Logger

	// Host is nil unless fork collaboration is configured.
	Host *githubapi.Client
}

// New builds a Cache from cfg, wiring a token-authenticated GitHub REST
// client when cfg.GithubToken is set.
func New(cfg Config, log *slog.Logger) *Cache {
	c := &Cache{Config: cfg, Invoke: gitexec.New(log), Log: log}
	if cfg.GithubToken != "" {
		c.Host = githubapi.New(cfg.GithubToken)
	}
	return c
}

// CloneOptions customizes a single Clone call beyond the Cache's Config.
type CloneOptions struct {
	// Strategy overrides auto-detection; "" or "auto" defers to the
	// detector, falling back to Config.DefaultStrategy below the
	// confidence threshold.
	Strategy string

	// Analysis feeds the strategy auto-detector. Callers that already
	// know repository size/activity (e.g. from a prior GetRepo call)
	// can supply it; the zero value degrades to the detector's
	// lowest-information branches.
	Analysis strategy.Analysis

	// Recurse submodules after both checkouts materialize.
	RecurseSubmodules bool

	// Depth overrides Config.Depth for a shallow clone's "--depth" value.
	// Only consulted when the resolved strategy is "shallow"; 0 defers to
	// Config.Depth, which itself defaults to 1.
	Depth int
}

// CloneResult reports the on-disk layout and resolved strategy of a
// completed Clone.
type CloneResult struct {
	Identity giturl.RemoteIdentity
	Paths    giturl.PathTriple
	Strategy string
}

// Clone runs the full flow: resolver -> lock(bare) -> lifecycle(bare) ->
// metadata update -> optional fork collaborator -> lock(read-only checkout)
// -> lifecycle(checkout, strategy) -> lock(modifiable checkout) ->
// lifecycle(checkout, blobless, prefer-fork-url) -> submodule walker.
func (c *Cache) Clone(ctx context.Context, remoteURL string, opts CloneOptions) (result CloneResult, err error) {
	start := time.Now()
	id, err := giturl.ParseURL(remoteURL)
	if err != nil {
		return CloneResult{}, newErr(KindArgs, "clone-parse-url", remoteURL, err)
	}
	defer func() {
		metrics.RecordClone(id.String(), err == nil)
		metrics.ObserveCloneLatency(id.String(), start)
	}()

	triple := giturl.Paths(c.Config.CacheRoot, c.Config.CheckoutRoot, id)

	resolvedStrategy := c.resolveStrategy(opts)
	depth := opts.Depth
	if depth <= 0 {
		depth = c.Config.Depth
	}

	mirrorLock := lockForPath(triple.MirrorPath)
	mirrorLock.Lock()
	defer mirrorLock.Unlock()

	lockStart := time.Now()
	mirrorGuard, err := lock.Acquire(triple.MirrorPath)
	metrics.ObserveLockWait(triple.MirrorPath, lockStart)
	if err != nil {
		return CloneResult{}, newErr(KindBusy, "clone-lock-mirror", triple.MirrorPath, err)
	}
	defer mirrorGuard.Release()

	if err := EnsureMirror(ctx, c.Invoke, c.Log, triple.MirrorPath, remoteURL); err != nil {
		return CloneResult{}, err
	}

	meta, err := c.upsertMirrorMetadata(ctx, id, remoteURL, resolvedStrategy, triple.MirrorPath)
	if err != nil {
		return CloneResult{}, err
	}

	roLock := lockForPath(triple.ROCheckoutPath)
	roLock.Lock()
	defer roLock.Unlock()

	roGuard, err := lock.Acquire(triple.ROCheckoutPath)
	if err != nil {
		return CloneResult{}, newErr(KindBusy, "clone-lock-ro-checkout", triple.ROCheckoutPath, err)
	}
	defer roGuard.Release()

	if err := EnsureCheckout(ctx, c.Invoke, c.Log, triple.MirrorPath, triple.ROCheckoutPath, resolvedStrategy, remoteURL, depth); err != nil {
		return CloneResult{}, err
	}

	modLock := lockForPath(triple.ModCheckoutPath)
	modLock.Lock()
	defer modLock.Unlock()

	modGuard, err := lock.Acquire(triple.ModCheckoutPath)
	if err != nil {
		return CloneResult{}, newErr(KindBusy, "clone-lock-mod-checkout", triple.ModCheckoutPath, err)
	}
	defer modGuard.Release()

	modSourceURL := remoteURL
	if meta.ForkURL != "" {
		modSourceURL = meta.ForkURL
	}
	if err := EnsureCheckout(ctx, c.Invoke, c.Log, triple.MirrorPath, triple.ModCheckoutPath, "blobless", modSourceURL, 0); err != nil {
		return CloneResult{}, err
	}

	ProcessSubmodules(ctx, c.Invoke, c.Log, triple.MirrorPath, triple.ROCheckoutPath, opts.RecurseSubmodules)
	ProcessSubmodules(ctx, c.Invoke, c.Log, triple.MirrorPath, triple.ModCheckoutPath, opts.RecurseSubmodules)

	if err := IncRef(triple.MirrorPath); err != nil {
		c.Log.Warn("failed to bump ref count", "mirror", triple.MirrorPath, "err", err)
	}

	return CloneResult{Identity: id, Paths: triple, Strategy: resolvedStrategy}, nil
}

func (c *Cache) resolveStrategy(opts CloneOptions) string {
	if opts.Strategy != "" && opts.Strategy != "auto" {
		return opts.Strategy
	}

	defaultStrategy := strategy.Strategy(c.Config.DefaultStrategy)
	if defaultStrategy == "" {
		defaultStrategy = strategy.Full
	}

	detectorCfg := strategy.DetectorConfig{
		PreferSpeed:     c.Config.Detector.PreferSpeed,
		PreferComplete:  c.Config.Detector.PreferComplete,
		SizeThresholdMB: c.Config.Detector.SizeThresholdMB,
		DepthThreshold:  c.Config.Detector.DepthThreshold,
		EnableFilters:   c.Config.Detector.EnableFilters,
	}
	rec := strategy.Detect(opts.Analysis, detectorCfg)
	return string(strategy.Resolve(rec, defaultStrategy))
}

// upsertMirrorMetadata loads existing metadata for a freshly ensured mirror,
// or creates it on first clone, optionally forking via the Host collaborator
// when the fork policy calls for it.
func (c *Cache) upsertMirrorMetadata(ctx context.Context, id giturl.RemoteIdentity, remoteURL, resolvedStrategy, mirrorPath string) (Metadata, error) {
	meta, err := LoadMetadata(mirrorPath)
	if err != nil {
		var cerr *CacheError
		if !(asKind(err, &cerr) && cerr.Kind == KindNotFound) {
			return Metadata{}, err
		}
		meta = CreateMetadata(id, remoteURL, resolvedStrategy)
	}

	if c.Host != nil && c.Config.Fork.AutoFork && meta.ForkURL == "" {
		result, err := c.Host.Fork(ctx, id.Owner, id.Name, c.Config.Fork.DefaultOrganization)
		if err != nil {
			c.Log.Warn("fork collaborator failed, continuing without a fork", "identity", id.String(), "err", err)
		} else {
			meta.ForkURL = result.URL
			meta.IsForkNeeded = true
			meta.IsPrivateFork = result.Private
			meta.ForkOrganization = c.Config.Fork.DefaultOrganization

			if c.shouldFlipForkVisibility(result.Private) {
				private := !result.Private
				forkID, perr := giturl.ParseURL(result.URL)
				if perr != nil {
					c.Log.Warn("failed to apply fork visibility policy", "identity", id.String(), "err", perr)
				} else if err := c.Host.SetPrivate(ctx, forkID.Owner, forkID.Name, private); err != nil {
					c.Log.Warn("failed to apply fork visibility policy", "identity", id.String(), "err", err)
				}
			}
		}
	}

	if err := SaveMetadata(mirrorPath, meta); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

func (c *Cache) shouldFlipForkVisibility(currentlyPrivate bool) bool {
	if currentlyPrivate {
		return !c.Config.Fork.ForkPrivateAsPrivate
	}
	return c.Config.Fork.ForkPublicAsPrivate
}

func asKind(err error, target **CacheError) bool {
	cerr, ok := err.(*CacheError)
	if !ok {
		return false
	}
	*target = cerr
	return true
}

// Sync refreshes every persisted mirror's objects (EnsureMirror's fast path)
// and any registered alternate remotes (internal/mirrorlist).
func (c *Cache) Sync(ctx context.Context) (RepairReport, error) {
	var report RepairReport

	err := ForEachMirror(c.Config.CacheRoot, func(mirrorPath string, meta Metadata) error {
		mirrorLock := lockForPath(mirrorPath)
		mirrorLock.Lock()
		defer mirrorLock.Unlock()

		if err := EnsureMirror(ctx, c.Invoke, c.Log, mirrorPath, meta.OriginalURL); err != nil {
			c.Log.Error("sync failed", "mirror", mirrorPath, "err", err)
			report.Failed++
			metrics.RecordRepair("failed")
			return nil
		}
		if err := mirrorlist.Sync(ctx, c.Invoke, mirrorPath); err != nil {
			c.Log.Warn("alternate remote sync failed", "mirror", mirrorPath, "err", err)
		}
		report.Repaired++
		metrics.RecordRepair("synced")
		return nil
	})
	return report, err
}

// VerifyReport is the outcome of a full cache sweep: how many mirrors and
// checkouts passed validation versus failed.
type VerifyReport struct {
	Valid   int
	Invalid []string
}

// Verify walks every persisted mirror and its checkouts, classifying each
// with Inspect/ValidateAlternates.
func (c *Cache) Verify(ctx context.Context) (VerifyReport, error) {
	var report VerifyReport

	err := ForEachMirror(c.Config.CacheRoot, func(mirrorPath string, meta Metadata) error {
		mirrorLock := lockForPath(mirrorPath)
		mirrorLock.RLock()
		defer mirrorLock.RUnlock()

		if Inspect(ctx, c.Invoke, mirrorPath, true) != GitRepoValid {
			report.Invalid = append(report.Invalid, mirrorPath)
		} else {
			report.Valid++
		}

		id := giturl.RemoteIdentity{Host: meta.Type, Owner: meta.Owner, Name: meta.Name}
		triple := giturl.Paths(c.Config.CacheRoot, c.Config.CheckoutRoot, id)
		for _, checkoutPath := range []string{triple.ROCheckoutPath, triple.ModCheckoutPath} {
			if !exists(checkoutPath) {
				continue
			}
			checkoutLock := lockForPath(checkoutPath)
			checkoutLock.RLock()
			valid := Inspect(ctx, c.Invoke, checkoutPath, false) == GitRepoValid && ValidateAlternates(checkoutPath, mirrorPath)
			checkoutLock.RUnlock()
			if !valid {
				report.Invalid = append(report.Invalid, checkoutPath)
				continue
			}
			report.Valid++
		}
		return nil
	})
	return report, err
}

// Repair applies RepairAllOutdated across the whole cache.
func (c *Cache) Repair(ctx context.Context) (RepairReport, error) {
	return RepairAllOutdated(ctx, c.Invoke, c.Log, c.Config)
}

// ListEntry is one row of List's output.
type ListEntry struct {
	Identity giturl.RemoteIdentity
	Metadata Metadata
	Path     string
}

// List enumerates every persisted mirror.
func (c *Cache) List(ctx context.Context) ([]ListEntry, error) {
	var entries []ListEntry
	err := ForEachMirror(c.Config.CacheRoot, func(mirrorPath string, meta Metadata) error {
		entries = append(entries, ListEntry{
			Identity: giturl.RemoteIdentity{Host: meta.Type, Owner: meta.Owner, Name: meta.Name},
			Metadata: meta,
			Path:     mirrorPath,
		})
		return nil
	})
	return entries, err
}

// Status is the resolved configuration and aggregate cache state reported
// by the CLI's "status" command, distinct from List's per-mirror rows.
type Status struct {
	CacheRoot       string
	CheckoutRoot    string
	DefaultStrategy string
	Depth           int
	AutoSync        bool
	SyncInterval    time.Duration
	PreferredMirror string
	ForkEnabled     bool
	MirrorCount     int
	TotalSizeBytes  int64
}

// Status reports the resolved configuration plus a count and total size of
// every persisted mirror.
func (c *Cache) Status(ctx context.Context) (Status, error) {
	st := Status{
		CacheRoot:       c.Config.CacheRoot,
		CheckoutRoot:    c.Config.CheckoutRoot,
		DefaultStrategy: c.Config.DefaultStrategy,
		Depth:           c.Config.Depth,
		AutoSync:        c.Config.AutoSync,
		SyncInterval:    c.Config.SyncInterval,
		PreferredMirror: c.Config.PreferredMirror,
		ForkEnabled:     c.Host != nil,
	}

	err := ForEachMirror(c.Config.CacheRoot, func(mirrorPath string, meta Metadata) error {
		st.MirrorCount++
		st.TotalSizeBytes += meta.CacheSizeBytes
		return nil
	})
	return st, err
}

// Clean removes checkouts whose backing mirror no longer exists
// (DetectOrphans) and reports what it removed.
func (c *Cache) Clean(ctx context.Context) ([]string, error) {
	var removed []string
	err := DetectOrphans(c.Config.CheckoutRoot, c.Config.CacheRoot, func(checkoutPath string, id giturl.RemoteIdentity) {
		if err := os.RemoveAll(checkoutPath); err != nil {
			c.Log.Error("failed to remove orphaned checkout", "path", checkoutPath, "err", err)
			return
		}
		removed = append(removed, checkoutPath)
	})
	return removed, err
}

// AddMirror registers an alternate remote for an already-cached repository.
func (c *Cache) AddMirror(ctx context.Context, remoteURL string, entry mirrorlist.Entry) error {
	id, err := giturl.ParseURL(remoteURL)
	if err != nil {
		return newErr(KindArgs, "add-mirror-parse-url", remoteURL, err)
	}
	triple := giturl.Paths(c.Config.CacheRoot, c.Config.CheckoutRoot, id)
	if err := mirrorlist.Add(ctx, c.Invoke, triple.MirrorPath, entry); err != nil {
		return fmt.Errorf("cache: add mirror %s to %s: %w", entry.Name, id.String(), err)
	}
	return nil
}
