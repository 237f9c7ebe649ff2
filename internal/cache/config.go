package cache

import "time"

// Config is the domain configuration shared by every cache operation. It is
// populated from the layered config loader (internal/config) and carried by
// value into the lifecycle engine, the strategy detector, and the repair
// sweep.
type Config struct {
	// CacheRoot is the absolute path under which bare mirrors live.
	CacheRoot string `yaml:"cache_root"`

	// CheckoutRoot is the absolute path under which read-only and
	// modifiable checkouts live.
	CheckoutRoot string `yaml:"checkout_root"`

	// DefaultStrategy is used when the strategy detector's confidence
	// falls below the apply threshold.
	DefaultStrategy string `yaml:"default_strategy"`

	// AutoSync enables the background sync/repair sweep.
	AutoSync bool `yaml:"auto_sync"`

	// SyncInterval is the wait between sync sweeps when AutoSync is set.
	SyncInterval time.Duration `yaml:"sync_interval"`

	// PreferredMirror names an alternate remote. It is loaded from config
	// and environment and reported by Status; no clone, sync or repair
	// path fetches from it.
	PreferredMirror string `yaml:"preferred_mirror"`

	// Depth overrides the shallow strategy's "--depth" clone flag for
	// every clone and repair that resolves to "shallow". A
	// CloneOptions.Depth of 0 defers to this; this itself defaulting to
	// 0 defers to the lifecycle engine's defaultShallowDepth (1).
	Depth int `yaml:"depth"`

	Detector DetectorConfig `yaml:"detector"`

	// GithubToken authenticates pkg/githubapi; normally supplied via
	// $GITHUB_TOKEN rather than a config file.
	GithubToken string `yaml:"-"`

	Fork ForkConfig `yaml:"fork"`
}

// DetectorConfig configures the strategy auto-detector (internal/cache/strategy).
type DetectorConfig struct {
	PreferSpeed     bool  `yaml:"prefer_speed"`
	PreferComplete  bool  `yaml:"prefer_complete"`
	SizeThresholdMB int64 `yaml:"size_threshold_mb"`
	DepthThreshold  int64 `yaml:"depth_threshold"`
	EnableFilters   bool  `yaml:"enable_filters"`
}

// ForkConfig carries the fork-preference policy consulted by pkg/githubapi,
// grounded on original_source/fork_config.h.
type ForkConfig struct {
	DefaultOrganization  string `yaml:"default_organization"`
	AutoFork             bool   `yaml:"auto_fork"`
	ForkPrivateAsPrivate bool   `yaml:"fork_private_as_private"`
	ForkPublicAsPrivate  bool   `yaml:"fork_public_as_private"`
	SyncWithUpstream     bool   `yaml:"sync_with_upstream"`
	SyncIntervalHours    int    `yaml:"sync_interval_hours"`
	DeleteBranchOnMerge  bool   `yaml:"delete_branch_on_merge"`
	AllowForcePush       bool   `yaml:"allow_force_push"`
	BranchPrefix         string `yaml:"branch_prefix"`
}

const (
	defaultDetectorSizeThresholdMB = 100
	defaultDetectorDepthThreshold  = 1000
)

// DefaultConfig returns the configuration the CLI falls back to when
// nothing in the layered loader overrides it.
func DefaultConfig() Config {
	return Config{
		DefaultStrategy: "full",
		SyncInterval:    30 * time.Minute,
		Detector: DetectorConfig{
			PreferSpeed:     true,
			SizeThresholdMB: defaultDetectorSizeThresholdMB,
			DepthThreshold:  defaultDetectorDepthThreshold,
			EnableFilters:   true,
		},
	}
}
