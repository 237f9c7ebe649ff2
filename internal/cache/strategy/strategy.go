// Package strategy implements the clone-filter auto-detector: given a
// RepoAnalysis and a DetectorConfig, recommend one of full/shallow/treeless/
// blobless with a confidence score, reasoning, and a fallback strategy.
package strategy

import "fmt"

// Strategy is a concrete, persistable clone-filter choice. "auto" lives
// only in caller input (CLI flags, cache.CloneOptions.Strategy), never here.
type Strategy string

const (
	Full     Strategy = "full"
	Shallow  Strategy = "shallow"
	Treeless Strategy = "treeless"
	Blobless Strategy = "blobless"
)

// Analysis is a transient snapshot of a remote's characteristics: estimated
// size, commit count, branch/tag counts, file count, large-file flag,
// monorepo flag, recency (ActivityLevel, 0-100), primary language.
type Analysis struct {
	SizeMB         int64
	Commits        int64
	Branches       int64
	Tags           int64
	Files          int64
	HasLargeFiles  bool
	IsMonorepo     bool
	ActivityLevel  int // 0-100, higher = more recently/frequently active
	PrimaryLanguage string
}

// DetectorConfig mirrors internal/cache.DetectorConfig's fields needed by
// the decision table; kept independent of internal/cache to avoid an
// import cycle (internal/cache imports this package, not vice versa).
type DetectorConfig struct {
	PreferSpeed     bool
	PreferComplete  bool
	SizeThresholdMB int64
	DepthThreshold  int64
	EnableFilters   bool
}

// Recommendation is the detector's output.
type Recommendation struct {
	Strategy   Strategy
	Confidence int
	Reasoning  string
	Fallback   Strategy
}

// applyThreshold is the confidence floor at or above which a Recommendation is
// applied; below it, the caller's configured default strategy is used.
const applyThreshold = 70

// Detect runs the decision table (first match wins) against a.
func Detect(a Analysis, cfg DetectorConfig) Recommendation {
	switch {
	case a.SizeMB < 10 && a.Commits < 100:
		return rec(Full, 95, "small repository with shallow history", Shallow)

	case a.IsMonorepo:
		return rec(Blobless, 90, "monorepo heuristic matched", Treeless)

	case (a.SizeMB > cfg.SizeThresholdMB || a.Commits > cfg.DepthThreshold) &&
		cfg.PreferSpeed && (a.HasLargeFiles || a.IsMonorepo):
		return rec(Blobless, 85, "large repo, speed preferred, large files or monorepo", Treeless)

	case a.SizeMB > 500 && cfg.PreferSpeed:
		return rec(Treeless, 80, "large repo, speed preferred", Blobless)

	case a.SizeMB > cfg.SizeThresholdMB && cfg.PreferSpeed:
		return rec(Shallow, 75, "over size threshold, speed preferred", Treeless)

	case a.SizeMB > cfg.SizeThresholdMB && cfg.PreferComplete:
		return rec(Full, 70, "over size threshold, completeness preferred", Treeless)

	case a.ActivityLevel > 50 && cfg.PreferSpeed:
		return rec(Shallow, 70, "high activity, speed preferred", Full)

	case a.ActivityLevel < 5:
		return rec(Full, 80, "low activity repository", Shallow)

	case a.SizeMB > cfg.SizeThresholdMB/2:
		return rec(Treeless, 60, "over half the size threshold", Shallow)

	default:
		return rec(Full, 65, "no stronger signal matched", Shallow)
	}
}

func rec(s Strategy, confidence int, reason string, fallback Strategy) Recommendation {
	return Recommendation{Strategy: s, Confidence: confidence, Reasoning: reason, Fallback: fallback}
}

// Resolve applies the confidence threshold: at or above applyThreshold the
// Recommendation's strategy wins; otherwise defaultStrategy (the caller's
// configured default) is used.
func Resolve(rec Recommendation, defaultStrategy Strategy) Strategy {
	if rec.Confidence >= applyThreshold {
		return rec.Strategy
	}
	return defaultStrategy
}

// bandwidth scale factors for the time-estimate helper: full clones move
// the whole history, shallow/treeless/blobless move progressively less.
var scaleFactor = map[Strategy]float64{
	Full:     1.0,
	Shallow:  0.2,
	Treeless: 0.4,
	Blobless: 0.125,
}

// EstimateTransferSeconds scales a's estimated byte count by the
// strategy's scale factor and divides by bandwidthMbps.
func EstimateTransferSeconds(a Analysis, s Strategy, bandwidthMbps float64) (float64, error) {
	if bandwidthMbps <= 0 {
		return 0, fmt.Errorf("strategy: bandwidth must be positive, got %v", bandwidthMbps)
	}
	factor, ok := scaleFactor[s]
	if !ok {
		return 0, fmt.Errorf("strategy: unknown strategy %q", s)
	}

	bytes := float64(a.SizeMB) * 1024 * 1024 * factor
	bits := bytes * 8
	bandwidthBps := bandwidthMbps * 1_000_000
	return bits / bandwidthBps, nil
}
