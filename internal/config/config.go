// Package config is the layered configuration loader: a YAML file located
// via adrg/xdg's config search path, overridden by environment variables,
// overridden again by explicit flags, validated with a reflection-based
// strict-key pattern before being unmarshalled into internal/cache.Config.
// CacheRoot/CheckoutRoot fall back to adrg/xdg's cache directory when none
// of those layers set them.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/gitcachehq/git-cache/internal/cache"
)

// appName roots both the XDG config lookup and every GIT_CACHE_* env var.
const appName = "git-cache"

var (
	allowedRootKeys     = getAllowedKeys(cache.Config{})
	allowedDetectorKeys = getAllowedKeys(cache.DetectorConfig{})
	allowedForkKeys     = getAllowedKeys(cache.ForkConfig{})
)

// Load resolves the config file path (explicit flagPath, else the first
// "git-cache/config.yaml" found on the XDG config search path), applies
// environment overrides, validates against the strict key allowlist, and
// returns a populated cache.Config.
func Load(flagPath string) (cache.Config, error) {
	cfg := cache.DefaultConfig()

	path := flagPath
	if path == "" {
		found, err := xdg.SearchConfigFile(appName + "/config.yaml")
		if err == nil {
			path = found
		}
	}

	v := viper.New()
	v.SetEnvPrefix("GIT_CACHE")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cache.Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := validateYAMLKeys(v.AllSettings()); err != nil {
			return cache.Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
		if err := v.Unmarshal(&cfg); err != nil {
			return cache.Config{}, fmt.Errorf("config: unmarshal %s: %w", path, err)
		}
	}

	applyEnvOverrides(v, &cfg)
	applyDefaultRoots(&cfg)
	return cfg, nil
}

// applyEnvOverrides applies the documented GIT_CACHE_* environment
// variables over whatever the file (or defaults) set, so operational
// overrides always win over the checked-in config file. The bare
// GIT_CACHE variable is consulted last and wins over GIT_CACHE_ROOT,
// since viper's SetEnvPrefix("GIT_CACHE") can only bind prefixed keys and
// can never observe the prefix-less variable itself. For the same reason
// the unprefixed GITHUB_TOKEN is read directly, and only when
// GIT_CACHE_GITHUB_TOKEN is unset.
func applyEnvOverrides(v *viper.Viper, cfg *cache.Config) {
	if s := v.GetString("ROOT"); s != "" {
		cfg.CacheRoot = s
	}
	if s := v.GetString("CHECKOUT_ROOT"); s != "" {
		cfg.CheckoutRoot = s
	}
	if s := v.GetString("GITHUB_TOKEN"); s != "" {
		cfg.GithubToken = s
	} else if s := os.Getenv("GITHUB_TOKEN"); s != "" {
		cfg.GithubToken = s
	}
	if v.IsSet("AUTO_SYNC") {
		cfg.AutoSync = v.GetBool("AUTO_SYNC")
	}
	if d := v.GetDuration("SYNC_INTERVAL"); d > 0 {
		cfg.SyncInterval = d
	}
	if s := v.GetString("PREFERRED_MIRROR"); s != "" {
		cfg.PreferredMirror = s
	}
	if n := v.GetInt("DEPTH"); n > 0 {
		cfg.Depth = n
	}
	if v.IsSet("PREFER_SPEED") {
		cfg.Detector.PreferSpeed = v.GetBool("PREFER_SPEED")
	}
	if v.IsSet("PREFER_COMPLETE") {
		cfg.Detector.PreferComplete = v.GetBool("PREFER_COMPLETE")
	}
	if n := v.GetInt64("SIZE_THRESHOLD_MB"); n > 0 {
		cfg.Detector.SizeThresholdMB = n
	}
	if n := v.GetInt64("DEPTH_THRESHOLD"); n > 0 {
		cfg.Detector.DepthThreshold = n
	}

	if s := os.Getenv("GIT_CACHE"); s != "" {
		cfg.CacheRoot = s
	}
}

// applyDefaultRoots fills CacheRoot/CheckoutRoot from xdg.CacheHome when
// neither the config file, GIT_CACHE_ROOT/GIT_CACHE, nor a struct literal
// already supplied them, so a from-scratch install never resolves mirror
// or checkout paths to the current working directory.
func applyDefaultRoots(cfg *cache.Config) {
	if cfg.CacheRoot == "" {
		cfg.CacheRoot = filepath.Join(xdg.CacheHome, appName, "mirrors")
	}
	if cfg.CheckoutRoot == "" {
		cfg.CheckoutRoot = filepath.Join(xdg.CacheHome, appName, "checkouts")
	}
}

func validateYAMLKeys(raw map[string]interface{}) error {
	if key := findUnexpectedKey(raw, allowedRootKeys); key != "" {
		return fmt.Errorf("unexpected key: .%v", key)
	}
	if detectorMap, ok := raw["detector"].(map[string]interface{}); ok {
		if key := findUnexpectedKey(detectorMap, allowedDetectorKeys); key != "" {
			return fmt.Errorf("unexpected key: .detector.%v", key)
		}
	}
	if forkMap, ok := raw["fork"].(map[string]interface{}); ok {
		if key := findUnexpectedKey(forkMap, allowedForkKeys); key != "" {
			return fmt.Errorf("unexpected key: .fork.%v", key)
		}
	}
	return nil
}

// getAllowedKeys retrieves a struct's yaml tags.
func getAllowedKeys(config interface{}) []string {
	var allowedKeys []string
	val := reflect.ValueOf(config)
	typ := reflect.TypeOf(config)

	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		yamlTag := field.Tag.Get("yaml")
		if yamlTag != "" && yamlTag != "-" {
			allowedKeys = append(allowedKeys, yamlTag)
		}
	}
	return allowedKeys
}

func findUnexpectedKey(raw map[string]interface{}, allowedKeys []string) string {
	for key := range raw {
		if !slices.Contains(allowedKeys, key) {
			return key
		}
	}
	return ""
}

// ParseYAMLFile is a thin helper exposed for callers that want to check a
// file's keys without fully loading it into a cache.Config.
func ParseYAMLFile(data []byte) (map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := validateYAMLKeys(raw); err != nil {
		return nil, err
	}
	return raw, nil
}
