package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gitcachehq/git-cache/pkg/giturl"
)

// metadataFileName is the sidecar file name at the root of a mirror,
// grounded on original_source/cache_metadata.h.
const metadataFileName = "cache_metadata.json"

// Metadata is the persisted record for one mirror. JSON field names match
// the on-disk sidecar format: lowercase keywords for strategy/type, Unix
// epoch seconds for times.
type Metadata struct {
	OriginalURL      string `json:"original_url"`
	ForkURL          string `json:"fork_url,omitempty"`
	Owner            string `json:"owner"`
	Name             string `json:"name"`
	ForkOrganization string `json:"fork_organization,omitempty"`
	Type             string `json:"type"` // host tag, e.g. "github", or "unknown"
	Strategy         string `json:"strategy"`
	CreatedTime      int64  `json:"created_time"`
	LastSyncTime     int64  `json:"last_sync_time"`
	LastAccessTime   int64  `json:"last_access_time"`
	CacheSizeBytes   int64  `json:"cache_size"`
	RefCount         int    `json:"ref_count"`
	IsForkNeeded     bool   `json:"is_fork_needed"`
	IsPrivateFork    bool   `json:"is_private_fork"`
	HasSubmodules    bool   `json:"has_submodules"`
	DefaultBranch    string `json:"default_branch,omitempty"`
}

// CreateMetadata builds a fresh record for a newly resolved identity. The
// caller still owns saving it once the mirror has actually materialized.
func CreateMetadata(id giturl.RemoteIdentity, originalURL, strategy string) Metadata {
	now := time.Now().Unix()
	return Metadata{
		OriginalURL: originalURL,
		Owner:       id.Owner,
		Name:        id.Name,
		Type:        id.Host,
		Strategy:    strategy,
		CreatedTime: now,
	}
}

// SaveMetadata writes the sidecar whole-file (read-then-replace via a temp
// file plus rename, never an in-place edit).
func SaveMetadata(mirrorPath string, meta Metadata) error {
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return newErr(KindFilesystem, "save-metadata", mirrorPath, fmt.Errorf("marshal: %w", err))
	}

	if err := os.MkdirAll(mirrorPath, 0o755); err != nil {
		return newErr(KindFilesystem, "save-metadata", mirrorPath, fmt.Errorf("mkdir: %w", err))
	}

	dst := filepath.Join(mirrorPath, metadataFileName)
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return newErr(KindFilesystem, "save-metadata", mirrorPath, fmt.Errorf("write temp: %w", err))
	}
	if err := os.Rename(tmp, dst); err != nil {
		return newErr(KindFilesystem, "save-metadata", mirrorPath, fmt.Errorf("rename: %w", err))
	}
	return nil
}

// LoadMetadata reads the sidecar. A missing file returns ErrNotExist; a
// malformed document returns ErrCorrupt, letting the caller decide whether
// to discard and rewrite. Absent optional fields resolve to their
// documented defaults (strategy -> full, type -> unknown, times -> 0).
func LoadMetadata(mirrorPath string) (Metadata, error) {
	path := filepath.Join(mirrorPath, metadataFileName)

	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Metadata{}, newErr(KindNotFound, "load-metadata", mirrorPath, err)
	}
	if err != nil {
		return Metadata{}, newErr(KindFilesystem, "load-metadata", mirrorPath, err)
	}

	var meta Metadata
	if err := json.Unmarshal(b, &meta); err != nil {
		return Metadata{}, newErr(KindCorruption, "load-metadata", mirrorPath, err)
	}

	if meta.Strategy == "" {
		meta.Strategy = "full"
	}
	if meta.Type == "" {
		meta.Type = "unknown"
	}
	return meta, nil
}

// MetadataExists reports whether a sidecar is present for mirrorPath.
func MetadataExists(mirrorPath string) bool {
	_, err := os.Stat(filepath.Join(mirrorPath, metadataFileName))
	return err == nil
}

// UpdateAccess bumps last_access_time. Callers MUST hold the mirror's path
// lock; concurrency safety piggybacks on that lock rather than its own.
func UpdateAccess(mirrorPath string) error {
	return mutateMetadata(mirrorPath, func(m *Metadata) {
		m.LastAccessTime = time.Now().Unix()
	})
}

// UpdateSync bumps last_sync_time.
func UpdateSync(mirrorPath string) error {
	return mutateMetadata(mirrorPath, func(m *Metadata) {
		m.LastSyncTime = time.Now().Unix()
	})
}

// IncRef increments ref_count and bumps last_access_time.
func IncRef(mirrorPath string) error {
	return mutateMetadata(mirrorPath, func(m *Metadata) {
		m.RefCount++
		m.LastAccessTime = time.Now().Unix()
	})
}

// DecRef decrements ref_count, saturating at zero.
func DecRef(mirrorPath string) error {
	return mutateMetadata(mirrorPath, func(m *Metadata) {
		if m.RefCount > 0 {
			m.RefCount--
		}
	})
}

func mutateMetadata(mirrorPath string, mutate func(*Metadata)) error {
	meta, err := LoadMetadata(mirrorPath)
	if err != nil {
		return err
	}
	mutate(&meta)
	return SaveMetadata(mirrorPath, meta)
}

// CalculateSize returns the recursive byte count of path. It is an
// approximation used for display and strategy heuristics, not an exact
// disk-usage accounting (sparse files, hard links, etc. are not special-cased).
func CalculateSize(path string) (int64, error) {
	var total int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, newErr(KindFilesystem, "calculate-size", path, err)
	}
	return total, nil
}

// ForEachMirror walks cacheRoot's three levels of nesting (<host>/<owner>/<name>)
// and invokes f for each directory containing a metadata sidecar.
func ForEachMirror(cacheRoot string, f func(mirrorPath string, meta Metadata) error) error {
	hosts, err := os.ReadDir(cacheRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return newErr(KindFilesystem, "for-each-mirror", cacheRoot, err)
	}

	for _, host := range hosts {
		if !host.IsDir() {
			continue
		}
		hostPath := filepath.Join(cacheRoot, host.Name())

		owners, err := os.ReadDir(hostPath)
		if err != nil {
			return newErr(KindFilesystem, "for-each-mirror", hostPath, err)
		}
		for _, owner := range owners {
			if !owner.IsDir() {
				continue
			}
			ownerPath := filepath.Join(hostPath, owner.Name())

			names, err := os.ReadDir(ownerPath)
			if err != nil {
				return newErr(KindFilesystem, "for-each-mirror", ownerPath, err)
			}
			for _, name := range names {
				if !name.IsDir() {
					continue
				}
				mirrorPath := filepath.Join(ownerPath, name.Name())
				if !MetadataExists(mirrorPath) {
					continue
				}
				meta, err := LoadMetadata(mirrorPath)
				if err != nil {
					return err
				}
				if err := f(mirrorPath, meta); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
