// Package mirrorlist is the Mirror manager collaborator: it tracks extra
// read-replica remotes for a mirror (e.g. a GitHub fork alongside the
// upstream) both in the mirror's git config and in a plain-text sidecar.
package mirrorlist

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gitcachehq/git-cache/internal/gitexec"
)

// fileName is the plain-text sidecar under the mirror path, format
// "name\turl\ttype\tpriority\tadd_time".
const fileName = "mirrors.txt"

// Entry is one row of mirrors.txt.
type Entry struct {
	Name     string
	URL      string
	Type     string
	Priority int
	AddTime  int64
}

// List reads every entry from mirrorPath's mirrors.txt sidecar. A missing
// file is treated as an empty list.
func List(mirrorPath string) ([]Entry, error) {
	f, err := os.Open(filepath.Join(mirrorPath, fileName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mirrorlist: open %s: %w", fileName, err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 5 {
			continue
		}
		priority, _ := strconv.Atoi(fields[3])
		addTime, _ := strconv.ParseInt(fields[4], 10, 64)
		entries = append(entries, Entry{
			Name:     fields[0],
			URL:      fields[1],
			Type:     fields[2],
			Priority: priority,
			AddTime:  addTime,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("mirrorlist: scan %s: %w", fileName, err)
	}
	return entries, nil
}

func save(mirrorPath string, entries []Entry) error {
	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "%s\t%s\t%s\t%d\t%d\n", e.Name, e.URL, e.Type, e.Priority, e.AddTime)
	}

	dst := filepath.Join(mirrorPath, fileName)
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("mirrorlist: write %s: %w", fileName, err)
	}
	return os.Rename(tmp, dst)
}

// Add registers a new remote both in the mirror's git config and the
// mirrors.txt sidecar.
func Add(ctx context.Context, inv *gitexec.Invoker, mirrorPath string, e Entry) error {
	if _, err := inv.Run(ctx, mirrorPath, nil, "remote", "add", e.Name, e.URL); err != nil {
		return fmt.Errorf("mirrorlist: git remote add %s: %w", e.Name, err)
	}

	entries, err := List(mirrorPath)
	if err != nil {
		return err
	}
	if e.AddTime == 0 {
		e.AddTime = time.Now().Unix()
	}
	entries = append(entries, e)
	return save(mirrorPath, entries)
}

// Remove drops a remote from both the mirror's git config and the sidecar.
func Remove(ctx context.Context, inv *gitexec.Invoker, mirrorPath, name string) error {
	if _, err := inv.Run(ctx, mirrorPath, nil, "remote", "remove", name); err != nil {
		return fmt.Errorf("mirrorlist: git remote remove %s: %w", name, err)
	}

	entries, err := List(mirrorPath)
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.Name != name {
			kept = append(kept, e)
		}
	}
	return save(mirrorPath, kept)
}

// Sync fetches every sidecar-registered remote with prune. Cache.Sync calls
// it after the primary origin fetch has succeeded; nothing falls back to
// these remotes when the origin is unreachable.
func Sync(ctx context.Context, inv *gitexec.Invoker, mirrorPath string) error {
	entries, err := List(mirrorPath)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := inv.RunWithRetry(ctx, mirrorPath, nil, "fetch", e.Name, "--prune"); err != nil {
			return fmt.Errorf("mirrorlist: fetch %s: %w", e.Name, err)
		}
	}
	return nil
}
