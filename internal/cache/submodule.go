package cache

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gitcachehq/git-cache/internal/gitexec"
)

// Submodule is a declared entry from a checkout's top-level .gitmodules,
// grounded on original_source/submodule.h.
type Submodule struct {
	Name   string
	Path   string
	URL    string
	Branch string
}

// ParseGitmodules reads the top-level .gitmodules of a checkout and parses
// its INI-like "[submodule \"name\"]" sections. Entries missing path or
// url are silently skipped as malformed.
func ParseGitmodules(checkoutPath string) ([]Submodule, error) {
	f, err := os.Open(filepath.Join(checkoutPath, ".gitmodules"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, newErr(KindFilesystem, "parse-gitmodules", checkoutPath, err)
	}
	defer f.Close()

	var subs []Submodule
	var cur *Submodule

	sectionHeader := func(line string) (name string, ok bool) {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, `[submodule "`) || !strings.HasSuffix(line, `"]`) {
			return "", false
		}
		return line[len(`[submodule "`) : len(line)-2], true
	}

	flush := func() {
		if cur != nil && cur.Path != "" && cur.URL != "" {
			subs = append(subs, *cur)
		}
		cur = nil
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if name, ok := sectionHeader(line); ok {
			flush()
			cur = &Submodule{Name: name}
			continue
		}
		if cur == nil {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "path":
			cur.Path = value
		case "url":
			cur.URL = value
		case "branch":
			cur.Branch = value
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, newErr(KindFilesystem, "parse-gitmodules", checkoutPath, err)
	}
	return subs, nil
}

// ProcessSubmodules ensures a sub-mirror for each declared submodule under
// "<parent_mirror>/submodules/<submodule-path>" and initializes it inside
// the parent checkout. Failures of individual submodules are reported but
// do not fail the parent operation. When recurse is set, the walker is
// re-entered on each freshly initialized submodule checkout.
func ProcessSubmodules(ctx context.Context, inv *gitexec.Invoker, log *slog.Logger, parentMirror, checkoutPath string, recurse bool) {
	subs, err := ParseGitmodules(checkoutPath)
	if err != nil {
		log.Warn("failed to parse .gitmodules", "checkout", checkoutPath, "err", err)
		return
	}

	for _, sub := range subs {
		subMirror := filepath.Join(parentMirror, "submodules", sub.Path)

		if err := EnsureMirror(ctx, inv, log, subMirror, sub.URL); err != nil {
			log.Error("failed to cache submodule", "submodule", sub.Name, "url", sub.URL, "err", err)
			continue
		}

		if _, err := inv.RunWithRetry(ctx, checkoutPath, nil,
			"submodule", "update", "--init", "--reference="+subMirror, sub.Path); err != nil {
			log.Error("failed to init submodule checkout", "submodule", sub.Name, "path", sub.Path, "err", err)
			continue
		}

		if recurse {
			subCheckout := filepath.Join(checkoutPath, sub.Path)
			ProcessSubmodules(ctx, inv, log, subMirror, subCheckout, recurse)
		}
	}
}
