package cache

import (
	"sync"

	"github.com/gitcachehq/git-cache/pkg/lock"
)

// pathLocks is the process-local registry backing per-path in-process
// serialization. Two goroutines in the same process racing pkg/lock.Acquire
// for the same mirror or checkout path would otherwise both fall into its
// 100ms poll loop, since the file lock's stale-holder check treats same-PID
// as live; acquiring the in-process lock first lets the second goroutine
// block on a real wakeup instead.
var (
	pathLocksMu sync.Mutex
	pathLocks   = map[string]*lock.RWMutex{}
)

// lockForPath returns the shared in-process mutex guarding path, creating
// one on first use. The registry grows for the process lifetime, bounded
// by the number of distinct mirror/checkout paths this process touches.
func lockForPath(path string) *lock.RWMutex {
	pathLocksMu.Lock()
	defer pathLocksMu.Unlock()
	l, ok := pathLocks[path]
	if !ok {
		l = &lock.RWMutex{}
		pathLocks[path] = l
	}
	return l
}
