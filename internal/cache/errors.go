package cache

import (
	"errors"
	"fmt"
)

// Kind classifies a CacheError for exit-code mapping and propagation
// policy, following the abstract error-kind taxonomy of the error
// handling design.
type Kind int

const (
	KindUnknown Kind = iota
	KindArgs
	KindConfig
	KindNetwork
	KindFilesystem
	KindGit
	KindHostAPI
	KindValidation
	KindCorruption
	KindBusy
	KindNotFound
	KindForbidden
	KindOutOfSpace
)

func (k Kind) String() string {
	switch k {
	case KindArgs:
		return "args"
	case KindConfig:
		return "config"
	case KindNetwork:
		return "network"
	case KindFilesystem:
		return "filesystem"
	case KindGit:
		return "git"
	case KindHostAPI:
		return "host-api"
	case KindValidation:
		return "validation"
	case KindCorruption:
		return "corruption"
	case KindBusy:
		return "busy"
	case KindNotFound:
		return "not-found"
	case KindForbidden:
		return "forbidden"
	case KindOutOfSpace:
		return "out-of-space"
	default:
		return "unknown"
	}
}

// CacheError wraps an underlying error with the operation and path it
// occurred against, so callers can both log.Error("err", err) and
// errors.As for the Kind.
type CacheError struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *CacheError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("cache: %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("cache: %s: %v", e.Op, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// Is allows errors.Is(err, KindBusy) style checks by comparing Kind when
// the target is itself a *CacheError with no wrapped Err.
func (e *CacheError) Is(target error) bool {
	var t *CacheError
	if errors.As(target, &t) && t.Err == nil {
		return e.Kind == t.Kind
	}
	return false
}

func newErr(kind Kind, op, path string, err error) *CacheError {
	return &CacheError{Kind: kind, Op: op, Path: path, Err: err}
}

// ErrNotExist matches a CacheError of KindNotFound for errors.Is checks.
var ErrNotExist = &CacheError{Kind: KindNotFound}

// ErrBusy matches a CacheError of KindBusy.
var ErrBusy = &CacheError{Kind: KindBusy}

// ErrCorrupt matches a CacheError of KindCorruption.
var ErrCorrupt = &CacheError{Kind: KindCorruption}
