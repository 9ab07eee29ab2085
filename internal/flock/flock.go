// Package flock implements per-resource mutual exclusion between the main
// agent process and the sidekick observer using on-disk marker files.
//
// The marker file is the lock: its presence means the resource is held, its
// absence means the resource is free. The main agent holds the privileged
// role and may force-acquire a lock held by the observer; the observer must
// wait out or time out. Both processes only share the filesystem, so the
// marker is the entire coordination protocol.
package flock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies which actor is contending for a lock.
type Role string

const (
	// RoleMain is the privileged main agent. It may override observer-held locks.
	RoleMain Role = "main"
	// RoleSelfAgent is the subordinate observer. It always yields to the main agent.
	RoleSelfAgent Role = "selfagent"
)

// MarkerSuffix is appended to the protected resource path to form the marker file path.
const MarkerSuffix = ".sidekick_lock"

// pollInterval is the sleep between acquisition attempts.
const pollInterval = 100 * time.Millisecond

// ErrLockTimeout is returned when a lock could not be acquired within the timeout.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// MarkerIOError reports a persistent filesystem failure manipulating a lock marker.
type MarkerIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *MarkerIOError) Error() string {
	return fmt.Sprintf("lock marker %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *MarkerIOError) Unwrap() error { return e.Err }

// Record is the parsed content of a lock marker: <holder-id>|<unix-timestamp>|<role>.
type Record struct {
	HolderID   string
	AcquiredAt time.Time
	Role       Role
}

func (r Record) encode() string {
	return fmt.Sprintf("%s|%d|%s", r.HolderID, r.AcquiredAt.Unix(), r.Role)
}

func parseRecord(data []byte) (Record, error) {
	parts := strings.Split(strings.TrimSpace(string(data)), "|")
	if len(parts) != 3 {
		return Record{}, fmt.Errorf("malformed lock marker: %q", string(data))
	}

	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("malformed lock marker timestamp: %q", parts[1])
	}

	role := Role(parts[2])
	if role != RoleMain && role != RoleSelfAgent {
		return Record{}, fmt.Errorf("unknown lock marker role: %q", parts[2])
	}

	return Record{HolderID: parts[0], AcquiredAt: time.Unix(ts, 0), Role: role}, nil
}

// ReadMarker returns the current lock record for a resource, or os.ErrNotExist
// if the resource is free. The marker may vanish or change at any moment; a
// privileged override rewrites it in place.
func ReadMarker(resource string) (Record, error) {
	data, err := os.ReadFile(resource + MarkerSuffix)
	if err != nil {
		return Record{}, err
	}
	return parseRecord(data)
}

// Lock guards a single resource path. A Lock is single-use per acquisition
// and is not safe for concurrent use by multiple goroutines.
type Lock struct {
	resource string
	marker   string
	holderID string
	role     Role
	timeout  time.Duration
	acquired bool
}

// New creates a lock for the given resource path. Nothing touches the
// filesystem until Acquire.
func New(resource string, role Role, timeout time.Duration) *Lock {
	return &Lock{
		resource: resource,
		marker:   resource + MarkerSuffix,
		holderID: fmt.Sprintf("%d-%s", os.Getpid(), uuid.New().String()[:8]),
		role:     role,
		timeout:  timeout,
	}
}

// Acquire polls until the lock is held, the timeout expires, or ctx is
// cancelled. A privileged caller force-overrides a subordinate-held (or
// unreadable) marker instead of waiting. Marker write failures are treated
// as "not yet acquired" and retried.
func (l *Lock) Acquire(ctx context.Context) error {
	start := time.Now()

	for time.Since(start) < l.timeout {
		if l.tryAcquire() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}

	return fmt.Errorf("%w: %s (role %s, timeout %s)", ErrLockTimeout, l.resource, l.role, l.timeout)
}

func (l *Lock) tryAcquire() bool {
	if _, err := os.Stat(l.marker); errors.Is(err, os.ErrNotExist) {
		if l.writeMarker() == nil {
			l.acquired = true
			return true
		}
	}

	if l.role != RoleMain {
		return false
	}

	// Privileged override: a subordinate-held marker is taken over in place.
	// A missing, unreadable, or corrupt marker is treated as subordinate-held.
	data, err := os.ReadFile(l.marker)
	if err == nil {
		rec, perr := parseRecord(data)
		if perr == nil && rec.Role == RoleMain {
			return false
		}
	}

	if l.writeMarker() == nil {
		l.acquired = true
		return true
	}
	// The marker path may not be writable as a plain file (a stray
	// directory, say); clear it and take the lock fresh.
	if os.RemoveAll(l.marker) == nil && l.writeMarker() == nil {
		l.acquired = true
		return true
	}
	return false
}

func (l *Lock) writeMarker() error {
	rec := Record{HolderID: l.holderID, AcquiredAt: time.Now(), Role: l.role}
	return os.WriteFile(l.marker, []byte(rec.encode()), 0600)
}

// Release removes the marker. It is idempotent: releasing an unheld or
// already-released lock is a no-op. If the marker has been overridden by
// another holder in the meantime, it is left untouched. Only a persistent
// filesystem error surfaces, as *MarkerIOError.
func (l *Lock) Release() error {
	if !l.acquired {
		return nil
	}
	l.acquired = false

	data, err := os.ReadFile(l.marker)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return &MarkerIOError{Op: "read", Path: l.marker, Err: err}
	}

	if rec, perr := parseRecord(data); perr == nil && (rec.HolderID != l.holderID || rec.Role != l.role) {
		// The lock was taken over while we held it. The marker now belongs
		// to the new holder.
		return nil
	}

	if err := os.Remove(l.marker); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &MarkerIOError{Op: "remove", Path: l.marker, Err: err}
	}
	return nil
}

// Held reports whether this lock currently believes it holds the resource.
// A privileged process may have overridden the marker since acquisition.
func (l *Lock) Held() bool { return l.acquired }

// Do runs fn while holding the lock for resource, releasing it on every exit
// path including panics. A release failure is surfaced only when fn itself
// succeeded.
func Do(ctx context.Context, resource string, role Role, timeout time.Duration, fn func() error) (err error) {
	l := New(resource, role, timeout)
	if aerr := l.Acquire(ctx); aerr != nil {
		return aerr
	}
	defer func() {
		rerr := l.Release()
		if err == nil {
			err = rerr
		}
	}()

	return fn()
}
