package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"cogman/internal/gate"
	"cogman/internal/logging"
)

// PolicyApplier receives a freshly resolved policy. *gate.Gate satisfies it
// through SetPolicy.
type PolicyApplier interface {
	SetPolicy(policy gate.Policy) error
}

// PolicyWatcher hot-reloads the active gate profile when the profiles file
// changes on disk. It watches the containing directory rather than the file
// itself so editor save-by-rename still delivers events.
type PolicyWatcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	applier     PolicyApplier
	path        string
	profile     string
	pending     time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	reloads int
	errors  int
}

// NewPolicyWatcher builds a watcher for the profiles file at path, reloading
// the named profile into applier on change.
func NewPolicyWatcher(path, profile string, applier PolicyApplier) (*PolicyWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &PolicyWatcher{
		watcher:     fw,
		applier:     applier,
		path:        path,
		profile:     profile,
		debounceDur: 500 * time.Millisecond, // settle rapid editor saves
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; idempotent.
func (pw *PolicyWatcher) Start(ctx context.Context) error {
	pw.mu.Lock()
	if pw.running {
		pw.mu.Unlock()
		return nil
	}
	pw.running = true
	pw.mu.Unlock()

	log := logging.Get(logging.CategoryBoot)
	dir := filepath.Dir(pw.path)
	if err := pw.watcher.Add(dir); err != nil {
		log.Warnw("policy watch failed, hot reload disabled", "dir", dir, "error", err)
	} else {
		log.Infow("watching gate profiles", "path", pw.path, "profile", pw.profile)
	}

	go pw.run(ctx)
	return nil
}

// Stop halts the watcher and waits for its goroutine.
func (pw *PolicyWatcher) Stop() {
	pw.mu.Lock()
	if !pw.running {
		pw.mu.Unlock()
		return
	}
	pw.running = false
	pw.mu.Unlock()

	close(pw.stopCh)
	<-pw.doneCh
	_ = pw.watcher.Close()
}

// Stats reports reload and error counts.
func (pw *PolicyWatcher) Stats() (reloads, errors int) {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	return pw.reloads, pw.errors
}

func (pw *PolicyWatcher) run(ctx context.Context) {
	defer close(pw.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pw.stopCh:
			return

		case event, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(pw.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pw.mu.Lock()
			pw.pending = time.Now()
			pw.mu.Unlock()

		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryBoot).Warnw("policy watcher error", "error", err)
			pw.mu.Lock()
			pw.errors++
			pw.mu.Unlock()

		case <-ticker.C:
			pw.maybeReload()
		}
	}
}

// maybeReload applies the pending change once the debounce window settles.
// A reload that fails validation keeps the previous policy in force.
func (pw *PolicyWatcher) maybeReload() {
	pw.mu.Lock()
	if pw.pending.IsZero() || time.Since(pw.pending) < pw.debounceDur {
		pw.mu.Unlock()
		return
	}
	pw.pending = time.Time{}
	pw.mu.Unlock()

	log := logging.Get(logging.CategoryBoot)

	pf, err := LoadProfiles(pw.path)
	if err != nil {
		log.Errorw("profile reload failed", "path", pw.path, "error", err)
		pw.recordError()
		return
	}
	policy, err := pf.Policy(pw.profile)
	if err != nil {
		log.Errorw("profile reload rejected", "profile", pw.profile, "error", err)
		pw.recordError()
		return
	}
	if err := pw.applier.SetPolicy(policy); err != nil {
		log.Errorw("policy apply failed", "profile", pw.profile, "error", err)
		pw.recordError()
		return
	}

	pw.mu.Lock()
	pw.reloads++
	pw.mu.Unlock()
	log.Infow("gate policy reloaded", "profile", pw.profile, "version", policy.Version)
}

func (pw *PolicyWatcher) recordError() {
	pw.mu.Lock()
	pw.errors++
	pw.mu.Unlock()
}
