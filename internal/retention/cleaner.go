// Package retention periodically prunes recorded containers from the output
// directory according to an age and count budget.
package retention

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JOBOYA/ghostline/internal/logging"
)

// Policy defines how many recorded runs are retained on disk.
type Policy struct {
	MaxRuns int
	MaxAge  time.Duration
}

// Stats summarises the disk footprint of retained runs.
type Stats struct {
	Runs      int
	Bytes     int64
	LastSweep time.Time
}

// Cleaner periodically prunes ghostline containers according to a retention policy.
type Cleaner struct {
	mu     sync.RWMutex
	dir    string
	policy Policy
	log    *logging.Logger
	now    func() time.Time
	stats  Stats
}

// NewCleaner constructs a cleaner for the provided output directory.
func NewCleaner(dir string, policy Policy, logger *logging.Logger) *Cleaner {
	if logger == nil {
		logger = logging.L()
	}
	return &Cleaner{dir: dir, policy: policy, log: logger, now: time.Now}
}

// Run executes retention sweeps until the context is cancelled.
func (c *Cleaner) Run(ctx context.Context, interval time.Duration) {
	if c == nil || ctx == nil {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	c.sweep()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// RunOnce performs a single retention sweep, such as after a container rotation.
func (c *Cleaner) RunOnce() {
	if c == nil {
		return
	}
	c.sweep()
}

// Stats returns the last recorded storage statistics.
func (c *Cleaner) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// run groups a container file with its companion sidecar so they are
// pruned together.
type run struct {
	stem    string
	paths   []string
	size    int64
	modTime time.Time
}

func (c *Cleaner) sweep() {
	if c == nil || strings.TrimSpace(c.dir) == "" {
		return
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		c.log.Warn("retention scan failed", logging.Error(err), logging.String("directory", c.dir))
		return
	}
	runs := c.collect(entries)
	now := c.now()
	kept := 0
	stats := Stats{LastSweep: now}
	for _, r := range runs {
		shouldRemove, reason := c.shouldRemove(r, now, kept)
		if shouldRemove {
			if err := c.remove(r); err != nil {
				c.log.Warn("retention removal failed", logging.Error(err), logging.String("run", r.stem))
				stats.Runs++
				stats.Bytes += r.size
				kept++
			} else {
				c.log.Info("retention removed run", logging.String("run", r.stem), logging.String("reason", reason))
			}
			continue
		}
		kept++
		stats.Runs++
		stats.Bytes += r.size
	}
	c.mu.Lock()
	c.stats = stats
	c.mu.Unlock()
}

func (c *Cleaner) collect(entries []os.DirEntry) []*run {
	runs := make(map[string]*run, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		stem := name
		switch {
		case strings.HasSuffix(name, ".ghostline"):
			stem = strings.TrimSuffix(name, ".ghostline")
		case strings.HasSuffix(name, ".events.jsonl.sz"):
			stem = strings.TrimSuffix(name, ".events.jsonl.sz")
		default:
			continue
		}
		path := filepath.Join(c.dir, name)
		info, err := entry.Info()
		if err != nil {
			c.log.Warn("retention stat failed", logging.Error(err), logging.String("path", path))
			continue
		}
		r := runs[stem]
		if r == nil {
			r = &run{stem: stem, modTime: info.ModTime()}
			runs[stem] = r
		}
		if info.ModTime().After(r.modTime) {
			r.modTime = info.ModTime()
		}
		r.paths = append(r.paths, path)
		r.size += info.Size()
	}
	list := make([]*run, 0, len(runs))
	for _, r := range runs {
		list = append(list, r)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].modTime.After(list[j].modTime) })
	return list
}

func (c *Cleaner) shouldRemove(r *run, now time.Time, kept int) (bool, string) {
	reasons := make([]string, 0, 2)
	if c.policy.MaxAge > 0 && now.Sub(r.modTime) > c.policy.MaxAge {
		reasons = append(reasons, fmt.Sprintf("age>%s", c.policy.MaxAge))
	}
	if c.policy.MaxRuns > 0 && kept >= c.policy.MaxRuns {
		reasons = append(reasons, fmt.Sprintf(">=%d runs", c.policy.MaxRuns))
	}
	return len(reasons) > 0, strings.Join(reasons, ", ")
}

func (c *Cleaner) remove(r *run) error {
	var errs error
	for _, path := range r.paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}
