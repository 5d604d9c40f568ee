package cleanup

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Scheduler periodically removes scratch files that interrupted atomic
// writes left in the record directories
type Scheduler struct {
	dirs     []string
	pattern  string
	interval time.Duration
	maxAge   time.Duration
	log      logrus.FieldLogger
	now      func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewScheduler creates a new cleanup scheduler. Only top-level files of dirs
// whose base name matches pattern are candidates.
func NewScheduler(dirs []string, pattern string, intervalMinutes, maxAgeHours int, log logrus.FieldLogger) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{
		dirs:     dirs,
		pattern:  pattern,
		interval: time.Duration(intervalMinutes) * time.Minute,
		maxAge:   time.Duration(maxAgeHours) * time.Hour,
		log:      log.WithField("component", "cleanup"),
		now:      time.Now,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs one sweep immediately and then one per interval
func (s *Scheduler) Start() {
	s.log.Info("Running initial temp file cleanup...")
	s.CleanOnce()

	if s.interval <= 0 {
		close(s.done)
		return
	}

	ticker := time.NewTicker(s.interval)
	go func() {
		defer close(s.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.CleanOnce()
			case <-s.stopChan:
				return
			}
		}
	}()

	s.log.WithFields(logrus.Fields{"interval": s.interval, "max_age": s.maxAge}).Info("Cleanup scheduler started")
}

// Stop stops the cleanup scheduler and waits for a running sweep. It must
// follow Start.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	<-s.done
	s.log.Info("Cleanup scheduler stopped")
}

// CleanOnce removes matching files older than the max age and returns how
// many were deleted
func (s *Scheduler) CleanOnce() int {
	now := s.now()

	var deletedCount int
	var deletedSize int64

	for _, dir := range s.dirs {
		matches, err := filepath.Glob(filepath.Join(dir, s.pattern))
		if err != nil {
			s.log.WithError(err).WithField("path", dir).Error("Error during cleanup")
			continue
		}

		for _, path := range matches {
			info, err := os.Lstat(path)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}

			age := now.Sub(info.ModTime())
			if age <= s.maxAge {
				continue
			}

			if err := os.Remove(path); err != nil {
				s.log.WithError(err).WithField("path", path).Warn("Failed to delete old temp file")
				continue
			}
			deletedCount++
			deletedSize += info.Size()
			s.log.WithFields(logrus.Fields{
				"path": path,
				"age":  age.Round(time.Minute),
				"size": info.Size(),
			}).Info("Deleted old temp file")
		}
	}

	if deletedCount > 0 {
		s.log.Infof("Cleanup complete: %d files deleted, %.2fKB freed", deletedCount, float64(deletedSize)/1024)
	}
	return deletedCount
}

// EnsureDirs creates each directory if it doesn't exist
func EnsureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "create directory %s", dir)
		}
	}
	return nil
}
