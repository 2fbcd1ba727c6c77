package cache

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

func (s *fileStore) SweepExpired(ctx context.Context, maxAge time.Duration) (SweepReport, error) {
	started := s.now()
	var report SweepReport

	walkErr := filepath.WalkDir(s.basePath, func(filePath string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if filePath == s.basePath {
				return err
			}
			report.Failed++
			s.logSweepFailure("walk", filePath, err)
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		report.Scanned++
		info, err := d.Info()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				report.Failed++
				s.logSweepFailure("stat", filePath, err)
			}
			return nil
		}
		if !s.expired(info.ModTime(), maxAge) {
			return nil
		}

		removed, err := s.removeIfExpired(filePath, maxAge)
		switch {
		case err != nil:
			report.Failed++
			s.logSweepFailure("remove", filePath, err)
		case removed:
			report.Removed++
			s.logger.WithFields(logrus.Fields{
				"action": "sweep",
				"path":   filePath,
				"age":    s.now().Sub(info.ModTime()).String(),
			}).Info("cache_entry_expired")
		}
		return nil
	})

	report.Elapsed = s.now().Sub(started)
	if walkErr != nil {
		return report, fsError("walk", s.basePath, walkErr)
	}
	return report, nil
}

// removeIfExpired 在 Key 锁内重新 Stat：遍历期间若已被新的 Put 替换，则保留新文件。
// 锁只覆盖单个文件的 Stat + Remove。
func (s *fileStore) removeIfExpired(filePath string, maxAge time.Duration) (bool, error) {
	if key, ok := s.keyForPath(filePath); ok {
		unlock := s.lockEntry(key)
		defer unlock()
	}

	info, err := os.Lstat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if !s.expired(info.ModTime(), maxAge) {
		return false, nil
	}
	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *fileStore) expired(modTime time.Time, maxAge time.Duration) bool {
	return s.now().Sub(modTime) > maxAge
}

func (s *fileStore) logSweepFailure(op, filePath string, err error) {
	s.logger.WithError(err).WithFields(logrus.Fields{
		"action": "sweep",
		"op":     op,
		"path":   filePath,
	}).Error("sweep_remove_failed")
}
