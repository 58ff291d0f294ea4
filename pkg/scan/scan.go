// Package scan expands source paths into transfer items.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/larrydiffey/difcopy/pkg/core"
)

// ErrRemotePath is returned for URLs and host:path sources
var ErrRemotePath = errors.New("remote paths are not supported")

// Plan is the enumerated work for one operation
type Plan struct {
	Items      []*core.Item
	TotalFiles int64
	TotalSize  int64
	FileTypes  map[string]int64
	Ignored    []string // entries that are neither regular files nor directories
	ScanTime   time.Duration
}

// Scanner walks local sources
type Scanner struct {
	include []string
	exclude []string
	log     *logrus.Entry
}

// New creates a scanner
func New(log *logrus.Entry) *Scanner {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Scanner{log: log}
}

// WithFilters sets glob patterns matched against base names. A file is kept
// when it matches any include (or there are none) and no exclude.
func (s *Scanner) WithFilters(include, exclude []string) *Scanner {
	s.include = include
	s.exclude = exclude
	return s
}

// Plan enumerates sources into items under dest. A single regular-file
// source whose dest is not an existing directory is copied to dest itself;
// otherwise every source lands inside dest, directories keeping their name.
func (s *Scanner) Plan(ctx context.Context, sources []string, dest string) (*Plan, error) {
	start := time.Now()
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources given")
	}

	for _, p := range append([]string{dest}, sources...) {
		if isRemote(p) {
			return nil, fmt.Errorf("%w: %s", ErrRemotePath, p)
		}
	}

	absDest, err := filepath.Abs(dest)
	if err != nil {
		return nil, fmt.Errorf("resolve destination: %w", err)
	}
	destInfo, destErr := os.Stat(absDest)
	destIsDir := destErr == nil && destInfo.IsDir()

	plan := &Plan{FileTypes: make(map[string]int64)}

	for _, source := range sources {
		absSrc, err := filepath.Abs(source)
		if err != nil {
			return nil, fmt.Errorf("resolve source: %w", err)
		}
		info, err := os.Stat(absSrc)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", source, err)
		}

		switch {
		case info.Mode().IsRegular():
			target := filepath.Join(absDest, filepath.Base(absSrc))
			if len(sources) == 1 && !destIsDir {
				target = absDest
			}
			s.add(plan, absSrc, target, info.Size())

		case info.IsDir():
			root := filepath.Join(absDest, filepath.Base(absSrc))
			if within(absDest, absSrc) {
				return nil, fmt.Errorf("cannot copy %s into itself", source)
			}
			if err := s.walk(ctx, plan, absSrc, root); err != nil {
				return nil, err
			}

		default:
			plan.Ignored = append(plan.Ignored, absSrc)
		}
	}

	plan.ScanTime = time.Since(start)

	s.log.WithFields(logrus.Fields{
		"function": "Plan",
		"sources":  len(sources),
		"files":    plan.TotalFiles,
		"bytes":    plan.TotalSize,
		"ignored":  len(plan.Ignored),
		"duration": plan.ScanTime,
	}).Debug("Sources enumerated")

	return plan, nil
}

func (s *Scanner) walk(ctx context.Context, plan *Plan, srcRoot, dstRoot string) error {
	return filepath.WalkDir(srcRoot, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			// unreadable subtrees are reported and skipped
			s.log.WithFields(logrus.Fields{
				"function": "walk",
				"path":     path,
			}).WithError(err).Warn("Skipping unreadable entry")
			plan.Ignored = append(plan.Ignored, path)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			plan.Ignored = append(plan.Ignored, path)
			return nil
		}
		if !s.keep(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			plan.Ignored = append(plan.Ignored, path)
			return nil
		}

		rel, err := filepath.Rel(srcRoot, path)
		if err != nil {
			return err
		}
		s.add(plan, path, filepath.Join(dstRoot, rel), info.Size())
		return nil
	})
}

func (s *Scanner) add(plan *Plan, src, dst string, size int64) {
	plan.Items = append(plan.Items, core.NewItem(src, dst, size))
	plan.TotalFiles++
	plan.TotalSize += size

	ext := strings.ToLower(filepath.Ext(src))
	if ext == "" {
		ext = "(no extension)"
	}
	plan.FileTypes[ext]++
}

func (s *Scanner) keep(name string) bool {
	matches := func(pattern string) bool {
		ok, _ := filepath.Match(pattern, name)
		return ok
	}
	if len(s.include) > 0 && !lo.SomeBy(s.include, matches) {
		return false
	}
	return !lo.SomeBy(s.exclude, matches)
}

// within reports whether path is root or lies below it
func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// isRemote detects URLs and scp-style user@host:path sources
func isRemote(path string) bool {
	if strings.Contains(path, "://") {
		return true
	}
	return strings.Contains(path, "@") && strings.Contains(path, ":")
}

// Validate checks that every pattern is well formed
func Validate(patterns ...string) error {
	for _, p := range patterns {
		if _, err := filepath.Match(p, ""); err != nil {
			return fmt.Errorf("invalid pattern %q: %w", p, err)
		}
	}
	return nil
}
