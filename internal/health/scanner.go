package health

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/mod/modfile"

	"github.com/steveyegge/tuneup/internal/config"
)

// DefaultSkipDirs are dependency and build directories never scanned.
// Hidden directories (leading ".") are always skipped as well.
var DefaultSkipDirs = []string{
	"node_modules",
	"vendor",
	"dist",
	"build",
	"bin",
	"coverage",
	"target",
	"testdata",
}

// DefaultExtensions are the source file extensions the scanner reads
var DefaultExtensions = []string{".go", ".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs"}

// DefaultExcludePatterns skip generated and minified files
var DefaultExcludePatterns = []string{".min.js", ".pb.go", ".d.ts"}

// Scanner walks a source tree and runs file checks.
type Scanner struct {
	// RootPath is the absolute scan root
	RootPath string
	// MaxFiles caps how many source files are read
	MaxFiles int
	// SkipDirs are directory names never descended into
	SkipDirs []string
	// ExcludePatterns are matched with ShouldExcludePath against relative paths
	ExcludePatterns []string
	// Extensions are the file extensions treated as source
	Extensions []string

	registry *CheckRegistry
	logger   *slog.Logger
	now      func() time.Time
}

// NewScanner creates a scanner with the built-in checks.
func NewScanner(cfg config.ScannerConfig, logger *slog.Logger) (*Scanner, error) {
	root := cfg.Root
	if root == "" {
		root = "."
	}
	absPath, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid root path %q: %w", root, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	registry, err := NewCheckRegistry(DefaultChecks()...)
	if err != nil {
		return nil, err
	}

	maxFiles := cfg.MaxFiles
	if maxFiles <= 0 {
		maxFiles = 50
	}

	skip := append([]string{}, DefaultSkipDirs...)
	skip = append(skip, cfg.ExtraSkipDirs...)

	return &Scanner{
		RootPath:        absPath,
		MaxFiles:        maxFiles,
		SkipDirs:        skip,
		ExcludePatterns: append([]string{}, DefaultExcludePatterns...),
		Extensions:      append([]string{}, DefaultExtensions...),
		registry:        registry,
		logger:          logger,
		now:             time.Now,
	}, nil
}

// Registry exposes the check registry so callers can add checks.
func (s *Scanner) Registry() *CheckRegistry {
	return s.registry
}

// Scan discovers up to MaxFiles source files and runs every check on each.
// Files that cannot be read are skipped.
func (s *Scanner) Scan(ctx context.Context) (*ScanResult, error) {
	start := s.now()

	files, truncated, err := s.discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", s.RootPath, err)
	}

	modulePath := findModulePath(s.RootPath)
	checks := s.registry.Checks()

	result := &ScanResult{Issues: []CodeIssue{}}
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		lines, err := readLines(filepath.Join(s.RootPath, filepath.FromSlash(rel)))
		if err != nil {
			s.logger.Debug("skipping unreadable file", "file", rel, "error", err)
			result.Stats.FilesSkipped++
			continue
		}
		result.Stats.FilesScanned++

		file := SourceFile{
			Path:       rel,
			Ext:        strings.ToLower(filepath.Ext(rel)),
			Lines:      lines,
			ModulePath: modulePath,
		}
		for _, check := range checks {
			result.Issues = append(result.Issues, check.Check(ctx, file)...)
		}
	}

	result.Stats.IssuesFound = len(result.Issues)
	result.Stats.Truncated = truncated
	result.Stats.Duration = s.now().Sub(start)
	result.CheckedAt = s.now()

	s.logger.Debug("codebase scan complete",
		"root", s.RootPath,
		"files", result.Stats.FilesScanned,
		"skipped", result.Stats.FilesSkipped,
		"issues", result.Stats.IssuesFound)
	return result, nil
}

var errEnoughFiles = errors.New("file limit reached")

// discover returns relative slash-separated paths of source files in walk
// order, and whether MaxFiles cut the walk short.
func (s *Scanner) discover(ctx context.Context) ([]string, bool, error) {
	var files []string
	truncated := false

	err := filepath.WalkDir(s.RootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable directories are skipped like unreadable files
			if d != nil && d.IsDir() && path != s.RootPath {
				return filepath.SkipDir
			}
			if path == s.RootPath {
				return err
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		relPath, err := filepath.Rel(s.RootPath, path)
		if err != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if path == s.RootPath {
				return nil
			}
			if s.skipDir(d.Name()) || ShouldExcludePath(relPath+"/", s.ExcludePatterns) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || !s.isSource(relPath) || ShouldExcludePath(relPath, s.ExcludePatterns) {
			return nil
		}
		if len(files) == s.MaxFiles {
			truncated = true
			return errEnoughFiles
		}
		files = append(files, relPath)
		return nil
	})
	if errors.Is(err, errEnoughFiles) {
		err = nil
	}
	return files, truncated, err
}

func (s *Scanner) skipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, skip := range s.SkipDirs {
		if name == skip {
			return true
		}
	}
	return false
}

func (s *Scanner) isSource(relPath string) bool {
	ext := strings.ToLower(filepath.Ext(relPath))
	for _, e := range s.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// findModulePath returns the module path from the nearest go.mod at or above
// root, or "" when there is none.
func findModulePath(root string) string {
	dir := root
	for {
		data, err := os.ReadFile(filepath.Join(dir, "go.mod"))
		if err == nil {
			return modfile.ModulePath(data)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
