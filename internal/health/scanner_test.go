package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/tuneup/internal/config"
	"github.com/steveyegge/tuneup/internal/logging"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestScanner(t *testing.T, root string, maxFiles int) *Scanner {
	t.Helper()
	s, err := NewScanner(config.ScannerConfig{Root: root, MaxFiles: maxFiles}, logging.Discard())
	require.NoError(t, err)
	return s
}

func issuesIn(result *ScanResult, file string) []CodeIssue {
	var out []CodeIssue
	for _, issue := range result.Issues {
		if issue.FilePath == file {
			out = append(out, issue)
		}
	}
	return out
}

func TestScanFindsAllIssueShapes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/app.ts", strings.Join([]string{
		`import { helper } from './helper'`,
		`import Widget from "../widget"`,
		`import React from 'react'`,
		``,
		`export function run() {`,
		`  console.log("debug")`,
		`  // console.log("commented out")`,
		`  // TODO: remove this hack`,
		`  return Widget()`,
		`}`,
	}, "\n"))

	result, err := newTestScanner(t, root, 50).Scan(context.Background())
	require.NoError(t, err)

	issues := issuesIn(result, "src/app.ts")
	require.Len(t, issues, 3)

	assert.Equal(t, CategoryUnusedImport, issues[0].Category)
	assert.Equal(t, 1, issues[0].Line)
	assert.Contains(t, issues[0].Description, "helper")

	assert.Equal(t, CategoryDeadCode, issues[1].Category)
	assert.Equal(t, 6, issues[1].Line)
	assert.Equal(t, "debug_print", issues[1].Evidence["check"])

	assert.Equal(t, CategoryDeadCode, issues[2].Category)
	assert.Equal(t, 8, issues[2].Line)
	assert.Equal(t, "TODO", issues[2].Evidence["marker"])

	assert.Equal(t, 1, result.Stats.FilesScanned)
	assert.Equal(t, 3, result.Stats.IssuesFound)
}

func TestScanSkipsHiddenAndDependencyDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, ".git/hooks/x.js", "// FIXME\n")
	writeFile(t, root, ".cache/y.ts", "// FIXME\n")
	writeFile(t, root, "node_modules/lib/index.js", "// FIXME\n")
	writeFile(t, root, "vendor/dep/dep.go", "// FIXME\n")
	writeFile(t, root, "dist/app.js", "// FIXME\n")
	writeFile(t, root, "web/app.min.js", "// FIXME\n")
	writeFile(t, root, "README.md", "TODO\n")

	result, err := newTestScanner(t, root, 50).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.FilesScanned)
	assert.Empty(t, result.Issues)
}

func TestScanExtraSkipDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "generated/x.go", "// HACK\n")

	s, err := NewScanner(config.ScannerConfig{Root: root, MaxFiles: 10, ExtraSkipDirs: []string{"generated"}}, logging.Discard())
	require.NoError(t, err)
	result, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Stats.FilesScanned)
}

func TestScanCapsFiles(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 60; i++ {
		writeFile(t, root, fmt.Sprintf("f%02d.js", i), "// TODO\n")
	}

	result, err := newTestScanner(t, root, 50).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50, result.Stats.FilesScanned)
	assert.True(t, result.Stats.Truncated)
	assert.Len(t, result.Issues, 50)
	// lexical walk order
	assert.Equal(t, "f00.js", result.Issues[0].FilePath)
	assert.Equal(t, "f49.js", result.Issues[49].FilePath)
}

func TestScanSkipsUnreadableFiles(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	root := t.TempDir()
	writeFile(t, root, "a.js", "// TODO\n")
	writeFile(t, root, "b.js", "// TODO\n")
	require.NoError(t, os.Chmod(filepath.Join(root, "a.js"), 0o000))

	result, err := newTestScanner(t, root, 50).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.FilesScanned)
	assert.Equal(t, 1, result.Stats.FilesSkipped)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "b.js", result.Issues[0].FilePath)
}

func TestScanMissingRoot(t *testing.T) {
	s := newTestScanner(t, filepath.Join(t.TempDir(), "absent"), 50)
	_, err := s.Scan(context.Background())
	assert.Error(t, err)
}

func TestScanHonorsContext(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestScanner(t, root, 50).Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGoUnusedImport(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/shop\n\ngo 1.22\n")
	writeFile(t, root, "cmd/main.go", strings.Join([]string{
		`package main`,
		``,
		`import (`,
		`	"fmt"`,
		``,
		`	"example.com/shop/internal/cart"`,
		`	pay "example.com/shop/internal/payments"`,
		`	_ "example.com/shop/internal/plugins"`,
		`	"example.com/shop/internal/tax"`,
		`)`,
		``,
		`func main() {`,
		`	fmt.Println(cart.Total())`,
		`	println("dbg")`,
		`	_ = tax.Rate`,
		`}`,
	}, "\n"))

	result, err := newTestScanner(t, root, 50).Scan(context.Background())
	require.NoError(t, err)

	issues := issuesIn(result, "cmd/main.go")
	require.Len(t, issues, 3)
	assert.Equal(t, CategoryUnusedImport, issues[0].Category)
	assert.Equal(t, 7, issues[0].Line)
	assert.Contains(t, issues[0].Description, "pay")
	assert.Equal(t, 13, issues[1].Line, "fmt.Println is a debug print")
	assert.Equal(t, 14, issues[2].Line, "builtin println is a debug print")
}

func TestGoImportsWithoutModuleAreIgnored(t *testing.T) {
	file := SourceFile{Path: "x.go", Ext: ".go", Lines: []string{`import "example.com/other/pkg"`}}
	assert.Empty(t, (&UnusedImportCheck{}).Check(context.Background(), file))
}

func TestParseImportClause(t *testing.T) {
	tests := []struct {
		clause string
		want   []string
	}{
		{"Default", []string{"Default"}},
		{"{ a, b as c }", []string{"a", "c"}},
		{"* as ns", []string{"ns"}},
		{"Default, { a }", []string{"Default", "a"}},
		{"type { Props }", []string{"Props"}},
		{"{ type Shape, draw }", []string{"Shape", "draw"}},
	}
	for _, tt := range tests {
		t.Run(tt.clause, func(t *testing.T) {
			assert.Equal(t, tt.want, parseImportClause(tt.clause))
		})
	}
}

func TestDebugPrintIgnoresComments(t *testing.T) {
	file := SourceFile{Path: "a.js", Ext: ".js", Lines: []string{
		`// console.log("a")`,
		` * console.log("b")`,
		`x = 1 // console.log("c")`,
		`fetch("http://x") ; console.debug("d")`,
		`logger.println("e")`,
		`/*`,
		`  console.log('old debugging')`,
		`*/`,
		`const x = 1; /* console.log(x) */`,
		`/* note */ console.log(y)`,
		`/* start`,
		`   end */ fmt.Println("live")`,
	}}
	issues := (&DebugPrintCheck{}).Check(context.Background(), file)
	require.Len(t, issues, 3)
	assert.Equal(t, 4, issues[0].Line)
	assert.Equal(t, 10, issues[1].Line)
	assert.Equal(t, 12, issues[2].Line)
}

func TestMaskCommentsKeepsColumns(t *testing.T) {
	lines := []string{
		`a /* b`,
		`c */ d // e`,
		`url("http://x")`,
	}
	masked := maskComments(lines)
	assert.Equal(t, "a     ", masked[0])
	assert.Equal(t, "     d     ", masked[1])
	assert.Equal(t, lines[2], masked[2])
	for i := range lines {
		assert.Len(t, masked[i], len(lines[i]))
	}
}

func TestMarkerCheck(t *testing.T) {
	file := SourceFile{Path: "a.go", Ext: ".go", Lines: []string{
		"// FIXME: broken",
		"x := todoList // lower-case is fine",
		"/* HACK */",
		"// TODOS are not markers",
	}}
	issues := (&MarkerCheck{}).Check(context.Background(), file)
	require.Len(t, issues, 2)
	assert.Equal(t, "FIXME", issues[0].Evidence["marker"])
	assert.Equal(t, 3, issues[1].Line)
}

func TestCheckRegistry(t *testing.T) {
	r, err := NewCheckRegistry(DefaultChecks()...)
	require.NoError(t, err)
	assert.Equal(t, []string{"unused_import", "debug_print", "marker"}, r.Names())

	err = r.Register(&MarkerCheck{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
	assert.Len(t, r.Checks(), 3)
}

func TestShouldExcludePath(t *testing.T) {
	tests := []struct {
		relPath  string
		patterns []string
		want     bool
	}{
		{"vendor/foo/bar.go", []string{"vendor/"}, true},
		{"vendorized/foo.go", []string{"vendor/"}, false},
		{"src/vendor/foo.go", []string{"vendor/"}, true},
		{"web/app.min.js", []string{".min.js"}, true},
		{"web/app.js", []string{".min.js"}, false},
		{"anything", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.relPath, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldExcludePath(tt.relPath, tt.patterns))
		})
	}
}

func TestFindModulePathWalksUp(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/walk\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	assert.Equal(t, "example.com/walk", findModulePath(nested))
}
