package health

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
)

// DefaultChecks returns the built-in checks in the order they run
func DefaultChecks() []FileCheck {
	return []FileCheck{
		&UnusedImportCheck{},
		&DebugPrintCheck{},
		&MarkerCheck{},
	}
}

func newIssue(file SourceFile, lineIdx int, category Category, severity Severity, check, description string) CodeIssue {
	return CodeIssue{
		FilePath:    file.Path,
		Line:        lineIdx + 1,
		Category:    category,
		Severity:    severity,
		Description: description,
		Evidence: map[string]any{
			"check": check,
			"text":  strings.TrimSpace(file.Lines[lineIdx]),
		},
	}
}

// UnusedImportCheck flags module-local imports whose bound name is never
// used again. For JavaScript and TypeScript "module-local" means a relative
// specifier ("./x", "../y"); for Go it means a package inside the scanned
// module. Only single-line JS imports are recognized.
type UnusedImportCheck struct{}

// Name implements FileCheck.
func (c *UnusedImportCheck) Name() string { return "unused_import" }

var (
	jsImportRe = regexp.MustCompile(`^\s*import\s+(.+?)\s+from\s+['"](\.{1,2}/[^'"]*)['"]`)
	goImportRe = regexp.MustCompile(`^\s*(?:import\s+)?([A-Za-z_][A-Za-z0-9_]*|\.)?\s*"([^"]+)"`)
)

type binding struct {
	name   string
	module string
	line   int
}

// Check implements FileCheck.
func (c *UnusedImportCheck) Check(ctx context.Context, file SourceFile) []CodeIssue {
	var bindings []binding
	if file.IsGo() {
		bindings = goBindings(file)
	} else {
		bindings = jsBindings(file)
	}

	var issues []CodeIssue
	for _, b := range bindings {
		if usedElsewhere(file, b, file.IsGo()) {
			continue
		}
		issues = append(issues, newIssue(file, b.line, CategoryUnusedImport, SeverityLow, c.Name(),
			fmt.Sprintf("Import %s from %s appears unused", b.name, b.module)))
	}
	return issues
}

func jsBindings(file SourceFile) []binding {
	var out []binding
	for i, line := range file.Lines {
		m := jsImportRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		for _, name := range parseImportClause(m[1]) {
			out = append(out, binding{name: name, module: m[2], line: i})
		}
	}
	return out
}

// parseImportClause extracts bound names from the part of an import
// statement between "import" and "from".
func parseImportClause(clause string) []string {
	clause = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(clause), "type "))

	var names []string
	named := ""
	if open := strings.Index(clause, "{"); open >= 0 {
		if end := strings.Index(clause[open:], "}"); end >= 0 {
			named = clause[open+1 : open+end]
		}
		clause = clause[:open]
	}

	for _, part := range strings.Split(clause, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "":
		case strings.HasPrefix(part, "*"):
			if idx := strings.Index(part, " as "); idx >= 0 {
				names = append(names, strings.TrimSpace(part[idx+4:]))
			}
		default:
			names = append(names, part)
		}
	}
	for _, spec := range strings.Split(named, ",") {
		spec = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(spec), "type "))
		if spec == "" {
			continue
		}
		if idx := strings.Index(spec, " as "); idx >= 0 {
			spec = strings.TrimSpace(spec[idx+4:])
		}
		names = append(names, spec)
	}
	return names
}

func goBindings(file SourceFile) []binding {
	if file.ModulePath == "" {
		return nil
	}
	var out []binding
	inBlock := false
	for i, line := range file.Lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
			continue
		case inBlock && strings.HasPrefix(trimmed, ")"):
			inBlock = false
			continue
		case !inBlock && !strings.HasPrefix(trimmed, "import "):
			continue
		}

		m := goImportRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		alias, importPath := m[1], m[2]
		if importPath != file.ModulePath && !strings.HasPrefix(importPath, file.ModulePath+"/") {
			continue
		}
		if alias == "." || alias == "_" {
			continue
		}
		name := alias
		if name == "" {
			// the package name usually matches the last element
			name = path.Base(importPath)
		}
		out = append(out, binding{name: name, module: importPath, line: i})
	}
	return out
}

func usedElsewhere(file SourceFile, b binding, qualified bool) bool {
	pattern := `\b` + regexp.QuoteMeta(b.name) + `\b`
	if qualified {
		pattern += `\s*\.`
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return true
	}
	for i, line := range file.Lines {
		if i == b.line {
			continue
		}
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// DebugPrintCheck flags debug output left in code.
type DebugPrintCheck struct{}

// Name implements FileCheck.
func (c *DebugPrintCheck) Name() string { return "debug_print" }

var debugPrintRe = regexp.MustCompile(`console\.(?:log|debug)\s*\(|fmt\.Println\s*\(|(?:^|[^.\w])println\s*\(`)

// Check implements FileCheck.
func (c *DebugPrintCheck) Check(ctx context.Context, file SourceFile) []CodeIssue {
	var issues []CodeIssue
	for i, code := range maskComments(file.Lines) {
		if !debugPrintRe.MatchString(code) {
			continue
		}
		issues = append(issues, newIssue(file, i, CategoryDeadCode, SeverityMedium, c.Name(),
			"Debug print statement left in code"))
	}
	return issues
}

// MarkerCheck flags TODO, FIXME, and HACK markers.
type MarkerCheck struct{}

// Name implements FileCheck.
func (c *MarkerCheck) Name() string { return "marker" }

var markerRe = regexp.MustCompile(`\b(TODO|FIXME|HACK)\b`)

// Check implements FileCheck.
func (c *MarkerCheck) Check(ctx context.Context, file SourceFile) []CodeIssue {
	var issues []CodeIssue
	for i, line := range file.Lines {
		m := markerRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		issue := newIssue(file, i, CategoryDeadCode, SeverityLow, c.Name(),
			fmt.Sprintf("%s marker indicates unfinished work", m[1]))
		issue.Evidence["marker"] = m[1]
		issues = append(issues, issue)
	}
	return issues
}
