package health

import (
	"strings"
)

// ShouldExcludePath checks if a path matches any exclude patterns.
// Patterns can be:
//   - Directory prefixes: "vendor/" matches "vendor/foo.go"
//   - File suffixes: ".min.js" matches "dist/app.min.js"
//   - Anywhere in path: "node_modules/" matches "web/node_modules/x.js"
//
// Directories should be passed with a trailing slash so that "vendor/"
// matches the directory itself.
func ShouldExcludePath(relPath string, patterns []string) bool {
	for _, pattern := range patterns {
		// Match at path component boundaries so "vendor/" skips
		// "vendor/foo" but not "vendorized/bar"
		if strings.HasPrefix(relPath, pattern) ||
			strings.Contains(relPath, "/"+pattern) ||
			strings.HasSuffix(relPath, pattern) {
			return true
		}
	}
	return false
}

// maskComments returns lines with C-style comment text replaced by spaces,
// so column offsets still line up with the source. Block comments carry over
// from one line to the next. A line starting with "*" outside a block is a
// doc-comment continuation. "//" right after ':' is a URL, not a comment.
// Comment markers inside string literals are a known false positive.
func maskComments(lines []string) []string {
	out := make([]string, len(lines))
	inBlock := false
	for i, line := range lines {
		if !inBlock && strings.HasPrefix(strings.TrimSpace(line), "*") {
			out[i] = strings.Repeat(" ", len(line))
			continue
		}

		b := []byte(line)
		for j := 0; j < len(b); j++ {
			if inBlock {
				if b[j] == '*' && j+1 < len(b) && b[j+1] == '/' {
					b[j], b[j+1] = ' ', ' '
					j++
					inBlock = false
					continue
				}
				b[j] = ' '
				continue
			}
			if b[j] != '/' || j+1 >= len(b) {
				continue
			}
			switch b[j+1] {
			case '*':
				b[j], b[j+1] = ' ', ' '
				j++
				inBlock = true
			case '/':
				if j > 0 && b[j-1] == ':' {
					j++
					continue
				}
				for k := j; k < len(b); k++ {
					b[k] = ' '
				}
				j = len(b)
			}
		}
		out[i] = string(b)
	}
	return out
}
