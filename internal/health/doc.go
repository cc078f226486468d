// Package health scans a source tree for textual code-health issues.
//
// The scan is read-only and heuristic. It walks the tree in lexical order,
// skipping hidden and dependency/build directories, reads up to MaxFiles
// source files in full, and runs each registered FileCheck over every file.
// Unreadable files are skipped and counted, never fatal.
//
// Three checks are built in:
//
//   - unused_import: a module-local import whose bound name never appears
//     again in the file. This is a text match, so a name that only shows up
//     inside a string or comment still counts as used.
//   - dead_code: a debug print (console.log, fmt.Println, println) that is
//     not itself commented out.
//   - dead_code: a TODO, FIXME, or HACK marker.
package health
