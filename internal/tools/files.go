package tools

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Filesystem holds the workspace root every filesystem tool resolves
// relative paths against, and registers read_file/write_file/list_files/
// search_files/patch_file on a Registry.
type Filesystem struct {
	workspace string
	restrict  bool
}

func NewFilesystem(workspace string, restrictToWorkspace bool) *Filesystem {
	return &Filesystem{workspace: workspace, restrict: restrictToWorkspace}
}

// Register adds all five canonical filesystem tools to r.
func (fs *Filesystem) Register(r *Registry) {
	r.Register("read_file", "Read the contents of a file", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":   map[string]interface{}{"type": "string", "description": "Path to the file to read"},
			"offset": map[string]interface{}{"type": "integer", "description": "Line to start reading from (0-indexed)"},
			"limit":  map[string]interface{}{"type": "integer", "description": "Maximum number of lines to read"},
		},
		"required": []string{"path"},
	}, fs.readFile)

	r.Register("write_file", "Write content to a file, creating parent directories as needed", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":    map[string]interface{}{"type": "string", "description": "Path to the file to write"},
			"content": map[string]interface{}{"type": "string", "description": "Content to write"},
		},
		"required": []string{"path", "content"},
	}, fs.writeFile)

	r.Register("list_files", "List a directory's contents with size and kind", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{"type": "string", "description": "Directory to list; defaults to the workspace root"},
		},
	}, fs.listFiles)

	r.Register("search_files", "Recursively search file contents for a substring", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":  map[string]interface{}{"type": "string", "description": "Directory to search; defaults to the workspace root"},
			"query": map[string]interface{}{"type": "string", "description": "Substring to search for"},
		},
		"required": []string{"query"},
	}, fs.searchFiles)

	r.Register("patch_file", "Replace an exact string match in a file", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":        map[string]interface{}{"type": "string", "description": "Path to the file to patch"},
			"old_str":     map[string]interface{}{"type": "string", "description": "Exact text to replace; must occur exactly once unless replace_all is set"},
			"new_str":     map[string]interface{}{"type": "string", "description": "Replacement text"},
			"replace_all": map[string]interface{}{"type": "boolean", "description": "Allow replacing every occurrence instead of requiring exactly one"},
		},
		"required": []string{"path", "old_str", "new_str"},
	}, fs.patchFile)
}

const (
	maxListEntries   = 1000
	maxSearchMatches = 100
)

func (fs *Filesystem) readFile(_ context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	if path == "" {
		return ErrorResult("path is required")
	}
	resolved, err := resolvePath(path, fs.workspace, fs.restrict)
	if err != nil {
		return ErrorResult(fmt.Sprintf("PERMISSION: %v", err))
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrorResult(fmt.Sprintf("NOT_FOUND: %s", path))
		}
		return ErrorResult(fmt.Sprintf("PERMISSION: %v", err))
	}

	content := string(data)
	if offset, ok := intArg(args, "offset"); ok {
		lines := strings.Split(content, "\n")
		if offset < 0 || offset > len(lines) {
			offset = len(lines)
		}
		lines = lines[offset:]
		if limit, ok := intArg(args, "limit"); ok && limit >= 0 && limit < len(lines) {
			lines = lines[:limit]
		}
		content = strings.Join(lines, "\n")
	}
	return SilentResult(truncateMiddle(content))
}

func (fs *Filesystem) writeFile(_ context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	if path == "" {
		return ErrorResult("path is required")
	}
	resolved, err := resolvePath(path, fs.workspace, fs.restrict)
	if err != nil {
		return ErrorResult(fmt.Sprintf("PERMISSION: %v", err))
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return ErrorResult(fmt.Sprintf("failed to create parent directories: %v", err))
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("failed to write file: %v", err))
	}
	return SilentResult(fmt.Sprintf("wrote %d bytes to %s", len(content), path))
}

func (fs *Filesystem) listFiles(_ context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}
	resolved, err := resolvePath(path, fs.workspace, fs.restrict)
	if err != nil {
		return ErrorResult(fmt.Sprintf("PERMISSION: %v", err))
	}
	ents, err := os.ReadDir(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrorResult(fmt.Sprintf("NOT_FOUND: %s", path))
		}
		return ErrorResult(fmt.Sprintf("PERMISSION: %v", err))
	}

	sort.Slice(ents, func(i, j int) bool { return ents[i].Name() < ents[j].Name() })

	var b strings.Builder
	count := 0
	for _, e := range ents {
		if count >= maxListEntries {
			fmt.Fprintf(&b, "... (truncated at %d entries)\n", maxListEntries)
			break
		}
		info, err := e.Info()
		var size int64
		if err == nil {
			size = info.Size()
		}
		kind := "file"
		if e.IsDir() {
			kind = "dir"
		}
		fmt.Fprintf(&b, "%s\t%s\t%d\n", kind, e.Name(), size)
		count++
	}
	return SilentResult(truncateMiddle(b.String()))
}

var skipDirNames = map[string]bool{".git": true, ".svn": true, ".hg": true, "node_modules": true}

func (fs *Filesystem) searchFiles(_ context.Context, args map[string]interface{}) *Result {
	query, _ := args["query"].(string)
	if query == "" {
		return ErrorResult("query is required")
	}
	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}
	root, err := resolvePath(path, fs.workspace, fs.restrict)
	if err != nil {
		return ErrorResult(fmt.Sprintf("PERMISSION: %v", err))
	}

	var b strings.Builder
	matches := 0
	walkErr := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if matches >= maxSearchMatches {
			return filepath.SkipAll
		}
		if info.IsDir() {
			if skipDirNames[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil || isBinary(data) {
			return nil
		}
		rel, _ := filepath.Rel(fs.workspace, p)
		scanner := bufio.NewScanner(bytes.NewReader(data))
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Text()
			if strings.Contains(line, query) {
				fmt.Fprintf(&b, "%s:%d: %s\n", rel, lineNo, strings.TrimSpace(line))
				matches++
				if matches >= maxSearchMatches {
					break
				}
			}
		}
		return nil
	})
	if walkErr != nil && walkErr != filepath.SkipAll {
		return ErrorResult(fmt.Sprintf("search failed: %v", walkErr))
	}
	if matches == 0 {
		return SilentResult("no matches")
	}
	if matches >= maxSearchMatches {
		fmt.Fprintf(&b, "... (truncated at %d matches)\n", maxSearchMatches)
	}
	return SilentResult(truncateMiddle(b.String()))
}

// isBinary uses the same heuristic as grep: a NUL byte anywhere in the first
// chunk marks the file as binary and skips it.
func isBinary(data []byte) bool {
	n := len(data)
	if n > 8000 {
		n = 8000
	}
	return bytes.IndexByte(data[:n], 0) != -1
}

func (fs *Filesystem) patchFile(_ context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	oldStr, _ := args["old_str"].(string)
	newStr, _ := args["new_str"].(string)
	replaceAll, _ := args["replace_all"].(bool)
	if path == "" || oldStr == "" {
		return ErrorResult("path and old_str are required")
	}
	resolved, err := resolvePath(path, fs.workspace, fs.restrict)
	if err != nil {
		return ErrorResult(fmt.Sprintf("PERMISSION: %v", err))
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrorResult(fmt.Sprintf("NOT_FOUND: %s", path))
		}
		return ErrorResult(fmt.Sprintf("PERMISSION: %v", err))
	}
	original := string(data)
	count := strings.Count(original, oldStr)
	if count == 0 {
		return ErrorResult("old_str not found in file")
	}
	if count > 1 && !replaceAll {
		return ErrorResult(fmt.Sprintf("old_str occurs %d times; pass replace_all to replace every occurrence", count))
	}

	var patched string
	if replaceAll {
		patched = strings.ReplaceAll(original, oldStr, newStr)
	} else {
		patched = strings.Replace(original, oldStr, newStr, 1)
	}
	if err := os.WriteFile(resolved, []byte(patched), 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("failed to write file: %v", err))
	}

	diff := unifiedDiff(path, original, patched)
	return SilentResult(fmt.Sprintf("patched %s\n\n%s", path, diff))
}

func intArg(args map[string]interface{}, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

// resolvePath turns a user-supplied path into an absolute filesystem path,
// rejecting anything that escapes the workspace root via a symlink when
// restrict is set. Grounded on the teacher's resolvePath/isPathInside
// symlink-safety pattern, trimmed of sandbox and virtual-FS routing.
func resolvePath(path, workspace string, restrict bool) (string, error) {
	var resolved string
	if filepath.IsAbs(path) {
		resolved = filepath.Clean(path)
	} else {
		resolved = filepath.Clean(filepath.Join(workspace, path))
	}
	if !restrict {
		return resolved, nil
	}

	absWorkspace, _ := filepath.Abs(workspace)
	wsReal, err := filepath.EvalSymlinks(absWorkspace)
	if err != nil {
		wsReal = absWorkspace
	}

	absResolved, _ := filepath.Abs(resolved)
	real, err := filepath.EvalSymlinks(absResolved)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("cannot resolve path: %w", err)
		}
		parentReal, perr := filepath.EvalSymlinks(filepath.Dir(absResolved))
		if perr != nil {
			return "", fmt.Errorf("cannot resolve parent directory: %w", perr)
		}
		real = filepath.Join(parentReal, filepath.Base(absResolved))
	}

	if !isPathInside(real, wsReal) {
		return "", fmt.Errorf("path %s escapes workspace %s", path, workspace)
	}
	return real, nil
}

func isPathInside(child, parent string) bool {
	if child == parent {
		return true
	}
	return strings.HasPrefix(child, parent+string(filepath.Separator))
}
