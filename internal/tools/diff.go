package tools

import "github.com/sergi/go-diff/diffmatchpatch"

// unifiedDiff renders a line-level unified diff between before and after,
// for patch_file's success payload per spec.md's additional diff field.
func unifiedDiff(path, before, after string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var out []byte
	out = append(out, "--- "+path+"\n"...)
	out = append(out, "+++ "+path+"\n"...)
	for _, d := range diffs {
		prefix := "  "
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		}
		for _, line := range splitKeepEmpty(d.Text) {
			if line == "" {
				continue
			}
			out = append(out, prefix+line+"\n"...)
		}
	}
	return string(out)
}

func splitKeepEmpty(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
