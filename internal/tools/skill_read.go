package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// SkillRead registers skill_read: returns the full body of a named skill
// document from the registered skill directories, searched in order so an
// operator's local override directory can shadow a shared one.
type SkillRead struct {
	dirs []string
}

func NewSkillRead(dirs ...string) *SkillRead {
	return &SkillRead{dirs: dirs}
}

func (sr *SkillRead) Register(r *Registry) {
	r.Register("skill_read", "Read the full body of a named skill document", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{"type": "string", "description": "Skill document name, without extension"},
		},
		"required": []string{"name"},
	}, sr.read)
}

func (sr *SkillRead) read(_ context.Context, args map[string]interface{}) *Result {
	name, _ := args["name"].(string)
	if name == "" {
		return ErrorResult("name is required")
	}
	if filepath.Base(name) != name {
		return ErrorResult("name must not contain path separators")
	}

	for _, dir := range sr.dirs {
		path := filepath.Join(dir, name+".md")
		data, err := os.ReadFile(path)
		if err == nil {
			return SilentResult(truncateMiddle(string(data)))
		}
		if !os.IsNotExist(err) {
			return ErrorResult(fmt.Sprintf("failed to read skill %q: %v", name, err))
		}
	}
	return ErrorResult(fmt.Sprintf("NOT_FOUND: no skill named %q", name))
}
