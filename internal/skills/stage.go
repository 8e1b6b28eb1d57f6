package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tapedesk/tape/internal/middleware"
	"github.com/tapedesk/tape/internal/session"
	"github.com/tapedesk/tape/internal/tools"
	"github.com/tapedesk/tape/internal/types"
)

// Stage exposes loaded skills to a conversation loop: the catalog goes into
// the system prompt, the bodies are served by read_skill. It intercepts no
// steps; its whole contribution is the prompt section and the tool.
type Stage struct {
	skills []Skill
	index  map[string]*Skill
}

// NewStage loads dir and builds the pipeline stage. It returns (nil, nil)
// when the directory is missing or holds no skills, and the assembly then
// leaves the stage out of the pipeline entirely.
func NewStage(dir string) (*Stage, error) {
	loaded, err := Load(dir)
	if err != nil {
		return nil, err
	}
	if len(loaded) == 0 {
		return nil, nil
	}

	s := &Stage{
		skills: loaded,
		index:  make(map[string]*Skill, len(loaded)),
	}
	for i := range s.skills {
		s.index[s.skills[i].Name] = &s.skills[i]
	}
	return s, nil
}

// Skills returns the loaded skills, sorted by name
func (s *Stage) Skills() []Skill {
	return s.skills
}

func (s *Stage) Name() string { return "skills" }

func (s *Stage) Before(ctx context.Context, step *middleware.Step) (middleware.Verdict, error) {
	return middleware.Continue, nil
}

func (s *Stage) After(ctx context.Context, step *middleware.Step) error {
	return nil
}

// DecoratePrompt appends the skill catalog to the system prompt
func (s *Stage) DecoratePrompt(base string) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\n## Skills\n\n")
	b.WriteString("Auxiliary knowledge documents. Read one with read_skill when its topic is relevant:\n")
	for i := range s.skills {
		fmt.Fprintf(&b, "- %s: %s\n", s.skills[i].Name, s.skills[i].Description)
	}
	return b.String()
}

// Tools contributes the read_skill tool
func (s *Stage) Tools() []tools.Tool {
	return []tools.Tool{&ReadSkillTool{stage: s}}
}

func (s *Stage) names() []string {
	names := make([]string, len(s.skills))
	for i := range s.skills {
		names[i] = s.skills[i].Name
	}
	return names
}

// ReadSkillTool serves one skill document's body to the model
type ReadSkillTool struct {
	stage *Stage
}

func (t *ReadSkillTool) Name() string { return "read_skill" }

func (t *ReadSkillTool) Description() string {
	return "Reads a skill document into context. Skills hold methodology the " +
		"system prompt only summarizes; read the relevant one before applying it."
}

func (t *ReadSkillTool) InputSchema() *tools.Schema {
	return tools.ObjectSchema(map[string]interface{}{
		"name": tools.Prop("string", "Skill name, exactly as listed in the system prompt."),
	}, "name")
}

func (t *ReadSkillTool) Execute(ctx context.Context, sc *session.Context, args json.RawMessage) (*tools.Result, error) {
	var in struct {
		Name string `json:"name"`
	}
	if err := tools.DecodeArgs(t.Name(), args, &in); err != nil {
		return nil, err
	}

	skill, ok := t.stage.index[in.Name]
	if !ok {
		return nil, types.NewValidationError(t.Name(), "unknown skill %q (available: %s)",
			in.Name, strings.Join(t.stage.names(), ", "))
	}
	return tools.Text("# Skill: %s\n\n%s", skill.Name, skill.Body), nil
}
