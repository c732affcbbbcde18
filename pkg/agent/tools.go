package agent

import (
	"context"
	"strings"

	"github.com/teslashibe/go-voiceform/pkg/voice"
)

// SetterSpec describes a tool that sets one scalar field.
type SetterSpec struct {
	Tool        string
	Description string

	// Param is the argument name and ParamDescription its natural-language
	// constraint, e.g. "small, medium, or large".
	Param            string
	ParamDescription string

	Field string

	// Reply builds the acknowledgement from the stored value. The
	// definition's follow-up prompt is appended to it.
	Reply func(value string) string
}

// Setter builds a field-update tool. The tool never fails: a rejected value
// produces a reply asking the user to repeat it.
func (s *Session) Setter(spec SetterSpec) voice.Tool {
	return voice.Tool{
		Name:        spec.Tool,
		Description: spec.Description,
		Parameters:  map[string]any{spec.Param: voice.StringParam(spec.ParamDescription)},
		Required:    []string{spec.Param},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			v, err := s.Set(ctx, spec.Field, voice.StringArg(args, spec.Param))
			if err != nil {
				f, _ := s.Def.Schema.Field(spec.Field)
				return RejectReply(f, err), nil
			}
			return s.withFollowUp(spec.Reply(v)), nil
		},
	}
}

// AdderSpec describes a tool that adds one item to a list field.
type AdderSpec struct {
	Tool             string
	Description      string
	Param            string
	ParamDescription string
	Field            string

	// Reply builds the acknowledgement. added is false when the item was
	// already present. The follow-up prompt is appended as for setters.
	Reply func(item string, added bool) string
}

// Adder builds a list-update tool.
func (s *Session) Adder(spec AdderSpec) voice.Tool {
	return voice.Tool{
		Name:        spec.Tool,
		Description: spec.Description,
		Parameters:  map[string]any{spec.Param: voice.StringParam(spec.ParamDescription)},
		Required:    []string{spec.Param},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			raw := voice.StringArg(args, spec.Param)
			added, err := s.Add(ctx, spec.Field, raw)
			if err != nil {
				f, _ := s.Def.Schema.Field(spec.Field)
				return RejectReply(f, err), nil
			}
			return s.withFollowUp(spec.Reply(strings.TrimSpace(raw), added)), nil
		},
	}
}

// Action builds a tool without arguments.
func (s *Session) Action(name, description string, fn func(ctx context.Context) string) voice.Tool {
	return voice.Tool{
		Name:        name,
		Description: description,
		Handler: func(ctx context.Context, _ map[string]any) (string, error) {
			return fn(ctx), nil
		},
	}
}
