// Package wellness is the daily check-in agent. It asks about mood, energy,
// stress and the day's objectives, appends each check-in to a cumulative log
// and uses the latest entry to open the next conversation.
package wellness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/teslashibe/go-voiceform/pkg/agent"
	"github.com/teslashibe/go-voiceform/pkg/broadcast"
	"github.com/teslashibe/go-voiceform/pkg/form"
	"github.com/teslashibe/go-voiceform/pkg/store"
	"github.com/teslashibe/go-voiceform/pkg/voice"
)

// Name is the agent name used in configuration.
const Name = "wellness"

// DefaultInstructions is the base system prompt.
const DefaultInstructions = `You are a calm, supportive wellness companion doing a short daily check-in. The user is talking to you by voice.

In each check-in, gently find out:
1. How they are feeling today (their mood, in their own words)
2. Their energy level (low, medium, or high)
3. Their stress level (low, moderate, or high)
4. One to three things they want to accomplish today
5. Anything else they want to note - optional

Record each answer with the matching tool as soon as you hear it. If the user shares several things at once, call every relevant tool in the same response.
You are not a therapist and never diagnose. Keep suggestions small and practical.
When the user is done, call complete_checkin and read back the short recap.

Keep replies brief, warm and conversational, without lists or symbols.`

// Options configures the wellness agent.
type Options struct {
	// Log stores completed check-ins. Defaults to ./wellness_log.json.
	Log *store.CheckInLog

	// Instructions replaces DefaultInstructions.
	Instructions string

	// Greeting replaces the default greeting. Use "-" for none.
	Greeting string

	// Logger reports log read failures while building instructions.
	// Defaults to slog.Default().
	Logger *slog.Logger
}

// Definition returns the wellness agent.
func Definition(opts Options) agent.Definition {
	if opts.Log == nil {
		opts.Log = store.NewCheckInLog("wellness_log.json")
	}
	base := opts.Instructions
	if base == "" {
		base = DefaultInstructions
	}

	greeting := opts.Greeting
	switch greeting {
	case "":
		greeting = "Greet the user warmly and ask how they are feeling today. If there is a previous check-in, mention it briefly."
	case "-":
		greeting = ""
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	log, logger := opts.Log, opts.Logger
	return agent.Definition{
		Name:         Name,
		Topic:        broadcast.TopicCheckIn,
		RecordKey:    "checkin",
		UpdateType:   broadcast.TypeCheckInUpdate,
		CompleteType: broadcast.TypeCheckInComplete,
		Schema:       form.CheckInSchema,
		Greeting:     greeting,
		Instructions: func(ctx context.Context) string {
			return Instructions(base, log, logger)
		},
		FollowUp: followUp,
		Tools: func(s *agent.Session) []voice.Tool {
			w := &wellness{s: s, log: log}
			return w.tools()
		},
	}
}

// Instructions appends a continuity note about the latest check-in to base.
// An empty or unreadable log leaves base unchanged; read failures other
// than an empty log are logged.
func Instructions(base string, log *store.CheckInLog, logger *slog.Logger) string {
	last, err := log.Latest()
	if err != nil {
		if !errors.Is(err, store.ErrNoEntries) {
			logger.Warn("read check-in log failed", "path", log.Path(), "error", err)
		}
		return base
	}
	return base + "\n\n" + ContinuityNote(last)
}

// ContinuityNote describes a previous check-in for the model.
func ContinuityNote(c store.CheckIn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Previous check-in (%s at %s): ", c.Date, c.Time)
	if c.Summary != "" {
		b.WriteString(c.Summary)
	} else {
		b.WriteString(Summarize(c))
	}
	b.WriteString("\nReference this briefly, for example by asking how things went with their goals, and ask how today compares.")
	return b.String()
}

// Summarize renders a check-in as one short sentence.
func Summarize(c store.CheckIn) string {
	var parts []string
	if c.Mood != "" {
		parts = append(parts, "feeling "+c.Mood)
	}
	if c.Energy != "" {
		parts = append(parts, c.Energy+" energy")
	}
	if c.Stress != "" {
		parts = append(parts, c.Stress+" stress")
	}

	var out string
	if len(parts) > 0 {
		out = capitalize(strings.Join(parts, ", ")) + "."
	}
	if len(c.Objectives) > 0 {
		out = strings.TrimSpace(out + " Goals: " + strings.Join(c.Objectives, ", ") + ".")
	}
	if c.Notes != "" {
		out = strings.TrimSpace(out + " Notes: " + c.Notes)
	}
	if out == "" {
		return "No details shared."
	}
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, n := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[n:]
}

// followUp asks about the first unanswered topic. Objectives come before
// the closing notes question.
func followUp(s *agent.Session, next form.Field, pending bool) string {
	if pending {
		switch next.Name {
		case form.FieldMood:
			return "How are you feeling today?"
		case form.FieldEnergy:
			return "How is your energy today - low, medium, or high?"
		case form.FieldStress:
			return "And how is your stress level - low, moderate, or high?"
		}
	}
	if len(s.Record.List(form.FieldObjectives)) == 0 {
		return "What are one to three things you'd like to get done today?"
	}
	if pending {
		return "Anything else you want to accomplish, or anything you'd like to note?"
	}
	return "Is there anything else you'd like to share before I save today's check-in?"
}

type wellness struct {
	s   *agent.Session
	log *store.CheckInLog
}

func (w *wellness) tools() []voice.Tool {
	s := w.s
	return []voice.Tool{
		s.Setter(agent.SetterSpec{
			Tool:             "set_mood",
			Description:      "Record how the user is feeling today.",
			Param:            "mood",
			ParamDescription: "The user's mood in their own words (e.g., good, tired, anxious, excited)",
			Field:            form.FieldMood,
			Reply: func(v string) string {
				return fmt.Sprintf("Thanks for sharing that you're feeling %s.", v)
			},
		}),
		s.Setter(agent.SetterSpec{
			Tool:             "set_energy",
			Description:      "Record the user's energy level.",
			Param:            "energy",
			ParamDescription: "The energy level: " + form.Energies.Describe(),
			Field:            form.FieldEnergy,
			Reply: func(v string) string {
				return fmt.Sprintf("Got it, %s energy.", v)
			},
		}),
		s.Setter(agent.SetterSpec{
			Tool:             "set_stress",
			Description:      "Record the user's stress level.",
			Param:            "stress",
			ParamDescription: "The stress level: " + form.Stresses.Describe(),
			Field:            form.FieldStress,
			Reply: func(v string) string {
				return fmt.Sprintf("Understood, %s stress.", v)
			},
		}),
		s.Adder(agent.AdderSpec{
			Tool:             "add_objective",
			Description:      "Add one thing the user wants to accomplish today.",
			Param:            "objective",
			ParamDescription: "A short goal for today (e.g., finish the report, go for a walk)",
			Field:            form.FieldObjectives,
			Reply: func(item string, added bool) string {
				if !added {
					return fmt.Sprintf("%s is already on today's list.", item)
				}
				return fmt.Sprintf("Added %s to today's goals.", item)
			},
		}),
		s.Setter(agent.SetterSpec{
			Tool:             "set_notes",
			Description:      "Record anything else the user wants to note about today.",
			Param:            "notes",
			ParamDescription: "Free-form notes in the user's words",
			Field:            form.FieldNotes,
			Reply: func(string) string {
				return "Noted."
			},
		}),
		s.Action("complete_checkin",
			"Save today's check-in. Use this when the user has shared what they want to share.",
			w.complete),
		s.Action("get_last_checkin",
			"Look up the user's previous check-in.",
			w.last),
	}
}

// CheckInFrom builds the entry to log from a record.
func CheckInFrom(r *form.Record) store.CheckIn {
	c := store.CheckIn{
		Mood:       r.Value(form.FieldMood),
		Energy:     r.Value(form.FieldEnergy),
		Stress:     r.Value(form.FieldStress),
		Objectives: r.List(form.FieldObjectives),
		Notes:      r.Value(form.FieldNotes),
	}
	if c.Objectives == nil {
		c.Objectives = []string{}
	}
	c.Summary = Summarize(c)
	return c
}

// complete never refuses: no check-in field is required.
func (w *wellness) complete(ctx context.Context) (reply string) {
	s := w.s
	entry := CheckInFrom(s.Record)

	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("complete_checkin panicked", "panic", r)
			reply = w.fallback(entry)
		}
	}()

	entry.Stamp(s.Now())
	saved, err := w.log.Append(ctx, entry)
	if err != nil {
		s.Logger.Error("save check-in failed", "error", err)
		return w.fallback(entry)
	}
	s.Logger.Info("check-in saved", "id", saved.ID, "path", w.log.Path())

	s.AppendHistory(saved)
	s.Broadcast(ctx, broadcast.TypeCheckInComplete)

	return fmt.Sprintf("Thanks for checking in! Here's today's recap: %s I'll remember this next time we talk.", saved.Summary)
}

func (w *wellness) fallback(c store.CheckIn) string {
	return fmt.Sprintf("I'm sorry, I had trouble saving today's check-in. Here's what I have: %s Let's try saving it again.", c.Summary)
}

func (w *wellness) last(context.Context) string {
	c, err := w.log.Latest()
	if errors.Is(err, store.ErrNoEntries) {
		return "This is our first check-in, so there's nothing from before yet."
	}
	if err != nil {
		w.s.Logger.Warn("read check-in log failed", "error", err)
		return "I couldn't look up your previous check-in right now."
	}
	return ContinuityNote(c)
}
