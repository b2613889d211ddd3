package voice

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	appLog "bibleclock/internal/log"
	"bibleclock/internal/model"
)

// ErrUnknownCommand is returned when an utterance matches no known pattern.
var ErrUnknownCommand = errors.New("voice: unknown command")

// Action is what a parsed utterance asks the appliance to do.
type Action int

const (
	ActionSpeakVerse Action = iota
	ActionRefresh
	ActionSetMode
	ActionSetTranslation
	ActionHelp
)

var actionNames = map[Action]string{
	ActionSpeakVerse:     "speak_verse",
	ActionRefresh:        "refresh",
	ActionSetMode:        "set_mode",
	ActionSetTranslation: "set_translation",
	ActionHelp:           "help",
}

func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return "unknown"
}

// Command is one parsed utterance.
type Command struct {
	Action      Action
	Mode        model.Mode        // set when Action == ActionSetMode
	Translation model.Translation // set when Action == ActionSetTranslation
}

var (
	speakRe   = regexp.MustCompile(`\b(speak|read|say)\b.*\bverse\b|\bspeak\b|\bwhat verse\b`)
	refreshRe = regexp.MustCompile(`\b(refresh|update)\b|\bnext verse\b|\bnew verse\b`)
	modeRe    = regexp.MustCompile(`\b(time|date|random)\b.*\bmode\b|\bmode\b.*\b(time|date|random)\b`)
	helpRe    = regexp.MustCompile(`\bhelp\b|\bwhat can you do\b`)
)

// translationPhrases maps spoken translation names to codes. Longer phrases
// are matched first so "king james" wins over a stray "james".
var translationPhrases = []struct {
	phrase string
	code   model.Translation
}{
	{"king james", model.TranslationKJV},
	{"world english", model.TranslationWEB},
	{"american standard", model.TranslationASV},
	{"basic english", model.TranslationBBE},
	{"youngs literal", model.TranslationYLT},
	{"young's literal", model.TranslationYLT},
	{"kjv", model.TranslationKJV},
	{"web", model.TranslationWEB},
	{"asv", model.TranslationASV},
	{"bbe", model.TranslationBBE},
	{"ylt", model.TranslationYLT},
}

// Parse turns a transcribed utterance into a Command. The wake word is
// assumed to be stripped already; matching is case-insensitive and tolerant
// of filler words. Rules apply in order, so "switch to date mode" is a mode
// change, not a translation request.
func Parse(utterance string) (Command, error) {
	text := normalize(utterance)
	if text == "" {
		return Command{}, ErrUnknownCommand
	}

	if helpRe.MatchString(text) {
		return Command{Action: ActionHelp}, nil
	}
	if m := modeRe.FindStringSubmatch(text); m != nil {
		word := m[1]
		if word == "" {
			word = m[2]
		}
		mode, err := model.ParseMode(word)
		if err != nil {
			return Command{}, ErrUnknownCommand
		}
		return Command{Action: ActionSetMode, Mode: mode}, nil
	}
	if tr, ok := requestedTranslation(text); ok {
		return Command{Action: ActionSetTranslation, Translation: tr}, nil
	}
	if refreshRe.MatchString(text) {
		return Command{Action: ActionRefresh}, nil
	}
	if speakRe.MatchString(text) {
		return Command{Action: ActionSpeakVerse}, nil
	}
	return Command{}, ErrUnknownCommand
}

// requestedTranslation scans for a translation name when the utterance asks
// to change one ("use ...", "switch to ...", "... translation").
func requestedTranslation(text string) (model.Translation, bool) {
	if !strings.Contains(text, "translation") &&
		!strings.Contains(text, "use ") &&
		!strings.Contains(text, "switch") {
		return "", false
	}
	for _, tp := range translationPhrases {
		if strings.Contains(text, tp.phrase) {
			return tp.code, true
		}
	}
	return "", false
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ', r == '\'':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Controls is the slice of appliance state a voice command may touch.
type Controls interface {
	SetMode(model.Mode)
	SetTranslation(model.Translation)
	Current() (model.DisplayContent, bool)
}

// Refresher triggers an out-of-band display refresh.
type Refresher interface {
	ForceRefresh()
}

// Handler executes parsed commands against the appliance.
type Handler struct {
	controls  Controls
	refresher Refresher
}

// NewHandler wires command execution to the appliance controls.
func NewHandler(controls Controls, refresher Refresher) *Handler {
	return &Handler{controls: controls, refresher: refresher}
}

// helpText lists the supported phrases for the help command and API docs.
const helpText = "Try: speak verse, refresh display, time mode, date mode, random mode, or use King James."

// Handle parses and executes one utterance, returning the spoken reply.
func (h *Handler) Handle(utterance string) (string, error) {
	cmd, err := Parse(utterance)
	if err != nil {
		return "", err
	}
	appLog.Info("voice command", "action", cmd.Action, "utterance", utterance)
	return h.Execute(cmd)
}

// Execute runs a parsed command and returns the spoken reply.
func (h *Handler) Execute(cmd Command) (string, error) {
	switch cmd.Action {
	case ActionSpeakVerse:
		content, ok := h.controls.Current()
		if !ok {
			return "No verse is on display yet.", nil
		}
		if title := content.Title(); title != "" {
			return fmt.Sprintf("%s. %s", title, content.Text), nil
		}
		return content.Text, nil

	case ActionRefresh:
		h.refresher.ForceRefresh()
		return "Refreshing the display.", nil

	case ActionSetMode:
		h.controls.SetMode(cmd.Mode)
		return fmt.Sprintf("Switched to %s mode.", cmd.Mode), nil

	case ActionSetTranslation:
		h.controls.SetTranslation(cmd.Translation)
		return fmt.Sprintf("Now using the %s translation.", strings.ToUpper(string(cmd.Translation))), nil

	case ActionHelp:
		return helpText, nil
	}
	return "", ErrUnknownCommand
}
