package mode

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultAssistantID is the hosted assistant the built-in modes talk to.
const DefaultAssistantID = "c036cff9-6a41-4a7d-bcf0-599d186e1b03"

const summaryInstruction = `When the user says goodbye or asks to end the call, close the conversation and then output, on its own line, a JSON object of the form {"summary": ["point", ...], "sentiment": "Positive" | "Neutral" | "Negative"} with three to five short summary points and the overall sentiment of the user.`

// Config selects which remote assistant, opening line and system prompt a
// call uses. The system prompt is passed through to the call backend as is.
type Config struct {
	ID           string `yaml:"id" json:"id"`
	Name         string `yaml:"name" json:"name"`
	AssistantID  string `yaml:"assistant_id" json:"-"`
	FirstMessage string `yaml:"first_message" json:"first_message"`
	SystemPrompt string `yaml:"system_prompt" json:"-"`
}

// Table is an immutable, ordered set of call modes.
type Table struct {
	order []Config
	byID  map[string]Config
}

func NewTable(modes []Config) (*Table, error) {
	if len(modes) == 0 {
		return nil, errors.New("at least one call mode is required")
	}

	t := &Table{
		order: make([]Config, 0, len(modes)),
		byID:  make(map[string]Config, len(modes)),
	}
	for _, m := range modes {
		key := normalizeID(m.ID)
		if key == "" {
			return nil, fmt.Errorf("call mode %q: id is required", m.Name)
		}
		if _, dup := t.byID[key]; dup {
			return nil, fmt.Errorf("duplicate call mode id %q", m.ID)
		}
		m.ID = key
		if strings.TrimSpace(m.Name) == "" {
			m.Name = m.ID
		}
		t.byID[key] = m
		t.order = append(t.order, m)
	}
	return t, nil
}

// Lookup finds a mode by identifier, ignoring case and surrounding space.
func (t *Table) Lookup(id string) (Config, bool) {
	m, ok := t.byID[normalizeID(id)]
	return m, ok
}

// List returns the modes in declaration order.
func (t *Table) List() []Config {
	return append([]Config(nil), t.order...)
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Defaults returns the built-in modes.
func Defaults() []Config {
	return []Config{
		{
			ID:           "learning",
			Name:         "Learning Coach",
			AssistantID:  DefaultAssistantID,
			FirstMessage: "Hi! I'm your learning coach. What topic would you like to explore today?",
			SystemPrompt: "You are a patient learning coach. Explain concepts step by step, check understanding with short questions, and keep answers under three sentences. " + summaryInstruction,
		},
		{
			ID:           "practice",
			Name:         "Conversation Practice",
			AssistantID:  DefaultAssistantID,
			FirstMessage: "Hello! Let's practice a conversation. Tell me a little about your day.",
			SystemPrompt: "You are a friendly conversation partner helping the user practice spoken English. Keep replies short, ask follow-up questions, and gently correct mistakes. " + summaryInstruction,
		},
		{
			ID:           "support",
			Name:         "Customer Support",
			AssistantID:  DefaultAssistantID,
			FirstMessage: "Thanks for calling support. How can I help you today?",
			SystemPrompt: "You are a calm customer support agent. Identify the problem, confirm details, and propose concrete next steps. " + summaryInstruction,
		},
	}
}
