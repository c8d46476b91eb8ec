package types

import "strings"

// Model describes one entry of the static model registry.
type Model struct {
	// Stable identifier used by API clients.
	// example: gemini-2.5-pro
	ID string `json:"id" example:"gemini-2.5-pro"`
	// Human-friendly name shown by the console.
	// example: Gemini 2.5 Pro
	Name string `json:"name,omitempty" example:"Gemini 2.5 Pro"`
	// Whether the model may be requested through the API.
	Enabled bool `json:"enabled"`
}

// GenerationParams are the sampling knobs forwarded to the console.
// Nil pointers mean "leave the console's current value alone".
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Stop        []string
}

// NormalizeModelID strips the optional "models/" style prefix some clients
// send, e.g. "models/gemini-2.5-pro" -> "gemini-2.5-pro".
func NormalizeModelID(id string) string {
	id = strings.TrimSpace(id)
	if i := strings.LastIndexByte(id, '/'); i >= 0 {
		return id[i+1:]
	}
	return id
}

// RenderPrompt flattens a chat transcript into the single prompt text typed
// into the console's input box. System messages come first, then the rest in
// order, each prefixed with its role.
func RenderPrompt(messages []ChatMessage) string {
	var b strings.Builder
	for _, m := range messages {
		if m.Role != "system" {
			continue
		}
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}
	for _, m := range messages {
		switch m.Role {
		case "system":
			continue
		case "assistant":
			b.WriteString("Assistant: ")
		default:
			b.WriteString("User: ")
		}
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
