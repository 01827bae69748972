package advisor

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/fin-advisor/backend/internal/model/profile"
)

const baseInstruction = `You are a financial advisory assistant embedded in a personal finance website for Indian users.
Help people reason about saving, investing, insurance, tax and retirement in plain language.
You are not a licensed advisor and must not present your answers as personalised financial advice.`

// BuildSystemPrompt renders the fixed system instruction for a profile.
func BuildSystemPrompt(p profile.Profile) string {
	if p.ID == "" {
		return baseInstruction
	}

	var b strings.Builder
	b.WriteString(baseInstruction)
	fmt.Fprintf(&b, "\n\nYou are %s, %s. Speak in a %s tone.", p.Name, strings.ToLower(p.Title), p.Tone)
	if p.Description != "" {
		b.WriteString("\n")
		b.WriteString(p.Description)
	}
	if len(p.Expertise) > 0 {
		b.WriteString("\n\nAreas you cover:\n- ")
		b.WriteString(strings.Join(p.Expertise, "\n- "))
	}
	if len(p.Rules) > 0 {
		b.WriteString("\n\nRules:\n- ")
		b.WriteString(strings.Join(p.Rules, "\n- "))
	}
	if p.OpeningLine != "" {
		b.WriteString("\n\nGreeting used on the site: ")
		b.WriteString(p.OpeningLine)
	}
	return b.String()
}
