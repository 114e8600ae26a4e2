package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/chargate/internal/model/persona"
)

// PromptTemplate holds the hand-written prompt parts of a persona.
type PromptTemplate struct {
	SystemPrompt     string
	PersonalityHints []string
	ContextRules     []string
}

// PersonaPromptManager builds system prompts for personas.
type PersonaPromptManager struct {
	templates map[string]*PromptTemplate
}

// NewPersonaPromptManager creates a manager with the built-in templates.
func NewPersonaPromptManager() *PersonaPromptManager {
	manager := &PersonaPromptManager{
		templates: make(map[string]*PromptTemplate),
	}
	manager.loadDefaultTemplates()
	return manager
}

// GetPromptTemplate returns the template for a persona.
func (pm *PersonaPromptManager) GetPromptTemplate(personaID string) (*PromptTemplate, error) {
	template, exists := pm.templates[personaID]
	if !exists {
		return nil, fmt.Errorf("prompt template not found for persona: %s", personaID)
	}
	return template, nil
}

// BuildSystemPrompt renders the system prompt for p. Personas without a
// template get a prompt derived from their fields alone.
func (pm *PersonaPromptManager) BuildSystemPrompt(p *persona.Persona) string {
	template, err := pm.GetPromptTemplate(p.ID)
	if err != nil {
		return pm.buildBasicSystemPrompt(p)
	}

	return fmt.Sprintf(`%s

Character:
- Name: %s
- Title: %s
- Tone: %s

Personality:
- %s

Conversation rules:
- %s

Stay in character at all times. Your opening line was: %s`,
		template.SystemPrompt,
		p.Name,
		p.Title,
		p.Tone,
		strings.Join(template.PersonalityHints, "\n- "),
		strings.Join(template.ContextRules, "\n- "),
		p.OpeningLine,
	)
}

func (pm *PersonaPromptManager) buildBasicSystemPrompt(p *persona.Persona) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, %s.\n\n", p.Name, p.Title)
	fmt.Fprintf(&b, "Tone: %s\n", p.Tone)
	if p.PromptHint != "" {
		fmt.Fprintf(&b, "Hint: %s\n", p.PromptHint)
	}
	if p.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", p.Description)
	}
	if p.Background != "" {
		fmt.Fprintf(&b, "Background: %s\n", p.Background)
	}
	if len(p.Traits) > 0 {
		fmt.Fprintf(&b, "Traits: %s\n", strings.Join(p.Traits, ", "))
	}
	if len(p.Expertise) > 0 {
		fmt.Fprintf(&b, "Expertise: %s\n", strings.Join(p.Expertise, ", "))
	}
	fmt.Fprintf(&b, "\nAlways stay in character and answer in the style of %s.", p.Name)
	if p.OpeningLine != "" {
		fmt.Fprintf(&b, "\nYour opening line was: %s", p.OpeningLine)
	}
	return b.String()
}

func (pm *PersonaPromptManager) loadDefaultTemplates() {
	pm.templates["harry-potter"] = &PromptTemplate{
		SystemPrompt: "You are Harry Potter, the brave wizard and hero of Hogwarts. You fought Voldemort and saved the wizarding world, yet you still value friendship above everything.",
		PersonalityHints: []string{
			"Stay brave and warm, and show grit when things get hard",
			"Refer to spells, magical creatures and life at Hogwarts",
			"Mention Ron, Hermione or Dumbledore's advice now and then",
		},
		ContextRules: []string{
			"Look at the user's questions through the eyes of the wizarding world",
			"Stay modest and never boast about past victories",
			"Encourage the user with wizarding wisdom when they are troubled",
		},
	}

	pm.templates["socrates"] = &PromptTemplate{
		SystemPrompt: "You are Socrates, the philosopher of Athens, known for admitting that you know nothing and for guiding people with questions.",
		PersonalityHints: []string{
			"Guide with questions instead of handing out answers",
			"Admit your own ignorance and stay humble",
			"Explain deep ideas with everyday examples",
		},
		ContextRules: []string{
			"Use counter-questions to lead the user deeper",
			"Let the user reach conclusions on their own",
			"Question the user's claims gently",
		},
	}

	pm.templates["iron-man"] = &PromptTemplate{
		SystemPrompt: "You are Tony Stark, also known as Iron Man: genius inventor, billionaire and philanthropist. You are confident and witty, and you care about people more than you admit.",
		PersonalityHints: []string{
			"Show confident genius and quick humour",
			"Talk about technology, inventions and engineering",
			"Occasionally let your sense of responsibility show",
		},
		ContextRules: []string{
			"Think about problems like an engineer",
			"Keep the pace fast and the replies sharp",
			"Answer the user's needs with inventive technical ideas",
		},
	}
}
