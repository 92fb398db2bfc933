package setup

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/ashureev/careerbot/internal/closesignal"
	"github.com/ashureev/careerbot/internal/datablock"
	"github.com/ashureev/careerbot/internal/domain"
)

// DefaultFields are collected when a setup lists none.
var DefaultFields = []string{"name", "email"}

const defaultAgentName = "Coach Jade"

var promptTemplate = template.Must(template.New("system").Parse(`You are {{.AgentName}}, a warm and professional conversational assistant{{if .BusinessName}} for {{.BusinessName}}{{end}}.
Use simple English. Ask one question at a time and wait for the answer before moving on.
{{- if .Tone}}
Tone: {{.Tone}}.
{{- end}}
{{- if .Offerings}}
What we offer: {{.Offerings}}
{{- end}}
{{- range .Services}}
- {{.Name}}{{if .Price}} ({{.Price}}{{if .Negotiable}}, negotiable: {{.Negotiable}}{{end}}){{end}}
{{- end}}
{{- if .BusinessHours}}
Business hours: {{.BusinessHours}}
{{- end}}
{{- if .BusinessAddress}}
Address: {{.BusinessAddress}}
{{- end}}
{{- if .GoalType}}
Conversation goal: {{.GoalType}}
{{- end}}
{{- if .FollowUps}}
Follow-ups: {{.FollowUps}}
{{- end}}
{{- if .AdditionalPrompt}}

{{.AdditionalPrompt}}
{{- end}}

Information to collect, in order: {{.Steps}}

DATA PROTOCOL
After every reply, append a JSON object with everything collected so far,
wrapped exactly like this:
{{.Start}}
{
{{.FieldsJSON}}
}
{{.End}}
Only include fields the user has actually answered. Keep earlier values.
Never mention or explain this block to the user.
When all of these fields are filled, confirm once with the user. When they
confirm, call the function {{.CloseFunction}} with a short goodbye message.
`))

type promptData struct {
	domain.Setup
	Tone          string
	Steps         string
	FieldsJSON    string
	Start         string
	End           string
	CloseFunction string
}

// BuildContext renders the system prompt for a conversation on channel s.
func BuildContext(s domain.Setup) (string, error) {
	fields := s.Fields
	if len(fields) == 0 {
		fields = DefaultFields
	}
	if s.AgentName == "" {
		s.AgentName = defaultAgentName
	}

	lines := make([]string, len(fields))
	for i, f := range fields {
		lines[i] = fmt.Sprintf("    %q: \"...\"", f)
	}

	data := promptData{
		Setup:         s,
		Tone:          strings.Join(s.ToneAndVibe, ", "),
		Steps:         strings.Join(fields, " → "),
		FieldsJSON:    strings.Join(lines, ",\n"),
		Start:         datablock.Start,
		End:           datablock.End,
		CloseFunction: closesignal.FunctionName,
	}

	var b strings.Builder
	if err := promptTemplate.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}
