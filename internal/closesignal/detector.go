// Package closesignal recognizes the model's "end this conversation" directive.
//
// The directive normally arrives as a close_chat function call. Some
// providers instead emit the directive object as literal text; the textual
// helpers in this package recover it on a best-effort basis and are never the
// primary mechanism.
package closesignal

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/ashureev/careerbot/internal/datablock"
)

const (
	// FunctionName is the function advertised to providers for closing a chat.
	FunctionName = "close_chat"
	// ArgumentName carries the polite closing message.
	ArgumentName = "end_conversation"
)

var (
	markerPattern = regexp.MustCompile(`'close_chat'\s*:\s*True|"close_chat"\s*:\s*true`)

	// Python repr switches a value to double quotes when it holds an
	// apostrophe, so key and value quoting are matched independently.
	messagePattern = regexp.MustCompile(`['"]message['"]\s*:\s*(?:'([^']*)'|"((?:[^"\\]|\\.)*)")`)
)

// Directive is a recognized request to close the conversation.
type Directive struct {
	Message string
}

// Payload is the canonical close response returned to non-streaming clients.
type Payload struct {
	Function    string `json:"function"`
	Message     string `json:"message"`
	BlockTyping bool   `json:"block_typing"`
	CloseChat   bool   `json:"close_chat"`
}

// Payload renders the directive as the close response.
func (d Directive) Payload() Payload {
	return Payload{
		Function:    FunctionName,
		Message:     d.Message,
		BlockTyping: true,
		CloseChat:   true,
	}
}

func newDirective(message string) Directive {
	return Directive{Message: datablock.Strip(message)}
}

// FromFunctionCall recognizes the structured path. Arguments are the
// accumulated JSON argument string; malformed arguments are not a directive.
func FromFunctionCall(name, arguments string) (Directive, bool) {
	if name != FunctionName {
		return Directive{}, false
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return Directive{}, false
	}
	for _, key := range []string{ArgumentName, "message"} {
		if msg, ok := args[key].(string); ok {
			return newDirective(msg), true
		}
	}
	return Directive{}, false
}

// HasMarker reports whether text contains a close_chat flag written as
// literal text, in either JSON or Python-literal form.
func HasMarker(text string) bool {
	return markerPattern.MatchString(text)
}

// ParseLiteral recognizes a single fragment that is itself a stringified
// directive object. It requires the marker and a recoverable message.
func ParseLiteral(fragment string) (Directive, bool) {
	if !HasMarker(fragment) {
		return Directive{}, false
	}
	trimmed := strings.TrimSpace(fragment)
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
		if closeChat, _ := obj["close_chat"].(bool); closeChat {
			msg, _ := obj["message"].(string)
			return newDirective(msg), true
		}
	}
	return Recover(trimmed)
}

// Recover pulls the quoted message field out of raw text that carries the
// close marker. It reports false when no message can be found.
func Recover(text string) (Directive, bool) {
	if !HasMarker(text) {
		return Directive{}, false
	}
	m := messagePattern.FindStringSubmatchIndex(text)
	if m == nil {
		return Directive{}, false
	}
	if m[2] >= 0 {
		return newDirective(text[m[2]:m[3]]), true
	}
	raw := text[m[4]:m[5]]
	var msg string
	if err := json.Unmarshal([]byte(`"`+raw+`"`), &msg); err != nil {
		msg = raw
	}
	return newDirective(msg), true
}
