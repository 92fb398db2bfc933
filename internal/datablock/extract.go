package datablock

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	blockPattern = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(Start) + `(.*?)` + regexp.QuoteMeta(End))

	leadingCommas    = regexp.MustCompile(`^\s*,+`)
	trailingCommas   = regexp.MustCompile(`,+\s*$`)
	commaBeforeBrace = regexp.MustCompile(`,(\s*})`)
	repeatedOpen     = regexp.MustCompile(`^\{+`)
	repeatedClose    = regexp.MustCompile(`\}+$`)
	lineBreaks       = regexp.MustCompile(`\s*\n\s*`)
)

// Contains reports whether text holds at least one complete block.
func Contains(text string) bool {
	return blockPattern.MatchString(text)
}

// Strip removes every complete block, markers included, and trims the result.
func Strip(text string) string {
	if !strings.Contains(text, Start) {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(blockPattern.ReplaceAllString(text, ""))
}

// Extract parses the first block in a complete message into field/value
// pairs. It never fails: a missing or unparsable block yields an empty map.
// Fields whose value renders empty are dropped.
func Extract(text string) map[string]string {
	out := map[string]string{}

	m := blockPattern.FindStringSubmatch(text)
	if m == nil {
		return out
	}

	dec := json.NewDecoder(strings.NewReader(sanitize(m[1])))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return out
	}

	for k, v := range raw {
		s, ok := render(v)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		out[k] = s
	}
	return out
}

// sanitize repairs the malformations models commonly produce inside a block.
func sanitize(content string) string {
	content = strings.TrimSpace(content)
	content = leadingCommas.ReplaceAllString(content, "")
	content = trailingCommas.ReplaceAllString(content, "")
	content = commaBeforeBrace.ReplaceAllString(content, "$1")

	if !strings.HasPrefix(content, "{") {
		content = "{" + content
	}
	if !strings.HasSuffix(content, "}") {
		content += "}"
	}
	content = repeatedOpen.ReplaceAllString(content, "{")
	content = repeatedClose.ReplaceAllString(content, "}")

	return lineBreaks.ReplaceAllString(content, "")
}

func render(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case bool:
		if val {
			return "true", true
		}
		return "false", true
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}
