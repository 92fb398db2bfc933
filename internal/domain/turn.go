// Package domain contains core domain types for the careerbot backend.
package domain

// Role identifies the author of a transcript turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the prompt history resent to the provider on every call.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
