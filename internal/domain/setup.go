package domain

// Service is one offering listed in a channel setup.
type Service struct {
	Name       string `json:"name" mapstructure:"name" yaml:"name"`
	Price      string `json:"price" mapstructure:"price" yaml:"price"`
	Negotiable string `json:"negotiable" mapstructure:"negotiable" yaml:"negotiable"`
}

// Setup is the per-channel configuration used to build the system turn and
// to know which fields the assistant is asked to collect.
type Setup struct {
	ChannelID        string    `json:"channel_id" mapstructure:"channel_id" yaml:"channel_id" validate:"required"`
	UserID           string    `json:"user_id" mapstructure:"user_id" yaml:"user_id" validate:"required"`
	Platform         string    `json:"platform,omitempty" mapstructure:"platform" yaml:"platform"`
	BusinessName     string    `json:"business_name,omitempty" mapstructure:"business_name" yaml:"business_name"`
	BusinessAddress  string    `json:"business_address,omitempty" mapstructure:"business_address" yaml:"business_address"`
	Offerings        string    `json:"offerings,omitempty" mapstructure:"offerings" yaml:"offerings"`
	BusinessHours    string    `json:"business_hours,omitempty" mapstructure:"business_hours" yaml:"business_hours"`
	GoalType         string    `json:"goal_type,omitempty" mapstructure:"goal_type" yaml:"goal_type"`
	Fields           []string  `json:"field" mapstructure:"field" yaml:"field" validate:"dive,required"`
	ToneAndVibe      []string  `json:"tone_and_vibe,omitempty" mapstructure:"tone_and_vibe" yaml:"tone_and_vibe"`
	AdditionalPrompt string    `json:"additional_prompt,omitempty" mapstructure:"additional_prompt" yaml:"additional_prompt"`
	FollowUps        string    `json:"follow_ups,omitempty" mapstructure:"follow_ups" yaml:"follow_ups"`
	AgentName        string    `json:"agent_name,omitempty" mapstructure:"agent_name" yaml:"agent_name"`
	Services         []Service `json:"services,omitempty" mapstructure:"services" yaml:"services" validate:"dive"`
}
