package setup

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/ashureev/careerbot/internal/domain"
	"github.com/ashureev/careerbot/internal/identity"
)

// ErrInvalidSetup is returned when a setup payload fails validation.
var ErrInvalidSetup = errors.New("invalid setup")

var validate = validator.New()

// Accepted spellings that map onto a differently named field.
var aliases = map[string]string{
	"pageid": "channel_id",
	"fields": "field",
}

// Decode converts a free-form payload into a validated Setup.
// Keys may be snake_case, camelCase or kebab-case. page_id is accepted for
// channel_id, and a single string is accepted where a list is expected.
func Decode(input map[string]any) (domain.Setup, error) {
	var s domain.Setup

	normalized := make(map[string]any, len(input))
	for k, v := range input {
		normalized[k] = v
	}
	for k, v := range input {
		target, ok := aliases[normalizeKey(k)]
		if !ok || hasKey(input, target) {
			continue
		}
		normalized[target] = v
	}

	cfg := &mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           &s,
		WeaklyTypedInput: true,
		MatchName: func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		},
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return domain.Setup{}, err
	}
	if err := decoder.Decode(normalized); err != nil {
		return domain.Setup{}, fmt.Errorf("%w: %v", ErrInvalidSetup, err)
	}

	s = Normalize(s)
	if err := Validate(s); err != nil {
		return domain.Setup{}, err
	}
	return s, nil
}

// Normalize trims identifiers and drops blank field names.
func Normalize(s domain.Setup) domain.Setup {
	s.ChannelID = strings.TrimSpace(s.ChannelID)
	s.UserID = strings.TrimSpace(s.UserID)

	fields := s.Fields[:0:0]
	for _, f := range s.Fields {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	s.Fields = fields
	return s
}

// Validate checks the struct tags of s and that its IDs are usable as a
// chat identity.
func Validate(s domain.Setup) error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			missing := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				missing = append(missing, fe.Namespace())
			}
			return fmt.Errorf("%w: %s", ErrInvalidSetup, strings.Join(missing, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidSetup, err)
	}
	if err := identity.New(s.UserID, s.ChannelID).Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSetup, err)
	}
	return nil
}

func hasKey(input map[string]any, name string) bool {
	want := normalizeKey(name)
	for k := range input {
		if normalizeKey(k) == want {
			return true
		}
	}
	return false
}

func normalizeKey(value string) string {
	value = strings.ToLower(value)
	value = strings.ReplaceAll(value, "_", "")
	value = strings.ReplaceAll(value, "-", "")
	return value
}
