package service

import (
	"strings"
	"unicode/utf8"

	"forum-feed/internal/utils"
)

// Payload is the transport-neutral field set of an operation. REST bodies,
// path/query parameters and websocket payloads all decode into it.
type Payload map[string]interface{}

// RequireFields fails with a MissingFieldsError naming every absent field
func RequireFields(payload Payload, names ...string) error {
	var missing []string
	for _, name := range names {
		if v, ok := payload[name]; !ok || v == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}
	return nil
}

// CheckLength fails with a TooLongError when body has more than maxLen characters
func CheckLength(body string, maxLen int) error {
	if utf8.RuneCountInString(body) > maxLen {
		return &TooLongError{Max: maxLen}
	}
	return nil
}

func checkContent(body string, maxLen int) error {
	if strings.TrimSpace(body) == "" {
		return invalidf("content cannot be empty")
	}
	return CheckLength(body, maxLen)
}

func (p Payload) Int(name string) (int, error) {
	id, ok := utils.ParseID(p[name])
	if !ok {
		return 0, invalidf("field %s must be an integer", name)
	}
	return id, nil
}

// OptionalInt returns nil when the field is absent or empty
func (p Payload) OptionalInt(name string) (*int, error) {
	v, ok := p[name]
	if !ok || v == nil || v == "" {
		return nil, nil
	}
	id, err := p.Int(name)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (p Payload) IntOr(name string, def int) (int, error) {
	v, err := p.OptionalInt(name)
	if err != nil || v == nil {
		return def, err
	}
	return *v, nil
}

func (p Payload) String(name string) (string, error) {
	s, ok := utils.ParseString(p[name])
	if !ok {
		return "", invalidf("field %s must be a string", name)
	}
	return s, nil
}

// StringOr returns def when the field is absent
func (p Payload) StringOr(name, def string) (string, error) {
	if v, ok := p[name]; !ok || v == nil {
		return def, nil
	}
	return p.String(name)
}
