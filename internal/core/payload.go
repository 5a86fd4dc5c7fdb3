package core

import (
	"encoding/json"
	"fmt"
)

// Element is one node of a structured chat export. An element carrying a
// source URL is an image reference, one carrying a language tag is a code
// reference, anything else is narrative text.
type Element struct {
	Type     string `json:"type,omitempty"`
	Content  string `json:"content,omitempty"`
	Src      string `json:"src,omitempty"`
	Filename string `json:"filename,omitempty"`
	Language string `json:"language,omitempty"`
}

func (e Element) IsImage() bool { return e.Src != "" }
func (e Element) IsCode() bool  { return e.Language != "" }

// Payload is the submitted chat content: either the legacy raw-text export or
// a structured element tree. Structured is the tag dispatched on.
type Payload struct {
	Raw        string
	Elements   []Element
	Structured bool
}

func RawPayload(text string) Payload {
	return Payload{Raw: text}
}

func StructuredPayload(elements []Element) Payload {
	return Payload{Elements: elements, Structured: true}
}

// UnmarshalJSON accepts both payload generations: an element array (the
// canonical structured form) or a plain string (the legacy raw form).
func (p *Payload) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = Payload{}
		return nil
	}
	var elements []Element
	if err := json.Unmarshal(data, &elements); err == nil {
		*p = StructuredPayload(elements)
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("content must be a string or an array of elements")
	}
	*p = RawPayload(raw)
	return nil
}

// Canonical returns the string the chat fingerprint is computed over: the
// JSON encoding of a structured payload, or the raw text itself.
func (p Payload) Canonical() (string, error) {
	if p.Structured {
		data, err := json.Marshal(p.Elements)
		if err != nil {
			return "", fmt.Errorf("failed to encode payload: %w", err)
		}
		return string(data), nil
	}
	return p.Raw, nil
}
