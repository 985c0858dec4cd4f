package types

// Event is the wire shape of one emitted swap event: a type tag plus flat
// string attributes. The controller reads instantiation results out of these
// attributes, so keys and value encodings are part of the protocol surface.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Attribute returns the named attribute and whether it was present.
func (e *Event) Attribute(key string) (string, bool) {
	if e == nil || e.Attributes == nil {
		return "", false
	}
	value, ok := e.Attributes[key]
	return value, ok
}
