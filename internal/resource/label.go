package resource

import "encoding/json"

// Pluralize maps a singular query word to the API's collection naming:
// trailing y becomes ies, a trailing s is left alone, everything else gets
// an s. "system" is the one irregular collection name
func Pluralize(word string) string {
	if word == "system" {
		return word
	}
	if word == "" {
		return word
	}
	switch word[len(word)-1] {
	case 'y':
		return word[:len(word)-1] + "ies"
	case 's':
		return word
	}
	return word + "s"
}

// labelFields is the ordered priority of candidate display-label fields.
// Backend objects are polymorphic: nodes carry a name, ports a label,
// users a username, groups a groupname
var labelFields = []string{"name", "label", "username", "groupname"}

// DisplayLabel resolves the human-readable label of a decoded object,
// trying each candidate field in priority order
func DisplayLabel(obj map[string]any) (string, bool) {
	for _, field := range labelFields {
		if v, ok := obj[field]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// LabelField returns the first candidate field present on the object,
// even when its value is empty
func LabelField(obj map[string]any) (string, bool) {
	for _, field := range labelFields {
		if _, ok := obj[field]; ok {
			return field, true
		}
	}
	return "", false
}

// CollectionBody decodes a list response and returns the object slice under
// the collection key, skipping the meta envelope
func CollectionBody(raw json.RawMessage, objectType string) ([]map[string]any, bool) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, false
	}

	key := objectType
	if _, ok := body[key]; !ok {
		// Fall back to the first non-meta key the response carries
		key = ""
		for k := range body {
			if k != "meta" && k != "error" {
				key = k
				break
			}
		}
		if key == "" {
			return nil, false
		}
	}

	var items []map[string]any
	if err := json.Unmarshal(body[key], &items); err != nil {
		return nil, false
	}
	return items, true
}
