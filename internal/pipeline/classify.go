package pipeline

// Classifier reports whether a decoded payload is an anti-bot rejection
// rather than data. The payload is whatever encoding/json produced (with
// UseNumber), or nil for an empty body.
type Classifier func(payload any) bool

// ErrorShapeKeys is the exact key set of the rejection object the API
// returns with HTTP 200.
var ErrorShapeKeys = []string{"name", "message", "code", "type", "status", "comment"}

// ErrorShape is the default Classifier: an object whose keys are exactly
// ErrorShapeKeys, no more and no fewer.
func ErrorShape(payload any) bool {
	obj, ok := payload.(map[string]any)
	if !ok || len(obj) != len(ErrorShapeKeys) {
		return false
	}
	for _, k := range ErrorShapeKeys {
		if _, ok := obj[k]; !ok {
			return false
		}
	}
	return true
}
