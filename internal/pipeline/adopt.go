package pipeline

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jmylchreest/fixprice/internal/headers"
)

var adoptable = []headers.Key{headers.City, headers.Language}

// adopt learns city and language from a data response when they are unset.
// The body's top-level "city"/"language" fields are the source of truth; the
// x-city/x-language response headers are only a fallback. Values the store
// rejects are logged and dropped.
func (p *Pipeline) adopt(payload any, hdr http.Header, log *slog.Logger) {
	for _, k := range adoptable {
		if _, set := p.store.Get(k); set {
			continue
		}

		value, source := bodyValue(payload, string(k)), "body"
		if value == "" {
			value, source = strings.TrimSpace(hdr.Get(k.Wire())), "header"
		}
		if value == "" {
			continue
		}

		adopted, err := p.store.AdoptIfUnset(k, value)
		if err != nil {
			log.Warn("ignoring unusable value from response", "key", k, "value", value, "source", source, "error", err)
			continue
		}
		if adopted {
			log.Info("adopted session value from response", "key", k, "value", value, "source", source)
		}
	}
}

// bodyValue extracts a scalar for field from a top-level object. Objects
// carrying an "id" (as city records do) yield that id.
func bodyValue(payload any, field string) string {
	obj, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	return scalar(obj[field])
}

func scalar(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case map[string]any:
		return scalar(x["id"])
	}
	return ""
}
