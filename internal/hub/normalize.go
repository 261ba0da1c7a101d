package hub

import (
	"fmt"
	"strings"
)

// queryKeys are the map keys that may carry query text, in priority order.
var queryKeys = []string{"query", "text", "prompt", "content"}

// NormalizeQuery extracts the query text from the shapes callers commonly
// pass: a plain string, a map with a query/text/prompt/content key, a map
// holding a messages list (the last message's content is used), a
// fmt.Stringer, or anything else formatted with %v.
func NormalizeQuery(q any) string {
	switch v := q.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case map[string]any:
		for _, k := range queryKeys {
			if s, ok := v[k].(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
		if msgs, ok := v["messages"].([]any); ok && len(msgs) > 0 {
			return messageContent(msgs[len(msgs)-1])
		}
		if msgs, ok := v["messages"].([]map[string]any); ok && len(msgs) > 0 {
			return messageContent(msgs[len(msgs)-1])
		}
		return fmt.Sprint(v)
	case map[string]string:
		for _, k := range queryKeys {
			if s := v[k]; strings.TrimSpace(s) != "" {
				return s
			}
		}
		return fmt.Sprint(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func messageContent(m any) string {
	switch msg := m.(type) {
	case map[string]any:
		if s, ok := msg["content"].(string); ok {
			return s
		}
		return fmt.Sprint(msg["content"])
	case string:
		return msg
	default:
		return NormalizeQuery(msg)
	}
}
