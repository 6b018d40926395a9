package getsafe

import "math"

func String(payload map[string]any, key string) string {
	if v, ok := payload[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func Object(payload map[string]any, key string) map[string]any {
	if v, ok := payload[key]; ok {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return nil
}

// Float reports a JSON number under key.
func Float(payload map[string]any, key string) (float64, bool) {
	if v, ok := payload[key]; ok {
		if f, ok := v.(float64); ok {
			return f, true
		}
	}
	return 0, false
}

// Int reports a JSON number under key that has no fractional part.
func Int(payload map[string]any, key string) (int, bool) {
	f, ok := Float(payload, key)
	if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}
