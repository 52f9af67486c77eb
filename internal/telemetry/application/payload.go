package application

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	tempPattern = regexp.MustCompile(`(?i)t(?:emp(?:erature)?)?[:=]\s*(-?[0-9]+(?:\.[0-9]+)?)`)
	humPattern  = regexp.MustCompile(`(?i)h(?:um(?:idity)?)?[:=]\s*(-?[0-9]+(?:\.[0-9]+)?)`)
)

var (
	temperatureKeys = []string{"temperature_c", "temperature", "temp", "t"}
	humidityKeys    = []string{"humidity_pct", "humidity", "hum", "h"}
)

// parseObject decodes a JSON object payload; any other shape yields nil.
func parseObject(text string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil
	}
	return obj
}

// parseFields extracts temperature and humidity: structured keys first
// (flat, then one level under "payload"), then a permissive text pattern
// per field. A field neither path can parse stays nil, never zero.
func parseFields(parsed map[string]any, text string) (temp, hum *float64) {
	if parsed != nil {
		temp = lookupNumeric(parsed, temperatureKeys)
		hum = lookupNumeric(parsed, humidityKeys)
		if inner, ok := parsed["payload"].(map[string]any); ok {
			if temp == nil {
				temp = lookupNumeric(inner, temperatureKeys)
			}
			if hum == nil {
				hum = lookupNumeric(inner, humidityKeys)
			}
		}
	}
	if temp == nil {
		temp = matchNumeric(tempPattern, text)
	}
	if hum == nil {
		hum = matchNumeric(humPattern, text)
	}
	return temp, hum
}

// parseTimestamp reads an epoch-millisecond device timestamp if present.
func parseTimestamp(parsed map[string]any) time.Time {
	if parsed == nil {
		return time.Time{}
	}
	for _, key := range []string{"ts", "timestamp", "time"} {
		v, ok := parsed[key]
		if !ok {
			continue
		}
		ms, ok := toFloat(v)
		if !ok || ms <= 0 {
			continue
		}
		return time.UnixMilli(int64(ms))
	}
	return time.Time{}
}

func lookupNumeric(obj map[string]any, keys []string) *float64 {
	for _, key := range keys {
		v, ok := obj[key]
		if !ok {
			continue
		}
		if f, ok := toFloat(v); ok {
			return &f
		}
	}
	return nil
}

func matchNumeric(pattern *regexp.Regexp, text string) *float64 {
	m := pattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &f
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}
