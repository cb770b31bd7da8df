package reaction

import (
	"math"
	"strconv"
	"strings"
)

// Format renders a speech template against a widget data record.
// {key} placeholders are replaced by the field's value; unknown keys are
// left verbatim so a typo is visible in the spoken output instead of
// silently vanishing. The derived token {change_pct_abs} expands to the
// absolute value of change_pct.
func Format(template string, data map[string]any) string {
	if template == "" {
		return ""
	}

	var sb strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			sb.WriteString(rest)
			return sb.String()
		}
		close := strings.IndexByte(rest[open:], '}')
		if close < 0 {
			sb.WriteString(rest)
			return sb.String()
		}
		close += open

		sb.WriteString(rest[:open])
		key := rest[open+1 : close]
		if s, ok := lookupToken(key, data); ok {
			sb.WriteString(s)
		} else {
			sb.WriteString(rest[open : close+1])
		}
		rest = rest[close+1:]
	}
}

func lookupToken(key string, data map[string]any) (string, bool) {
	if key == "change_pct_abs" {
		raw, ok := data["change_pct"]
		if !ok {
			return "", false
		}
		v, err := toValue(raw)
		if err != nil || v.kind != numVal {
			return "", false
		}
		return formatNumber(math.Abs(v.num)), true
	}

	raw, ok := data[key]
	if !ok {
		return "", false
	}
	return formatField(raw), true
}

func formatField(raw any) string {
	switch t := raw.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	}
	if v, err := toValue(raw); err == nil && v.kind == numVal {
		return formatNumber(v.num)
	}
	return ""
}

// formatNumber prints integers without a decimal point and floats with
// the shortest exact representation.
func formatNumber(n float64) string {
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}
