package reaction

import "testing"

func TestFormat(t *testing.T) {
	data := map[string]any{
		"city":       "Tokyo",
		"temp":       float64(23.5),
		"count":      float64(3),
		"change_pct": float64(-2.4),
		"up":         true,
	}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"plain text", "hello there", "hello there"},
		{"single key", "Weather in {city}", "Weather in Tokyo"},
		{"float value", "It is {temp} degrees", "It is 23.5 degrees"},
		{"integer-valued float", "{count} new mails", "3 new mails"},
		{"bool value", "rising: {up}", "rising: true"},
		{"multiple keys", "{city}: {temp}", "Tokyo: 23.5"},
		{"change_pct_abs", "moved {change_pct_abs} percent", "moved 2.4 percent"},
		{"unknown key left verbatim", "hello {nobody}", "hello {nobody}"},
		{"unclosed brace", "broken {temp", "broken {temp"},
		{"empty template", "", ""},
		{"adjacent keys", "{city}{count}", "Tokyo3"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Format(tc.template, data); got != tc.want {
				t.Errorf("Format(%q) = %q, want %q", tc.template, got, tc.want)
			}
		})
	}
}

func TestFormat_ChangePctAbsWithoutSource(t *testing.T) {
	got := Format("moved {change_pct_abs}", map[string]any{"city": "Tokyo"})
	if got != "moved {change_pct_abs}" {
		t.Errorf("got %q, want token left verbatim", got)
	}
}
