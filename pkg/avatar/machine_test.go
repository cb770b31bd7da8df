package avatar

import (
	"math"
	"sync"
	"testing"
	"time"
)

const floatTolerance = 1e-9

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < floatTolerance
}

// mockSink records all dispatched effects for testing
type mockSink struct {
	mu          sync.Mutex
	motions     []string
	expressions []string
	events      []string
}

func (s *mockSink) PlayMotion(file string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.motions = append(s.motions, file)
}

func (s *mockSink) PlayExpression(file string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expressions = append(s.expressions, file)
}

func (s *mockSink) EmitEvent(name string, payload map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, name)
}

func (s *mockSink) lastExpression() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.expressions) == 0 {
		return ""
	}
	return s.expressions[len(s.expressions)-1]
}

func (s *mockSink) expressionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expressions)
}

type mapAliases struct {
	motions     map[string]string
	expressions map[string]string
}

func (a mapAliases) ResolveMotion(alias string) (string, bool) {
	f, ok := a.motions[alias]
	return f, ok
}

func (a mapAliases) ResolveExpression(alias string) (string, bool) {
	f, ok := a.expressions[alias]
	return f, ok
}

func TestMachine_MusicFlags(t *testing.T) {
	m := NewMachine(&mockSink{})

	m.Dispatch(EventMusicStart, nil)
	if !m.Flags().Dancing {
		t.Error("expected dancing after MUSIC_START")
	}

	m.Dispatch(EventMusicStop, nil)
	if m.Flags().Dancing {
		t.Error("expected not dancing after MUSIC_STOP")
	}
}

func TestMachine_SpeakingIndependentOfDancing(t *testing.T) {
	m := NewMachine(&mockSink{})

	m.Dispatch(EventMusicStart, nil)
	m.Dispatch(EventTTSStart, nil)

	f := m.Flags()
	if !f.Dancing || !f.Speaking {
		t.Errorf("expected both flags set, got %+v", f)
	}

	m.Dispatch(EventTTSStop, nil)
	f = m.Flags()
	if !f.Dancing || f.Speaking {
		t.Errorf("expected dancing only, got %+v", f)
	}
}

func TestSample_Determinism(t *testing.T) {
	m := NewMachine(&mockSink{})
	m.Dispatch(EventMusicStart, nil)

	t.Run("zero crossing at t=0", func(t *testing.T) {
		p := m.Sample(0)
		if !floatEquals(p.AngleZ, 0) {
			t.Errorf("AngleZ: got %v, want 0", p.AngleZ)
		}
		if !floatEquals(p.MouthOpen, 0) {
			t.Errorf("MouthOpen: got %v, want 0", p.MouthOpen)
		}
		// cos(0)=1, so body sway starts at full amplitude
		if !floatEquals(p.BodyX, 6) {
			t.Errorf("BodyX: got %v, want 6", p.BodyX)
		}
	})

	t.Run("peak head tilt", func(t *testing.T) {
		tt := (math.Pi / 2) / 3.5 // sin(3.5t) == 1
		p := m.Sample(tt)
		if !floatEquals(p.AngleZ, 12) {
			t.Errorf("AngleZ: got %v, want 12", p.AngleZ)
		}
	})

	t.Run("same input same output", func(t *testing.T) {
		if m.Sample(1.234) != m.Sample(1.234) {
			t.Error("Sample is not deterministic")
		}
	})
}

func TestSample_SpeakingOverridesDanceMouth(t *testing.T) {
	f := Flags{Dancing: true, Speaking: true}

	// Pick a time where the dance mouth value is near its 0.8 peak but
	// the speech value is small; speech must still win.
	tt := (math.Pi / 2) / 4.0 // |sin(4t)| == 1
	p := poseFor(f, tt)

	want := math.Abs(math.Sin(tt*6.0)) * 0.9
	if !floatEquals(p.MouthOpen, want) {
		t.Errorf("MouthOpen: got %v, want speech value %v", p.MouthOpen, want)
	}
}

func TestSample_AngleContributionsAdd(t *testing.T) {
	tt := 0.7
	dance := poseFor(Flags{Dancing: true}, tt)
	speak := poseFor(Flags{Speaking: true}, tt)
	both := poseFor(Flags{Dancing: true, Speaking: true}, tt)

	if !floatEquals(both.AngleZ, dance.AngleZ+speak.AngleZ) {
		t.Errorf("AngleZ: got %v, want additive %v", both.AngleZ, dance.AngleZ+speak.AngleZ)
	}
}

func TestSample_HappyDanceMouthFloor(t *testing.T) {
	// Happy dance mouth never drops below 0.5
	for _, tt := range []float64{0, 0.1, 0.33, 1.7, 4.2} {
		p := poseFor(Flags{HappyDance: true}, tt)
		if p.MouthOpen < 0.5 {
			t.Errorf("t=%v: MouthOpen %v below floor", tt, p.MouthOpen)
		}
	}
}

func TestMachine_HappyDanceAutoExpiry(t *testing.T) {
	m := NewMachine(&mockSink{})

	m.Dispatch(EventHappyDance, map[string]any{"duration": float64(100)})
	if !m.Flags().HappyDance {
		t.Fatal("expected happy dance immediately")
	}

	time.Sleep(180 * time.Millisecond)
	if m.Flags().HappyDance {
		t.Error("expected happy dance to expire after ~100ms")
	}
}

func TestMachine_HappyDanceLatestTimerWins(t *testing.T) {
	m := NewMachine(&mockSink{})

	m.Dispatch(EventHappyDance, map[string]any{"duration": float64(80)})
	time.Sleep(40 * time.Millisecond)
	m.Dispatch(EventHappyDance, map[string]any{"duration": float64(200)})

	// First timer's deadline passes; the superseding dispatch keeps the
	// flag alive.
	time.Sleep(80 * time.Millisecond)
	if !m.Flags().HappyDance {
		t.Error("superseded timer cleared the flag early")
	}

	time.Sleep(180 * time.Millisecond)
	if m.Flags().HappyDance {
		t.Error("latest timer never fired")
	}
}

func TestMachine_EmotionResetToNeutral(t *testing.T) {
	sink := &mockSink{}
	m := NewMachine(sink, WithNeutralExpression("Normal.exp3.json"))

	m.Dispatch(EventEmotion, map[string]any{"file": "EyesCry.exp3.json", "duration": float64(50)})
	if sink.lastExpression() != "EyesCry.exp3.json" {
		t.Fatalf("expected emotion played, got %q", sink.lastExpression())
	}

	time.Sleep(120 * time.Millisecond)
	if sink.lastExpression() != "Normal.exp3.json" {
		t.Errorf("expected neutral reset, got %q", sink.lastExpression())
	}
}

func TestMachine_EmotionResetSuperseded(t *testing.T) {
	sink := &mockSink{}
	m := NewMachine(sink, WithNeutralExpression("Normal.exp3.json"))

	m.Dispatch(EventEmotion, map[string]any{"file": "A.exp3.json", "duration": float64(60)})
	time.Sleep(30 * time.Millisecond)
	m.Dispatch(EventEmotion, map[string]any{"file": "B.exp3.json", "duration": float64(200)})

	// The first reset deadline passes while B is still active.
	time.Sleep(60 * time.Millisecond)
	if sink.lastExpression() != "B.exp3.json" {
		t.Errorf("stale reset fired, got %q", sink.lastExpression())
	}
}

func TestMachine_MotionAliasResolution(t *testing.T) {
	sink := &mockSink{}
	aliases := mapAliases{motions: map[string]string{"dance": "Dance01.motion3.json"}}
	m := NewMachine(sink, WithAliases(aliases))

	m.Dispatch(EventMotion, map[string]any{"alias": "dance"})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.motions) != 1 || sink.motions[0] != "Dance01.motion3.json" {
		t.Errorf("expected resolved motion, got %v", sink.motions)
	}
}

func TestMachine_UnknownAliasFallsBackToFile(t *testing.T) {
	sink := &mockSink{}
	m := NewMachine(sink, WithAliases(mapAliases{}))

	m.Dispatch(EventMotion, map[string]any{"alias": "nope", "file": "Tap.motion3.json"})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.motions) != 1 || sink.motions[0] != "Tap.motion3.json" {
		t.Errorf("expected file fallback, got %v", sink.motions)
	}
}

func TestMachine_UnknownEventIgnored(t *testing.T) {
	m := NewMachine(&mockSink{})
	m.Dispatch("TELEPORT", nil)

	f := m.Flags()
	if f.Dancing || f.Speaking || f.HappyDance {
		t.Errorf("unknown event changed flags: %+v", f)
	}
}

func TestMachine_SentimentMapping(t *testing.T) {
	tests := []struct {
		sentiment  string
		motion     string
		expression string
	}{
		{"happy", "Joy.motion3.json", "Smile.exp3.json"},
		{"serious", "SignShock.motion3.json", "Sorrow.exp3.json"},
		{"alert", "Shock.motion3.json", "SignShock.exp3.json"},
		{"whatever", "TapBody.motion3.json", ""},
	}

	for _, tc := range tests {
		t.Run(tc.sentiment, func(t *testing.T) {
			sink := &mockSink{}
			m := NewMachine(sink)
			m.ApplySentiment(tc.sentiment)

			sink.mu.Lock()
			defer sink.mu.Unlock()
			if len(sink.motions) != 1 || sink.motions[0] != tc.motion {
				t.Errorf("motions: got %v, want [%s]", sink.motions, tc.motion)
			}
			if tc.expression == "" {
				if len(sink.expressions) != 0 {
					t.Errorf("expected no expression, got %v", sink.expressions)
				}
			} else if len(sink.expressions) != 1 || sink.expressions[0] != tc.expression {
				t.Errorf("expressions: got %v, want [%s]", sink.expressions, tc.expression)
			}
		})
	}
}
