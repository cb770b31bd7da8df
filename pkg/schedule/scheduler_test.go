package schedule

import (
	"strings"
	"sync"
	"testing"
	"time"
)

// mockActions records routine dispatches.
type mockActions struct {
	mu         sync.Mutex
	briefings  int
	widgetArgs []string
	spoken     []string
	reloads    int
	played     []string
	stops      int
	volume     float64
	volumeSets []float64
	wallpapers []string
}

func (a *mockActions) TriggerBriefing() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.briefings++
}

func (a *mockActions) TriggerWidgetBriefing(source string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.widgetArgs = append(a.widgetArgs, source)
}

func (a *mockActions) Speak(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.spoken = append(a.spoken, text)
}

func (a *mockActions) ReloadOverlay() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reloads++
}

func (a *mockActions) PlayPlaylist(target string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.played = append(a.played, target)
}

func (a *mockActions) StopPlaylist() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stops++
}

func (a *mockActions) Volume() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.volume
}

func (a *mockActions) SetVolume(v float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.volume = v
	a.volumeSets = append(a.volumeSets, v)
}

func (a *mockActions) SetWallpaper(target string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.wallpapers = append(a.wallpapers, target)
}

func newTestScheduler(actions *mockActions, at time.Time) *Scheduler {
	s := NewScheduler(actions, nil)
	s.now = func() time.Time { return at }
	return s
}

// 09:00 Monday 2026-03-02.
var nineAM = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestScheduler_RoutineOncePerDay(t *testing.T) {
	a := &mockActions{}
	s := NewScheduler(a, nil)
	s.mu.Lock()
	s.routines = []Routine{{
		ID: "morning", Name: "Morning briefing", Time: "09:00",
		Days: []int{1}, Action: ActionBriefing, Enabled: true,
	}}
	s.loaded = true
	s.mu.Unlock()

	// The minute evaluator may run several times within 09:00.
	s.checkRoutines(nineAM)
	s.checkRoutines(nineAM.Add(20 * time.Second))
	s.checkRoutines(nineAM.Add(40 * time.Second))

	if a.briefings != 1 {
		t.Errorf("expected exactly one execution, got %d", a.briefings)
	}

	// Next qualifying day fires again.
	s.checkRoutines(nineAM.AddDate(0, 0, 7))
	if a.briefings != 2 {
		t.Errorf("expected re-fire on next Monday, got %d", a.briefings)
	}
}

func TestScheduler_HourlyRoutineOncePerHour(t *testing.T) {
	a := &mockActions{}
	s := NewScheduler(a, nil)
	s.mu.Lock()
	s.routines = []Routine{{
		ID: "chime", Time: "hourly", Days: []int{1},
		Action: ActionSpeak, Text: "on the hour", Enabled: true,
	}}
	s.loaded = true
	s.mu.Unlock()

	s.checkRoutines(nineAM)
	s.checkRoutines(nineAM.Add(30 * time.Second))
	s.checkRoutines(nineAM.Add(time.Hour))
	s.checkRoutines(nineAM.Add(time.Hour + 30*time.Minute)) // not minute 0

	if len(a.spoken) != 2 {
		t.Errorf("expected 09:00 and 10:00 executions, got %v", a.spoken)
	}
}

func TestScheduler_DisabledAndWrongDaySkipped(t *testing.T) {
	a := &mockActions{}
	s := NewScheduler(a, nil)
	s.mu.Lock()
	s.routines = []Routine{
		{ID: "off", Time: "09:00", Days: []int{1}, Action: ActionBriefing, Enabled: false},
		{ID: "sun", Time: "09:00", Days: []int{0}, Action: ActionBriefing, Enabled: true},
	}
	s.loaded = true
	s.mu.Unlock()

	s.checkRoutines(nineAM)
	if a.briefings != 0 {
		t.Errorf("expected no executions, got %d", a.briefings)
	}
}

func TestScheduler_UnloadedRunsNothing(t *testing.T) {
	a := &mockActions{}
	s := NewScheduler(a, nil)
	s.checkRoutines(nineAM)
	if a.briefings != 0 || len(a.spoken) != 0 {
		t.Error("unloaded scheduler ran a routine")
	}
}

func TestScheduler_ActionVocabulary(t *testing.T) {
	vol := 80.0
	tests := []struct {
		name    string
		routine Routine
		check   func(t *testing.T, a *mockActions)
	}{
		{"widget briefing", Routine{Action: ActionWidgetBriefing, Target: "weather"},
			func(t *testing.T, a *mockActions) {
				if len(a.widgetArgs) != 1 || a.widgetArgs[0] != "weather" {
					t.Errorf("widgetArgs: %v", a.widgetArgs)
				}
			}},
		{"speak", Routine{Action: ActionSpeak, Text: "lunch time"},
			func(t *testing.T, a *mockActions) {
				if len(a.spoken) != 1 || a.spoken[0] != "lunch time" {
					t.Errorf("spoken: %v", a.spoken)
				}
			}},
		{"reload", Routine{Action: ActionReload},
			func(t *testing.T, a *mockActions) {
				if a.reloads != 1 {
					t.Errorf("reloads: %d", a.reloads)
				}
			}},
		{"playlist play", Routine{Action: ActionPlaylistPlay, Target: "focus"},
			func(t *testing.T, a *mockActions) {
				if len(a.played) != 1 || a.played[0] != "focus" {
					t.Errorf("played: %v", a.played)
				}
			}},
		{"playlist stop", Routine{Action: ActionPlaylistStop},
			func(t *testing.T, a *mockActions) {
				if a.stops != 1 {
					t.Errorf("stops: %d", a.stops)
				}
			}},
		{"wallpaper", Routine{Action: ActionWallpaper, Target: "night.mp4"},
			func(t *testing.T, a *mockActions) {
				if len(a.wallpapers) != 1 || a.wallpapers[0] != "night.mp4" {
					t.Errorf("wallpapers: %v", a.wallpapers)
				}
			}},
		{"unknown ignored", Routine{Action: "teleport", Volume: &vol},
			func(t *testing.T, a *mockActions) {
				if a.briefings+a.reloads+a.stops+len(a.spoken) != 0 {
					t.Error("unknown action had side effects")
				}
			}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := &mockActions{}
			s := NewScheduler(a, nil)
			s.executeAction(tc.routine)
			tc.check(t, a)
		})
	}
}

func TestScheduler_VolumeFade(t *testing.T) {
	a := &mockActions{volume: 20}
	s := NewScheduler(a, nil)
	s.fadeSteps = 4
	s.fadeDuration = 40 * time.Millisecond

	target := 100.0
	s.executeAction(Routine{Action: ActionVolume, Volume: &target})

	time.Sleep(120 * time.Millisecond)

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.volumeSets) != 4 {
		t.Fatalf("expected 4 fade steps, got %v", a.volumeSets)
	}
	// Linear ramp from 20 to 100 in quarters.
	want := []float64{40, 60, 80, 100}
	for i, v := range a.volumeSets {
		if v != want[i] {
			t.Errorf("step %d: got %v, want %v", i, v, want[i])
		}
	}
}

func TestScheduler_RegisterWidgetDeduplicates(t *testing.T) {
	s := NewScheduler(&mockActions{}, nil)

	var calls []string
	s.RegisterWidget("clock", GranSec, func(time.Time) { calls = append(calls, "old") })
	s.RegisterWidget("mail", GranSec, func(time.Time) { calls = append(calls, "mail") })
	s.RegisterWidget("clock", GranSec, func(time.Time) { calls = append(calls, "new") })

	s.tick(time.Date(2026, 3, 2, 9, 0, 30, 0, time.UTC))

	got := strings.Join(calls, ",")
	if got != "mail,new" {
		t.Errorf("calls: got %q, want %q", got, "mail,new")
	}
}

func TestScheduler_TickGranularity(t *testing.T) {
	s := NewScheduler(&mockActions{}, nil)

	var calls []string
	s.RegisterWidget("sec1", GranSec, func(time.Time) { calls = append(calls, "sec1") })
	s.RegisterWidget("min1", GranMin, func(time.Time) { calls = append(calls, "min1") })
	s.RegisterWidget("sec2", GranSec, func(time.Time) { calls = append(calls, "sec2") })

	t.Run("mid minute runs sec only", func(t *testing.T) {
		calls = nil
		s.tick(time.Date(2026, 3, 2, 9, 0, 30, 0, time.UTC))
		if strings.Join(calls, ",") != "sec1,sec2" {
			t.Errorf("calls: %v", calls)
		}
	})

	t.Run("top of minute runs sec then min in order", func(t *testing.T) {
		calls = nil
		s.tick(time.Date(2026, 3, 2, 9, 1, 0, 0, time.UTC))
		if strings.Join(calls, ",") != "sec1,sec2,min1" {
			t.Errorf("calls: %v", calls)
		}
	})
}

func TestScheduler_SetRoutinesColdStartRunsWidgets(t *testing.T) {
	s := newTestScheduler(&mockActions{}, nineAM.Add(30*time.Second))

	ran := 0
	s.RegisterWidget("mail", GranMin, func(time.Time) { ran++ })
	s.SetRoutines(nil)

	// Even a minute widget runs once immediately, off the tick boundary.
	if ran != 1 {
		t.Errorf("expected immediate cold-start run, got %d", ran)
	}
}

func TestScheduler_UnknownGranularityRejected(t *testing.T) {
	s := NewScheduler(&mockActions{}, nil)
	s.RegisterWidget("odd", "hourly", func(time.Time) {})

	if len(s.widgets) != 0 {
		t.Errorf("widget with bad granularity registered: %v", s.widgets)
	}
}

func TestParseConfig(t *testing.T) {
	doc := `{
		"gatekeeper": {
			"news": {"enabled": true, "deny": {"start": "2300", "end": "0700", "days": [0,1,2,3,4,5,6]}}
		},
		"routines": [
			{"id": "r1", "name": "Morning", "time": "09:00", "days": [1,2,3,4,5], "action": "tactical_briefing", "enabled": true},
			{"id": "r2", "name": "Chime", "time": "hourly", "days": [6], "action": "yt_volume", "enabled": false, "volume": 35}
		]
	}`

	cfg, err := ParseConfig(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	rule, ok := cfg.Gatekeeper["news"]
	if !ok || rule.Enabled == nil || !*rule.Enabled || rule.Deny == nil || rule.Deny.Start != "2300" {
		t.Errorf("gatekeeper rule: %+v", rule)
	}
	if len(cfg.Routines) != 2 || cfg.Routines[0].Action != ActionBriefing {
		t.Errorf("routines: %+v", cfg.Routines)
	}
	if cfg.Routines[1].Volume == nil || *cfg.Routines[1].Volume != 35 {
		t.Errorf("volume: %+v", cfg.Routines[1].Volume)
	}
}
