package schedule

import "time"

// Routine action names, matching the persisted scheduler documents.
const (
	ActionBriefing       = "tactical_briefing"
	ActionWidgetBriefing = "widget_briefing"
	ActionSpeak          = "speak"
	ActionReload         = "reload"
	ActionPlaylistPlay   = "yt_play"
	ActionPlaylistStop   = "yt_stop"
	ActionVolume         = "yt_volume"
	ActionWallpaper      = "wallpaper_set"
)

// DeskActions is the collaborator surface routines dispatch against.
// The web layer implements it by fanning out to the speech queue, the
// briefing composer and the overlay hub.
type DeskActions interface {
	// TriggerBriefing starts the full daily briefing.
	TriggerBriefing()

	// TriggerWidgetBriefing starts a briefing for one widget source.
	TriggerWidgetBriefing(source string)

	// Speak enqueues a fixed utterance.
	Speak(text string)

	// ReloadOverlay asks connected overlays to reload themselves.
	ReloadOverlay()

	// PlayPlaylist starts or switches the music playlist. An empty
	// target resumes the current one.
	PlayPlaylist(target string)

	// StopPlaylist pauses music playback.
	StopPlaylist()

	// Volume returns the current playback volume on a 0..100 scale.
	Volume() float64

	// SetVolume sets the playback volume on a 0..100 scale.
	SetVolume(volume float64)

	// SetWallpaper switches the overlay wallpaper.
	SetWallpaper(target string)
}

// executeAction dispatches one due routine against the collaborator
// surface. Unknown actions are logged and skipped.
func (s *Scheduler) executeAction(r Routine) {
	s.logger.Info("executing routine", "id", r.ID, "name", r.Name, "action", r.Action)

	switch r.Action {
	case ActionBriefing:
		s.actions.TriggerBriefing()
	case ActionWidgetBriefing:
		if r.Target != "" {
			s.actions.TriggerWidgetBriefing(r.Target)
		}
	case ActionSpeak:
		if r.Text != "" {
			s.actions.Speak(r.Text)
		}
	case ActionReload:
		s.actions.ReloadOverlay()
	case ActionPlaylistPlay:
		s.actions.PlayPlaylist(r.Target)
	case ActionPlaylistStop:
		s.actions.StopPlaylist()
	case ActionVolume:
		if r.Volume != nil {
			s.fadeVolume(*r.Volume)
		}
	case ActionWallpaper:
		if r.Target != "" {
			s.actions.SetWallpaper(r.Target)
		}
	default:
		s.logger.Warn("unknown routine action", "action", r.Action, "id", r.ID)
	}
}

// fadeVolume ramps the playback volume to target linearly in discrete
// steps. A new fade cancels any fade still in flight.
func (s *Scheduler) fadeVolume(target float64) {
	s.mu.Lock()
	if s.fadeCancel != nil {
		close(s.fadeCancel)
	}
	cancel := make(chan struct{})
	s.fadeCancel = cancel
	steps := s.fadeSteps
	stepTime := s.fadeDuration / time.Duration(steps)
	s.mu.Unlock()

	start := s.actions.Volume()
	diff := target - start

	go func() {
		ticker := time.NewTicker(stepTime)
		defer ticker.Stop()
		for step := 1; step <= steps; step++ {
			select {
			case <-cancel:
				return
			case <-ticker.C:
				s.actions.SetVolume(start + diff*float64(step)/float64(steps))
			}
		}
	}()
}
