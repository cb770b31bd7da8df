package web

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aegisdesk/go-aegis/pkg/avatar"
	"github.com/aegisdesk/go-aegis/pkg/briefing"
	"github.com/aegisdesk/go-aegis/pkg/hub"
	"github.com/aegisdesk/go-aegis/pkg/schedule"
	"github.com/aegisdesk/go-aegis/pkg/speech"
)

// DefaultVolume is the playback volume before any routine touches it,
// on the overlay's 0..100 scale.
const DefaultVolume = 50

// briefingTimeout bounds one composition round trip.
const briefingTimeout = 30 * time.Second

// Desk fans scheduled routine actions out to the speech queue, the
// briefing composer, the state machine and the overlay stream. It is
// the schedule.DeskActions implementation.
type Desk struct {
	machine   *avatar.Machine
	queue     *speech.Queue
	hub       *hub.Hub
	gate      *schedule.Gatekeeper
	snaps     briefing.SnapshotSource
	briefings Composer
	logger    *slog.Logger

	mu     sync.Mutex
	volume float64
}

var _ schedule.DeskActions = (*Desk)(nil)

// DeskDeps are the collaborators a Desk dispatches into.
type DeskDeps struct {
	Machine   *avatar.Machine
	Queue     *speech.Queue
	Hub       *hub.Hub
	Gate      *schedule.Gatekeeper
	Snapshots briefing.SnapshotSource
	Briefings Composer
	Logger    *slog.Logger
}

// NewDesk creates the routine action surface.
func NewDesk(deps DeskDeps) *Desk {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "desk")
	}
	return &Desk{
		machine:   deps.Machine,
		queue:     deps.Queue,
		hub:       deps.Hub,
		gate:      deps.Gate,
		snaps:     deps.Snapshots,
		briefings: deps.Briefings,
		logger:    logger,
		volume:    DefaultVolume,
	}
}

// TriggerBriefing composes and speaks the full briefing over every
// widget snapshot. Runs asynchronously so the scheduler tick never
// blocks on the network.
func (d *Desk) TriggerBriefing() {
	go d.runBriefing("")
}

// TriggerWidgetBriefing composes and speaks a briefing for one source.
func (d *Desk) TriggerWidgetBriefing(source string) {
	go d.runBriefing(source)
}

func (d *Desk) runBriefing(source string) {
	if d.briefings == nil {
		d.logger.Warn("briefing requested without a composer")
		return
	}
	if !d.gate.IsAllowed("briefing") {
		d.logger.Info("briefing gated off", "source", source)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), briefingTimeout)
	defer cancel()

	var b *briefing.Briefing
	var err error
	if source == "" {
		b, err = d.briefings.Compose(ctx, d.snaps)
	} else {
		b, err = d.briefings.ComposeWidget(ctx, source, d.snaps)
	}
	if err != nil {
		d.logger.Warn("briefing composition failed", "source", source, "error", err)
		return
	}

	d.machine.ApplySentiment(b.Sentiment)
	d.queue.Speak(b.Text, "", "briefing")
}

// Speak enqueues a fixed routine utterance.
func (d *Desk) Speak(text string) {
	d.queue.Speak(text, "", "")
}

// ReloadOverlay asks connected overlays to reload themselves.
func (d *Desk) ReloadOverlay() {
	d.hub.Emit(EventReload, nil)
}

// PlayPlaylist starts music playback: the overlay gets the playlist
// target and the avatar starts dancing.
func (d *Desk) PlayPlaylist(target string) {
	d.machine.Dispatch(avatar.EventMusicStart, nil)
	payload := map[string]any{}
	if target != "" {
		payload["target"] = target
	}
	d.hub.Emit(avatar.EventMusicStart, payload)
}

// StopPlaylist pauses music playback and stops the dance.
func (d *Desk) StopPlaylist() {
	d.machine.Dispatch(avatar.EventMusicStop, nil)
	d.hub.Emit(avatar.EventMusicStop, nil)
}

// Volume returns the current playback volume.
func (d *Desk) Volume() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.volume
}

// SetVolume sets the playback volume and pushes it to the overlay.
// The scheduler calls this once per fade step.
func (d *Desk) SetVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}

	d.mu.Lock()
	d.volume = volume
	d.mu.Unlock()

	d.hub.Emit(EventMusicVolume, map[string]any{"volume": volume})
}

// SetWallpaper switches the overlay wallpaper.
func (d *Desk) SetWallpaper(target string) {
	d.hub.Emit(EventWallpaper, map[string]any{"target": target})
}
