package speech

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aegisdesk/go-aegis/pkg/avatar"
	"github.com/aegisdesk/go-aegis/pkg/tts"
)

// Request is one queued utterance. Text is the caption (may carry
// markup); SpeechText, when set, is what actually gets synthesized.
type Request struct {
	ID         string
	Text       string
	AudioURL   string
	VisualType string
	SpeechText string
}

// Dispatcher receives the TTS lifecycle events. The animation state
// machine satisfies this.
type Dispatcher interface {
	Dispatch(eventType string, payload map[string]any)
}

// CaptionSink shows and hides the overlay caption. The websocket hub
// adapter satisfies this.
type CaptionSink interface {
	ShowCaption(id, text, visualType string)
	HideCaption(id string)
}

// Queue timing defaults.
const (
	// DefaultQueueCapacity bounds pending requests; extras are dropped.
	DefaultQueueCapacity = 100

	// safetyTimeout caps a playback window so a lost browser can never
	// stall the queue.
	safetyTimeout = 2 * time.Minute

	graceDelay = 2 * time.Second
	gapDelay   = 500 * time.Millisecond
)

// Queue serializes speech playback: one in-flight utterance, FIFO
// order, a worker goroutine draining a channel. Playback itself
// happens in the browser; the queue times the playback window from the
// clip duration.
type Queue struct {
	synth      tts.Provider
	clips      *Store
	dispatcher Dispatcher
	captions   CaptionSink
	logger     *slog.Logger

	requests chan *Request
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu        sync.Mutex
	currentID string
	dismissCh chan struct{}

	grace  time.Duration
	gap    time.Duration
	safety time.Duration
}

// NewQueue creates and starts a speech queue. synth may be a Chain;
// clips receives synthesized audio for the overlay to fetch.
func NewQueue(synth tts.Provider, clips *Store, dispatcher Dispatcher, captions CaptionSink, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default().With("component", "speech")
	}
	ctx, cancel := context.WithCancel(context.Background())

	q := &Queue{
		synth:      synth,
		clips:      clips,
		dispatcher: dispatcher,
		captions:   captions,
		logger:     logger,
		requests:   make(chan *Request, DefaultQueueCapacity),
		ctx:        ctx,
		cancel:     cancel,
		grace:      graceDelay,
		gap:        gapDelay,
		safety:     safetyTimeout,
	}

	q.wg.Add(1)
	go q.worker()
	return q
}

// Speak enqueues a plain utterance. Satisfies the reaction engine's
// speaker surface.
func (q *Queue) Speak(text, audioURL, visualType string) {
	q.Enqueue(Request{Text: text, AudioURL: audioURL, VisualType: visualType})
}

// Enqueue adds a request to the queue. A full queue drops the request
// rather than blocking the caller.
func (q *Queue) Enqueue(req Request) string {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	select {
	case <-q.ctx.Done():
		q.logger.Warn("speak after queue close", "id", req.ID)
		return ""
	default:
	}

	select {
	case q.requests <- &req:
		q.logger.Debug("utterance queued", "id", req.ID, "pending", len(q.requests))
		return req.ID
	default:
		q.logger.Warn("speech queue full, dropping utterance", "id", req.ID)
		return ""
	}
}

// Dismiss cancels the in-flight utterance and advances the queue.
// It reports whether anything was playing.
func (q *Queue) Dismiss() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.dismissCh == nil {
		return false
	}
	close(q.dismissCh)
	q.dismissCh = nil
	return true
}

// Speaking reports whether an utterance is currently playing.
func (q *Queue) Speaking() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.currentID != ""
}

// Pending returns the number of queued, not yet started requests.
func (q *Queue) Pending() int {
	return len(q.requests)
}

// Close stops the worker. Queued requests are abandoned.
func (q *Queue) Close() {
	q.cancel()
	q.Dismiss()
	q.wg.Wait()
}

func (q *Queue) worker() {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			return
		case req := <-q.requests:
			q.process(req)

			// Breathing room between consecutive utterances.
			select {
			case <-q.ctx.Done():
				return
			case <-time.After(q.gap):
			}
		}
	}
}

// process plays one request start to finish. Failures complete
// immediately so the queue never stalls.
func (q *Queue) process(req *Request) {
	audioURL, duration, ok := q.resolveAudio(req)
	if !ok {
		return
	}

	dismiss := make(chan struct{})
	q.mu.Lock()
	q.currentID = req.ID
	q.dismissCh = dismiss
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.currentID = ""
		if q.dismissCh == dismiss {
			q.dismissCh = nil
		}
		q.mu.Unlock()
	}()

	q.captions.ShowCaption(req.ID, req.Text, req.VisualType)
	q.dispatcher.Dispatch(avatar.EventTTSStart, map[string]any{
		"id":         req.ID,
		"audioUrl":   audioURL,
		"visualType": req.VisualType,
	})

	window := duration
	if window > q.safety {
		window = q.safety
	}

	dismissed := false
	select {
	case <-q.ctx.Done():
	case <-dismiss:
		dismissed = true
	case <-time.After(window):
	}

	q.dispatcher.Dispatch(avatar.EventTTSStop, map[string]any{"id": req.ID})

	if dismissed {
		// The user clicked the caption away; skip the grace delay.
		q.captions.HideCaption(req.ID)
		return
	}

	select {
	case <-q.ctx.Done():
	case <-time.After(q.grace):
	}
	q.captions.HideCaption(req.ID)
}

// resolveAudio produces the playable URL and its playback window.
// Pre-rendered audio passes through; otherwise the synthesis chain
// renders a clip into the store.
func (q *Queue) resolveAudio(req *Request) (string, time.Duration, bool) {
	speech := req.SpeechText
	if speech == "" {
		speech = StripHTML(req.Text)
	}

	if req.AudioURL != "" {
		return req.AudioURL, tts.EstimateDuration(len(speech)), true
	}

	if q.synth == nil {
		q.logger.Warn("no synthesizer configured, skipping utterance", "id", req.ID)
		return "", 0, false
	}

	ctx, cancel := context.WithTimeout(q.ctx, 30*time.Second)
	defer cancel()

	result, err := q.synth.Synthesize(ctx, speech)
	if err != nil {
		q.logger.Warn("synthesis failed, advancing queue", "id", req.ID, "error", err)
		return "", 0, false
	}

	clipID := q.clips.Put(result.Audio, result.MIME, result.Duration)
	q.logger.Debug("clip ready",
		"id", req.ID,
		"clip", clipID,
		"duration", result.Duration,
		"latency_ms", result.LatencyMs,
	)
	return "/audio/" + clipID, result.Duration, true
}
