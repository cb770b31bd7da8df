package schedule

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// Widget tick granularities.
const (
	GranSec = "sec"
	GranMin = "min"
)

type widget struct {
	id       string
	gran     string
	callback func(now time.Time)
}

// Scheduler is the single time source of the service: one 1s ticker
// drives widget callbacks, and routine evaluation at the top of each
// minute. Callbacks fire synchronously in registration order so they
// all observe the same timestamp.
type Scheduler struct {
	mu       sync.Mutex
	routines []Routine
	loaded   bool
	widgets  []widget

	// lastRun maps routine id to its last execution key. Never pruned;
	// growth is bounded by routine count times process lifetime in days.
	lastRun map[string]string

	fadeCancel   chan struct{}
	fadeSteps    int
	fadeDuration time.Duration

	actions DeskActions
	logger  *slog.Logger
	now     func() time.Time

	stop    chan struct{}
	running bool
}

// NewScheduler creates a scheduler dispatching routine actions to
// actions. No routines run until SetRoutines installs a config.
func NewScheduler(actions DeskActions, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default().With("component", "scheduler")
	}
	return &Scheduler{
		lastRun:      map[string]string{},
		fadeSteps:    10,
		fadeDuration: 2000 * time.Millisecond,
		actions:      actions,
		logger:       logger,
		now:          time.Now,
		stop:         make(chan struct{}),
	}
}

// SetRoutines atomically replaces the routine list. Execution dedupe
// state is kept so a reload cannot re-fire today's routines.
func (s *Scheduler) SetRoutines(routines []Routine) {
	s.mu.Lock()
	s.routines = routines
	s.loaded = true
	s.mu.Unlock()
	s.logger.Info("routines loaded", "count", len(routines))

	// Config reloads rerun every widget immediately, same as startup.
	s.coldStart()
}

// RegisterWidget adds a periodic callback under id, replacing any
// prior registration with the same id.
func (s *Scheduler) RegisterWidget(id, gran string, callback func(now time.Time)) {
	if gran != GranSec && gran != GranMin {
		s.logger.Warn("unknown widget granularity", "id", id, "granularity", gran)
		return
	}
	s.mu.Lock()
	kept := s.widgets[:0]
	for _, w := range s.widgets {
		if w.id != id {
			kept = append(kept, w)
		}
	}
	s.widgets = append(kept, widget{id: id, gran: gran, callback: callback})
	s.mu.Unlock()
	s.logger.Debug("widget registered", "id", id, "granularity", gran)
}

// Run starts the global tick. Blocks until Stop is called.
func (s *Scheduler) Run() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	s.logger.Info("global tick started")

	s.coldStart()

	for {
		select {
		case <-s.stop:
			s.mu.Lock()
			s.running = false
			if s.fadeCancel != nil {
				close(s.fadeCancel)
				s.fadeCancel = nil
			}
			s.mu.Unlock()
			s.logger.Info("global tick stopped")
			return
		case now := <-ticker.C:
			s.tick(now)
		}
	}
}

// Stop halts the global tick.
func (s *Scheduler) Stop() {
	close(s.stop)
}

// coldStart runs every widget callback and a routine check once,
// without waiting for the next natural tick boundary.
func (s *Scheduler) coldStart() {
	now := s.now()
	for _, w := range s.snapshotWidgets() {
		w.callback(now)
	}
	s.checkRoutines(now)
}

// tick drives one second of the global clock. Minute work rides on the
// same tick at seconds zero.
func (s *Scheduler) tick(now time.Time) {
	widgets := s.snapshotWidgets()
	atMinute := now.Second() == 0

	for _, w := range widgets {
		if w.gran == GranSec {
			w.callback(now)
		}
	}
	if atMinute {
		for _, w := range widgets {
			if w.gran == GranMin {
				w.callback(now)
			}
		}
		s.checkRoutines(now)
	}
}

func (s *Scheduler) snapshotWidgets() []widget {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]widget, len(s.widgets))
	copy(out, s.widgets)
	return out
}

// checkRoutines fires every enabled routine whose schedule matches
// now, at most once per execution key.
func (s *Scheduler) checkRoutines(now time.Time) {
	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return
	}
	routines := make([]Routine, len(s.routines))
	copy(routines, s.routines)
	s.mu.Unlock()

	timeStr := fmt.Sprintf("%02d:%02d", now.Hour(), now.Minute())
	day := int(now.Weekday())
	dateStr := now.Format("2006-01-02")

	for _, r := range routines {
		if !r.Enabled {
			continue
		}

		due := r.Time == timeStr || (r.Time == "hourly" && now.Minute() == 0)
		if !due || !containsDay(r.Days, day) {
			continue
		}

		key := dateStr
		if r.Time == "hourly" {
			key = dateStr + "_" + strconv.Itoa(now.Hour())
		}

		s.mu.Lock()
		done := s.lastRun[r.ID] == key
		if !done {
			s.lastRun[r.ID] = key
		}
		s.mu.Unlock()
		if done {
			continue
		}

		s.executeAction(r)
	}
}
