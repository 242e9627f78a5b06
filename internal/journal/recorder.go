package journal

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"soundbridge.dev/internal/event"
	"soundbridge.dev/internal/stream"
)

// Recorder writes playback events into the journal database.
//
// Progress ticks (playing) and synthetic update snapshots are skipped
// unless WithTicks is given; at tick rate they would swamp the journal
// without adding queryable history.
type Recorder struct {
	db        *sql.DB
	sessionID string
	disabled  bool
	ticks     bool
}

// RecorderOption is a functional option for configuring a Recorder
type RecorderOption func(*Recorder)

// WithTicks records playing and update events too
func WithTicks() RecorderOption {
	return func(r *Recorder) {
		r.ticks = true
	}
}

// NewRecorder creates a new journal recorder for the specified session
func NewRecorder(db *sql.DB, sessionID string, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		db:        db,
		sessionID: sessionID,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Record writes one event to the journal with graceful degradation:
// the first write error disables the recorder rather than disturbing
// playback.
func (r *Recorder) Record(ev event.Event) {
	// Skip if disabled due to previous errors
	if r.disabled {
		return
	}

	if !r.ticks && (ev.Kind == event.KindPlaying || ev.Kind == event.KindUpdate) {
		return
	}

	if err := r.insertEvent(ev); err != nil {
		slog.Warn("journal failed to record event", "error", err, "kind", ev.Kind.String(), "sound_id", ev.ID)
		r.disabled = true
		return
	}

	slog.Debug("journal recorded event",
		"session_id", r.sessionID,
		"kind", ev.Kind.String(),
		"sound_id", ev.ID,
		"src", ev.Src)
}

// Consume drains a stream subscription into the journal. It returns
// once the stream terminates; run it on its own goroutine.
func (r *Recorder) Consume(sub *stream.Subscription[event.Event]) {
	for ev := range sub.C {
		r.Record(ev)
	}

	if err := sub.Err(); err != nil {
		slog.Debug("journal stream terminated with error", "error", err)
	} else {
		slog.Debug("journal stream completed")
	}
}

// insertEvent inserts a playback event record
func (r *Recorder) insertEvent(ev event.Event) error {
	scope := ev.Scope
	if scope == nil {
		scope = []string{}
	}
	scopeJSON, err := json.Marshal(scope)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		INSERT INTO playback_events (timestamp, session_id, kind, sound_id, src, position, duration, volume, paused, playing, error, reason, scope)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().Unix(),
		r.sessionID,
		ev.Kind.String(),
		ev.ID,
		ev.Src,
		ev.Position,
		ev.Duration,
		ev.Volume,
		boolToInt(ev.Paused),
		boolToInt(ev.Playing),
		boolToInt(ev.Error),
		ev.Reason,
		string(scopeJSON))
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
