package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kanbu/realtime/pkg/domain"
	"github.com/kanbu/realtime/pkg/wire"
)

// DefaultTypingIdle is how long a typer stays rendered without a renewed
// typing:start. Drops "is typing…" ghosts whose stop frame was lost.
const DefaultTypingIdle = 6 * time.Second

type typerEntry struct {
	user     domain.PresenceEntry
	lastSeen time.Time
}

// TypingConfig configures a TypingAggregator.
type TypingConfig struct {
	// Self is filtered out; a user never sees their own typing line.
	Self uuid.UUID
	// IdleTimeout defaults to DefaultTypingIdle.
	IdleTimeout time.Duration
	// Now overrides the clock.
	Now func() time.Time
	// OnChange, when set, fires with the re-rendered line per task.
	OnChange func(taskID uuid.UUID, line string)
}

// TypingAggregator reduces typing:start/stop broadcasts into a rendered
// "who is typing" line per task. Purely client-side; a stop for a typer
// never seen is a no-op, and typers expire after IdleTimeout without a
// renewed start.
type TypingAggregator struct {
	cfg TypingConfig

	mu     sync.Mutex
	byTask map[uuid.UUID][]typerEntry // insertion ordered
}

func NewTypingAggregator(cfg TypingConfig) *TypingAggregator {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultTypingIdle
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TypingAggregator{
		cfg:    cfg,
		byTask: make(map[uuid.UUID][]typerEntry),
	}
}

// Subscribe registers the aggregator's handlers on c and returns a stop
// function.
func (ta *TypingAggregator) Subscribe(c *Client) func() {
	startTok := c.OnEvent(domain.EventTypingStart, ta.HandleEvent)
	stopTok := c.OnEvent(domain.EventTypingStop, ta.HandleEvent)
	leftTok := c.On(string(domain.EventPresenceLeft), ta.HandleEvent)

	return func() {
		c.Off(string(domain.EventTypingStart), startTok)
		c.Off(string(domain.EventTypingStop), stopTok)
		c.Off(string(domain.EventPresenceLeft), leftTok)
	}
}

// HandleEvent applies one broadcast envelope to the typing state.
func (ta *TypingAggregator) HandleEvent(env wire.Envelope) {
	switch domain.EventType(env.Type) {
	case domain.EventTypingStart, domain.EventTypingStop:
		if env.TriggeredBy == nil {
			return
		}
		var p domain.TypingPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			log.Debug().Err(err).Msg("client: bad typing payload")
			return
		}
		if domain.EventType(env.Type) == domain.EventTypingStart {
			ta.start(p.TaskID, *env.TriggeredBy)
		} else {
			ta.stop(p.TaskID, env.TriggeredBy.ID)
		}

	case domain.EventPresenceLeft:
		var p domain.PresencePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		ta.stopEverywhere(p.User.ID)
	}
}

// Render returns the line to show under taskID, pruning expired typers
// first: "", "a is typing…", "a and b are typing…", or
// "a and N others are typing…".
func (ta *TypingAggregator) Render(taskID uuid.UUID) string {
	ta.mu.Lock()
	defer ta.mu.Unlock()

	typers := ta.pruneLocked(taskID)
	switch len(typers) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%s is typing…", displayName(typers[0].user))
	case 2:
		return fmt.Sprintf("%s and %s are typing…", displayName(typers[0].user), displayName(typers[1].user))
	default:
		return fmt.Sprintf("%s and %d others are typing…", displayName(typers[0].user), len(typers)-1)
	}
}

func displayName(u domain.PresenceEntry) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

func (ta *TypingAggregator) start(taskID uuid.UUID, user domain.PresenceEntry) {
	if user.ID == ta.cfg.Self {
		return
	}

	ta.mu.Lock()
	typers := ta.pruneLocked(taskID)
	renewed := false
	for i := range typers {
		if typers[i].user.ID == user.ID {
			typers[i].lastSeen = ta.cfg.Now()
			renewed = true
			break
		}
	}
	if !renewed {
		typers = append(typers, typerEntry{user: user, lastSeen: ta.cfg.Now()})
	}
	ta.byTask[taskID] = typers
	ta.mu.Unlock()

	ta.changed(taskID)
}

func (ta *TypingAggregator) stop(taskID, userID uuid.UUID) {
	ta.mu.Lock()
	typers := ta.byTask[taskID]
	kept := typers[:0]
	for _, entry := range typers {
		if entry.user.ID != userID {
			kept = append(kept, entry)
		}
	}
	if len(kept) == 0 {
		delete(ta.byTask, taskID)
	} else {
		ta.byTask[taskID] = kept
	}
	ta.mu.Unlock()

	ta.changed(taskID)
}

func (ta *TypingAggregator) stopEverywhere(userID uuid.UUID) {
	ta.mu.Lock()
	var affected []uuid.UUID
	for taskID, typers := range ta.byTask {
		kept := typers[:0]
		for _, entry := range typers {
			if entry.user.ID != userID {
				kept = append(kept, entry)
			}
		}
		if len(kept) != len(typers) {
			affected = append(affected, taskID)
		}
		if len(kept) == 0 {
			delete(ta.byTask, taskID)
		} else {
			ta.byTask[taskID] = kept
		}
	}
	ta.mu.Unlock()

	for _, taskID := range affected {
		ta.changed(taskID)
	}
}

// pruneLocked drops typers idle past the timeout and returns the survivors.
func (ta *TypingAggregator) pruneLocked(taskID uuid.UUID) []typerEntry {
	cutoff := ta.cfg.Now().Add(-ta.cfg.IdleTimeout)
	typers := ta.byTask[taskID]
	kept := typers[:0]
	for _, entry := range typers {
		if entry.lastSeen.After(cutoff) {
			kept = append(kept, entry)
		}
	}
	if len(kept) == 0 {
		delete(ta.byTask, taskID)
		return nil
	}
	ta.byTask[taskID] = kept
	return kept
}

func (ta *TypingAggregator) changed(taskID uuid.UUID) {
	if ta.cfg.OnChange != nil {
		ta.cfg.OnChange(taskID, ta.Render(taskID))
	}
}

// TypingNotifier is the sending half: it debounces a stream of keystroke
// callbacks into at most one typing:start per renewal interval and a
// typing:stop when the burst ends.
type TypingNotifier struct {
	session emitter
	// renewEvery should be comfortably below the receivers' idle timeout.
	renewEvery time.Duration
	now        func() time.Time

	mu       sync.Mutex
	lastSent map[uuid.UUID]time.Time
}

func NewTypingNotifier(session emitter, renewEvery time.Duration) *TypingNotifier {
	if renewEvery <= 0 {
		renewEvery = DefaultTypingIdle / 2
	}
	return &TypingNotifier{
		session:    session,
		renewEvery: renewEvery,
		now:        time.Now,
		lastSent:   make(map[uuid.UUID]time.Time),
	}
}

// Typing is called on every keystroke; it emits typing:start only when a
// burst begins or the renewal interval elapsed.
func (tn *TypingNotifier) Typing(ctx context.Context, room string, taskID uuid.UUID) error {
	tn.mu.Lock()
	last, active := tn.lastSent[taskID]
	due := !active || tn.now().Sub(last) >= tn.renewEvery
	if due {
		tn.lastSent[taskID] = tn.now()
	}
	tn.mu.Unlock()

	if !due {
		return nil
	}
	return tn.session.Emit(ctx, domain.EventTypingStart, room, domain.TypingPayload{TaskID: taskID})
}

// Stopped is called on blur or when the input empties; it emits
// typing:stop once per burst.
func (tn *TypingNotifier) Stopped(ctx context.Context, room string, taskID uuid.UUID) error {
	tn.mu.Lock()
	_, active := tn.lastSent[taskID]
	delete(tn.lastSent, taskID)
	tn.mu.Unlock()

	if !active {
		return nil
	}
	return tn.session.Emit(ctx, domain.EventTypingStop, room, domain.TypingPayload{TaskID: taskID})
}
