package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/peiban-ai/peiban/pkg/conversation"
	"github.com/peiban-ai/peiban/pkg/logger"
	"github.com/peiban-ai/peiban/pkg/personas"
	"github.com/peiban-ai/peiban/pkg/router"
	"github.com/peiban-ai/peiban/pkg/store"
)

// Config bounds one turn of processing.
type Config struct {
	HistoryWindow     int
	DefaultPersona    string
	ClassifierTimeout time.Duration
	HandlerTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = conversation.DefaultWindow
	}
	if c.DefaultPersona == "" {
		c.DefaultPersona = router.DefaultTarget
	}
	if c.ClassifierTimeout <= 0 {
		c.ClassifierTimeout = 30 * time.Second
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = 60 * time.Second
	}
	return c
}

// Result is what one completed turn hands back to the caller.
type Result struct {
	Reply    conversation.Message
	Decision router.Decision
}

// Dispatcher sequences one turn: load state, sanitize, classify, route to a
// persona handler, persist. Turns for the same session are serialized; turns
// for different sessions run independently.
type Dispatcher struct {
	store      store.Store
	classifier personas.Classifier
	handlers   map[string]personas.Handler
	parser     *router.Parser
	cfg        Config

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex

	parseFailures atomic.Uint64
}

func New(st store.Store, classifier personas.Classifier, handlers map[string]personas.Handler, cfg Config) (*Dispatcher, error) {
	if st == nil {
		return nil, fmt.Errorf("dispatcher requires a store")
	}
	if classifier == nil {
		return nil, fmt.Errorf("dispatcher requires a classifier")
	}
	cfg = cfg.withDefaults()

	parser, err := router.NewParser(cfg.DefaultPersona)
	if err != nil {
		return nil, err
	}
	for _, persona := range router.Registry {
		if _, ok := handlers[persona.ID]; !ok {
			return nil, fmt.Errorf("no handler registered for persona %q", persona.ID)
		}
	}

	return &Dispatcher{
		store:      st,
		classifier: classifier,
		handlers:   handlers,
		parser:     parser,
		cfg:        cfg,
		locks:      map[string]*sync.Mutex{},
	}, nil
}

// ParseFailures reports how many routing decisions fell back to the default
// persona because the classifier output was unusable.
func (d *Dispatcher) ParseFailures() uint64 { return d.parseFailures.Load() }

// Turn runs one complete request/response cycle for a session.
//
// On a save failure the computed reply is still returned together with
// ErrStoreSave so the caller can show it and warn about persistence.
func (d *Dispatcher) Turn(ctx context.Context, sessionID, userText string) (*Result, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("turn: empty session id")
	}
	if strings.TrimSpace(userText) == "" {
		return nil, fmt.Errorf("turn: empty user message")
	}

	lock := d.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	// Start: load or create state, append the user message.
	state, err := d.store.Load(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, wrapTurn(ErrStoreLoad, err)
		}
		state = conversation.NewState(sessionID)
	}
	state.Append(conversation.NewMessage(conversation.RoleUser, userText))

	// Routing: classify over the sanitized view, record the decision as a
	// tagged note that no future sanitized view will contain.
	view := conversation.Sanitize(state.History, d.cfg.HistoryWindow)
	cctx, cancel := context.WithTimeout(ctx, d.cfg.ClassifierTimeout)
	raw, err := d.classifier.Classify(cctx, view)
	cancel()
	if err != nil {
		d.persistPartial(ctx, state)
		return nil, wrapTurn(ErrClassifierInvocation, err)
	}

	decision, perr := d.parser.Parse(raw)
	if perr != nil {
		d.parseFailures.Add(1)
		logger.WarnCF("dispatch", "Routing decision unparsed, using default persona", map[string]interface{}{
			"session": sessionID,
			"target":  decision.Target,
			"error":   perr.Error(),
		})
	}
	state.PendingRoute = decision.Target
	state.Append(routingNote(decision))

	logger.DebugCF("dispatch", "Turn routed", map[string]interface{}{
		"session": sessionID,
		"persona": decision.Target,
	})

	// Handling: the routing note just appended is already excluded from the
	// recomputed view.
	handler := d.handlers[decision.Target]
	view = conversation.Sanitize(state.History, d.cfg.HistoryWindow)
	hctx, cancel := context.WithTimeout(ctx, d.cfg.HandlerTimeout)
	reply, err := handler.Respond(hctx, view)
	cancel()
	if err != nil {
		state.PendingRoute = ""
		d.persistPartial(ctx, state)
		return nil, wrapTurn(ErrHandlerInvocation, err)
	}
	state.Append(reply)

	// Done: clear the route, commit the turn.
	state.PendingRoute = ""
	result := &Result{Reply: reply, Decision: decision}
	if err := d.store.Save(ctx, state); err != nil {
		return result, wrapTurn(ErrStoreSave, err)
	}
	return result, nil
}

// persistPartial saves an aborted turn's state so the user message (and
// routing note, when present) survives for a retry. A persisted user line
// with no reply is a tolerated shape, not corruption.
func (d *Dispatcher) persistPartial(ctx context.Context, state *conversation.State) {
	state.PendingRoute = ""
	if err := d.store.Save(ctx, state); err != nil {
		logger.ErrorCF("dispatch", "Failed to persist aborted turn", map[string]interface{}{
			"session": state.SessionID,
			"error":   err.Error(),
		})
	}
}

func (d *Dispatcher) sessionLock(sessionID string) *sync.Mutex {
	d.lockMu.Lock()
	defer d.lockMu.Unlock()
	lock, ok := d.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[sessionID] = lock
	}
	return lock
}

func routingNote(decision router.Decision) conversation.Message {
	payload, err := json.Marshal(decision)
	if err != nil {
		payload = []byte("{}")
	}
	note := conversation.NewMessage(conversation.RoleSystemNote,
		fmt.Sprintf("Router Decision: %s. Suggestion: %s", decision.Target, decision.Rationale))
	note.Tags = map[string]string{conversation.TagRoutingDecision: string(payload)}
	return note
}
