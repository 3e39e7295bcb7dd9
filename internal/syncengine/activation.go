package syncengine

import (
	"sync"

	"github.com/xiaoshi569/nextchat/internal/auth"
	"github.com/xiaoshi569/nextchat/internal/logging"
	"github.com/xiaoshi569/nextchat/internal/state"
)

// Observer wires credential transitions and store changes to the engine.
type Observer struct {
	engine *Engine
	creds  *auth.Store
	store  *state.Store
	logger *logging.Logger

	mu      sync.Mutex
	cancels []func()
}

func NewObserver(engine *Engine, creds *auth.Store, store *state.Store, logger *logging.Logger) *Observer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Observer{engine: engine, creds: creds, store: store, logger: logger}
}

// Start subscribes to both sources. If a credential is already held the
// engine is activated immediately.
func (o *Observer) Start() {
	o.mu.Lock()
	o.cancels = append(o.cancels,
		o.creds.Subscribe(o.onAuth),
		o.store.Subscribe(o.onChange),
	)
	o.mu.Unlock()
	if o.creds.IsAuthenticated() {
		o.engine.Activate()
	}
}

func (o *Observer) Stop() {
	o.mu.Lock()
	cancels := o.cancels
	o.cancels = nil
	o.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}

func (o *Observer) onAuth(ev auth.Event) {
	switch ev.Kind {
	case auth.Authenticated:
		if o.engine.Activate() {
			o.logger.Infof("signed in, pulling sessions")
		}
	case auth.Unauthenticated:
		o.engine.Reset()
		o.logger.Infof("signed out, sync idle")
	case auth.SignInRequired:
		o.logger.Warnf("server rejected the session token, sign in again")
	}
}

func (o *Observer) onChange(ch state.Change) {
	if ch.Origin != state.OriginUser || !o.creds.IsAuthenticated() {
		return
	}
	o.engine.NotifyChange()
}
