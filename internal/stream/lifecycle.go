package stream

import (
	"sync"
	"time"

	"github.com/wcallahan/searchai/internal/log"
)

// State is the lifecycle state of one stream.
type State int32

const (
	StateIdle State = iota
	StateStreaming
	StateDone
	StateError
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is one of the three terminal states.
func (s State) Terminal() bool {
	return s == StateDone || s == StateError || s == StateAborted
}

type errorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// LifecycleConfig configures one stream's lifecycle.
type LifecycleConfig struct {
	Writer *Writer

	// InactivityTimeout forces the stream into the error-terminal state
	// when no event arrives for this long. It arms on BeginActivity or the
	// first Send and resets on every Send.
	InactivityTimeout time.Duration

	// KeepaliveInterval is how often comment pings go out while streaming.
	KeepaliveInterval time.Duration

	// OnTimeout runs once if the inactivity timer fires, after the terminal
	// transition. It should cancel the upstream provider read.
	OnTimeout func()

	Logger log.Logger
}

// Lifecycle coordinates one stream's three independently scheduled
// activities: the caller's Send loop, the keepalive ticker, and the
// inactivity timer. All transitions go through one mutex, there is exactly
// one terminal transition, and both timers are torn down synchronously
// inside it.
type Lifecycle struct {
	mu            sync.Mutex
	state         State
	writer        *Writer
	inactivity    *time.Timer
	stopKeepalive chan struct{}
	keepaliveDone chan struct{}
	cfg           LifecycleConfig
	logger        log.Logger
}

// NewLifecycle creates a lifecycle in the idle state.
func NewLifecycle(cfg LifecycleConfig) *Lifecycle {
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = 2 * time.Minute
	}
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	return &Lifecycle{
		state:  StateIdle,
		writer: cfg.Writer,
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// Start moves the stream to the streaming state and arms the keepalive loop.
// The inactivity timer stays unarmed: a stream may sit behind a predecessor
// in its conversation for arbitrarily long, pinged but not yet producing.
// Calling Start twice or after a terminal state is a no-op.
func (l *Lifecycle) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateIdle {
		return
	}
	l.state = StateStreaming

	l.stopKeepalive = make(chan struct{})
	l.keepaliveDone = make(chan struct{})
	go l.keepaliveLoop(l.stopKeepalive, l.keepaliveDone)
}

// BeginActivity arms the inactivity timer. Callers invoke it when the stream
// is admitted to produce output, so queue wait time never counts against the
// timeout. A no-op unless streaming, and idempotent once armed.
func (l *Lifecycle) BeginActivity() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateStreaming {
		return
	}
	l.armInactivityLocked()
}

// armInactivityLocked arms or resets the inactivity timer. Caller holds mu.
func (l *Lifecycle) armInactivityLocked() {
	if l.inactivity == nil {
		l.inactivity = time.AfterFunc(l.cfg.InactivityTimeout, l.onInactivity)
		return
	}
	l.inactivity.Reset(l.cfg.InactivityTimeout)
}

func (l *Lifecycle) keepaliveLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.cfg.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if err := l.writer.WriteKeepalive(now); err != nil {
				l.logger.Debug("keepalive write failed", "error", err)
				return
			}
		}
	}
}

// Send frames one event and resets the inactivity timer. It fails with
// ErrTerminated once the stream reached any terminal state, which stops
// upstream producers.
func (l *Lifecycle) Send(payload any) error {
	l.mu.Lock()
	if l.state != StateStreaming {
		l.mu.Unlock()
		return ErrTerminated
	}
	l.armInactivityLocked()
	l.mu.Unlock()

	return l.writer.WriteEvent(payload)
}

// Done completes the stream normally: terminal marker, timers cleared.
func (l *Lifecycle) Done() {
	if l.terminate(StateDone) {
		if err := l.writer.WriteDone(); err != nil && err != ErrTerminated {
			l.logger.Debug("terminal marker write failed", "error", err)
		}
	}
}

// Fail moves the stream to the error-terminal state, emitting an error event
// followed by the terminal marker.
func (l *Lifecycle) Fail(message string) {
	if l.terminate(StateError) {
		if err := l.writer.WriteEvent(errorEvent{Type: "error", Error: message}); err != nil && err != ErrTerminated {
			l.logger.Debug("error event write failed", "error", err)
		}
		if err := l.writer.WriteDone(); err != nil && err != ErrTerminated {
			l.logger.Debug("terminal marker write failed", "error", err)
		}
	}
}

// Abort tears the stream down without wire output; the caller is gone, so
// there is nobody to write to. Aborts are clean terminations, not errors.
func (l *Lifecycle) Abort() {
	if l.terminate(StateAborted) {
		l.writer.Seal()
	}
}

// terminate performs the single terminal transition. It returns true for
// exactly one caller; every later terminal call is a no-op.
func (l *Lifecycle) terminate(to State) bool {
	l.mu.Lock()
	if l.state.Terminal() {
		l.mu.Unlock()
		return false
	}
	from := l.state
	l.state = to

	if l.inactivity != nil {
		l.inactivity.Stop()
	}
	var keepaliveDone chan struct{}
	if l.stopKeepalive != nil {
		close(l.stopKeepalive)
		l.stopKeepalive = nil
		keepaliveDone = l.keepaliveDone
	}
	l.mu.Unlock()

	// Wait outside the lock; the keepalive loop takes the writer mutex,
	// never this one.
	if keepaliveDone != nil {
		<-keepaliveDone
	}

	l.logger.Debug("stream terminal transition", "from", from.String(), "to", to.String())
	return true
}

// onInactivity runs when the inactivity timer fires. If the stream already
// terminated, the race is resolved inside terminate and nothing happens.
func (l *Lifecycle) onInactivity() {
	if l.terminate(StateError) {
		l.logger.Warn("stream inactivity timeout",
			"timeout", l.cfg.InactivityTimeout.String())
		if err := l.writer.WriteEvent(errorEvent{Type: "error", Error: "stream timed out waiting for the provider"}); err != nil && err != ErrTerminated {
			l.logger.Debug("error event write failed", "error", err)
		}
		if err := l.writer.WriteDone(); err != nil && err != ErrTerminated {
			l.logger.Debug("terminal marker write failed", "error", err)
		}
		if l.cfg.OnTimeout != nil {
			l.cfg.OnTimeout()
		}
	}
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}
