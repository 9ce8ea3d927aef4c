// Package splash gates first paint on two independent ready signals: the
// presentational splash sequence finishing and the initial session check
// resolving. Revealing only when both are done avoids a flash of the sign-in
// screen before the persisted session has been checked.
package splash

import (
	"sync"

	"github.com/slmehta/authkit/session"
)

// Coordinator combines the two ready signals and invokes the reveal callback
// exactly once when both have fired, in either order. Duplicate signals are
// harmless.
type Coordinator struct {
	reveal func()

	mu            sync.Mutex
	animationDone bool
	sessionDone   bool
	revealed      bool
}

// New creates a Coordinator invoking reveal when both signals have fired.
func New(reveal func()) *Coordinator {
	return &Coordinator{reveal: reveal}
}

// AnimationFinished signals that the splash sequence has completed its
// minimum duration / animation.
func (c *Coordinator) AnimationFinished() {
	c.signal(func() { c.animationDone = true })
}

// SessionLoaded signals that the initial session check has resolved.
func (c *Coordinator) SessionLoaded() {
	c.signal(func() { c.sessionDone = true })
}

// Revealed reports whether the app has been revealed.
func (c *Coordinator) Revealed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revealed
}

func (c *Coordinator) signal(mark func()) {
	c.mu.Lock()
	mark()
	fire := c.animationDone && c.sessionDone && !c.revealed
	if fire {
		c.revealed = true
	}
	c.mu.Unlock()
	if fire {
		c.reveal()
	}
}

// Attach wires the session-ready signal to the state's transitions: the
// first snapshot with loading resolved fires SessionLoaded. The returned
// cancel detaches it.
func (c *Coordinator) Attach(state *session.State) (cancel func()) {
	observe := func(snap session.Snapshot) {
		if !snap.Loading {
			c.SessionLoaded()
		}
	}
	cancel = state.Subscribe(observe)
	observe(state.Snapshot())
	return cancel
}
