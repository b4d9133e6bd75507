package callsession

import "sync"

// Mailbox holds the most recent resolution until the host takes it. A newer
// resolution replaces an unread one.
type Mailbox struct {
	mu    sync.Mutex
	entry *Resolution
}

func (mb *Mailbox) Post(r Resolution) {
	r = r.clone()
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.entry = &r
}

// Take returns and clears the held resolution.
func (mb *Mailbox) Take() (Resolution, bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.entry == nil {
		return Resolution{}, false
	}
	r := *mb.entry
	mb.entry = nil
	return r, true
}

// Peek returns the held resolution for callID without clearing it.
func (mb *Mailbox) Peek(callID string) (Resolution, bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.entry == nil || mb.entry.CallID != callID {
		return Resolution{}, false
	}
	return mb.entry.clone(), true
}
