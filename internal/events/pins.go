package events

import (
	"sort"
	"sync"
)

// Pinboard keeps the set of pinned item ids per session and announces changes on Pins.
type Pinboard struct {
	mu     sync.Mutex
	pinned map[string]map[string]struct{}
	topic  *Topic[PinChanged]
}

// NewPinboard accepts a nil topic; changes are then not announced.
func NewPinboard(topic *Topic[PinChanged]) *Pinboard {
	return &Pinboard{
		pinned: make(map[string]map[string]struct{}),
		topic:  topic,
	}
}

// Toggle flips itemID and returns its new pinned state.
func (p *Pinboard) Toggle(sessionID, itemID string) (bool, error) {
	p.mu.Lock()
	items, ok := p.pinned[sessionID]
	if !ok {
		items = make(map[string]struct{})
		p.pinned[sessionID] = items
	}
	_, wasPinned := items[itemID]
	if wasPinned {
		delete(items, itemID)
	} else {
		items[itemID] = struct{}{}
	}
	p.mu.Unlock()

	if p.topic == nil {
		return !wasPinned, nil
	}
	return !wasPinned, p.topic.Publish(PinChanged{SessionID: sessionID, ItemID: itemID, Pinned: !wasPinned})
}

// Pinned returns the session's pinned ids in sorted order.
func (p *Pinboard) Pinned(sessionID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.pinned[sessionID]))
	for id := range p.pinned[sessionID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clear drops every pin of a session without publishing.
func (p *Pinboard) Clear(sessionID string) {
	p.mu.Lock()
	delete(p.pinned, sessionID)
	p.mu.Unlock()
}
