package notify

import (
	"context"
	"slices"
	"sync"
)

const defaultInboxSize = 50

// Inbox keeps the latest notifications per recipient in memory.
type Inbox struct {
	mu    sync.RWMutex
	size  int
	items map[string][]Notification
}

func NewInbox(size int) *Inbox {
	if size <= 0 {
		size = defaultInboxSize
	}
	return &Inbox{size: size, items: make(map[string][]Notification)}
}

func (i *Inbox) Name() string { return "inbox" }

func (i *Inbox) Handle(_ context.Context, e Event) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, n := range e.Notifications() {
		if n.Recipient == "" {
			continue
		}
		list := append(i.items[n.Recipient], n)
		if len(list) > i.size {
			list = slices.Clone(list[len(list)-i.size:])
		}
		i.items[n.Recipient] = list
	}
	return nil
}

// List returns the notifications of a recipient, newest first.
func (i *Inbox) List(recipient string) []Notification {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := slices.Clone(i.items[recipient])
	slices.Reverse(out)
	if out == nil {
		out = []Notification{}
	}
	return out
}
