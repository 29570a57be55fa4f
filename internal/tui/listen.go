package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/agentstation/hitlfeed/pkg/feed"
)

// storeChangedMsg tells the model the store changed since the last render.
type storeChangedMsg struct{}

// watch subscribes to store and coalesces changes into a one-slot channel.
// The listener never blocks the store. stop unsubscribes and closes the
// channel, releasing a pending waitForChange; it may be called repeatedly.
func watch(store *feed.Store) (<-chan struct{}, func()) {
	var (
		mu     sync.Mutex
		closed bool
	)
	changed := make(chan struct{}, 1)
	unsubscribe := store.Subscribe(func(feed.Change) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	var once sync.Once
	stop := func() {
		once.Do(func() {
			unsubscribe()
			// a notification already in flight may still reach the listener
			mu.Lock()
			closed = true
			close(changed)
			mu.Unlock()
		})
	}
	return changed, stop
}

// waitForChange returns a command that resolves on the next store change.
func waitForChange(changed <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-changed; !ok {
			return nil
		}
		return storeChangedMsg{}
	}
}
