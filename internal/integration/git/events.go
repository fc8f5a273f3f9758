package git

import (
	"fmt"
	"sort"
	"sync"
)

// EventKind enumerates the notifications raised to collaborators.
type EventKind int

const (
	// EventProgressMessage carries human-readable progress in Text and,
	// when known, a percentage in Percent.
	EventProgressMessage EventKind = iota
	// EventDocReady carries the resolved document path in Path.
	EventDocReady
	// EventCloned carries the new working copy in Path.
	EventCloned
	// EventUpdated carries a working copy whose tip moved in Path.
	EventUpdated
	// EventUpToDate carries a working copy whose tip did not move in Path.
	EventUpToDate
	// EventGetFailed carries the failure reason in Text.
	EventGetFailed
	// EventCommitSuccess carries CommitID and Message.
	EventCommitSuccess
	// EventBranchChanged carries the new branch name in Branch.
	EventBranchChanged
)

var eventKindNames = [...]string{
	EventProgressMessage: "progressMessage",
	EventDocReady:        "docReady",
	EventCloned:          "cloned",
	EventUpdated:         "updated",
	EventUpToDate:        "upToDate",
	EventGetFailed:       "getFailed",
	EventCommitSuccess:   "commitSuccess",
	EventBranchChanged:   "branchChanged",
}

// String returns the event name.
func (k EventKind) String() string {
	if k >= 0 && int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is a notification. Only the fields documented for its Kind are set.
type Event struct {
	Kind EventKind

	Path     string
	Text     string
	Percent  int
	CommitID string
	Message  string
	Branch   string
}

// Listener receives events.
type Listener func(Event)

// Events is a list of listeners. The zero value is not usable; use NewEvents.
type Events struct {
	mu        sync.Mutex
	next      int
	listeners map[int]Listener
}

// NewEvents creates an empty listener list.
func NewEvents() *Events {
	return &Events{listeners: make(map[int]Listener)}
}

// Subscribe registers fn and returns a function removing it.
func (e *Events) Subscribe(fn Listener) func() {
	e.mu.Lock()
	id := e.next
	e.next++
	e.listeners[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// Emit delivers ev to every listener in subscription order.
func (e *Events) Emit(ev Event) {
	e.mu.Lock()
	ids := make([]int, 0, len(e.listeners))
	for id := range e.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]Listener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, e.listeners[id])
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (e *Events) clear() {
	e.mu.Lock()
	e.listeners = make(map[int]Listener)
	e.mu.Unlock()
}
