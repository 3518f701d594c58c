package engine

import (
	"sync"

	"github.com/roach88/rollcall/internal/roster"
)

// DrawStart is delivered when a draw passes its preconditions.
type DrawStart struct {
	AvailableCount int `json:"availableCount"`
}

// DrawComplete is delivered after a successful commit.
type DrawComplete struct {
	Entity         roster.Entity `json:"entity"`
	RemainingCount int           `json:"remainingCount"`
	Record         DrawRecord    `json:"drawRecord"`
}

// DrawError is delivered for every failure inside Draw except ErrBusy, which
// belongs to a caller racing a draw that still owns the lifecycle.
type DrawError struct {
	Code   FailureCode `json:"code"`
	Reason error       `json:"-"`
}

// ResetComplete is delivered after Reset or Import.
type ResetComplete struct {
	TotalCount int   `json:"totalCount"`
	Seq        int64 `json:"seq"`
}

// EditOp is the kind of a roster edit.
type EditOp string

const (
	EditAdd    EditOp = "add"
	EditRemove EditOp = "remove"
)

// RosterChange is delivered after Add or Remove. Entity is the added
// entity, or the removed one as it was just before removal.
type RosterChange struct {
	Op             EditOp        `json:"op"`
	Entity         roster.Entity `json:"entity"`
	Seq            int64         `json:"seq"`
	TotalCount     int           `json:"totalCount"`
	AvailableCount int           `json:"availableCount"`
}

// Observer receives engine lifecycle notifications.
//
// One method per notification kind: adding a kind breaks every
// implementation at compile time, which is the point.
type Observer interface {
	DrawStarted(DrawStart)
	DrawCompleted(DrawComplete)
	DrawFailed(DrawError)
	ResetCompleted(ResetComplete)
	RosterChanged(RosterChange)
}

type subscription struct {
	id int
	o  Observer
}

// observers is a copy-on-notify subscriber list.
type observers struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID int
}

func (s *observers) add(o Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription{id: id, o: o})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *observers) each(fn func(Observer)) {
	s.mu.RLock()
	subs := s.subs
	s.mu.RUnlock()

	for _, sub := range subs {
		fn(sub.o)
	}
}

// NotificationKind tags a recorded notification.
type NotificationKind string

const (
	KindDrawStart     NotificationKind = "draw-start"
	KindDrawComplete  NotificationKind = "draw-complete"
	KindDrawError     NotificationKind = "draw-error"
	KindResetComplete NotificationKind = "reset-complete"
	KindRosterChange  NotificationKind = "roster-change"
)

// Notification is one recorded notification. Exactly one payload field is
// set, matching Kind.
type Notification struct {
	Kind          NotificationKind `json:"kind"`
	DrawStart     *DrawStart       `json:"drawStart,omitempty"`
	DrawComplete  *DrawComplete    `json:"drawComplete,omitempty"`
	DrawError     *DrawError       `json:"drawError,omitempty"`
	ResetComplete *ResetComplete   `json:"resetComplete,omitempty"`
	RosterChange  *RosterChange    `json:"rosterChange,omitempty"`
}

// Recorder is an Observer that keeps every notification in delivery order.
// Used by the scenario harness and tests.
//
// Thread-safety: safe for concurrent use via internal mutex.
type Recorder struct {
	mu    sync.Mutex
	notes []Notification
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) DrawStarted(n DrawStart) {
	r.append(Notification{Kind: KindDrawStart, DrawStart: &n})
}

func (r *Recorder) DrawCompleted(n DrawComplete) {
	r.append(Notification{Kind: KindDrawComplete, DrawComplete: &n})
}

func (r *Recorder) DrawFailed(n DrawError) {
	r.append(Notification{Kind: KindDrawError, DrawError: &n})
}

func (r *Recorder) ResetCompleted(n ResetComplete) {
	r.append(Notification{Kind: KindResetComplete, ResetComplete: &n})
}

func (r *Recorder) RosterChanged(n RosterChange) {
	r.append(Notification{Kind: KindRosterChange, RosterChange: &n})
}

func (r *Recorder) append(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

// Notifications returns a copy of everything recorded so far.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.notes))
	copy(out, r.notes)
	return out
}

// Kinds returns the recorded kinds in order.
func (r *Recorder) Kinds() []NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]NotificationKind, len(r.notes))
	for i, n := range r.notes {
		out[i] = n.Kind
	}
	return out
}

// Clear drops all recorded notifications.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = nil
}
