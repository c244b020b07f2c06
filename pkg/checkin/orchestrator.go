package checkin

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// State of the orchestrator after the last action.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateSuccess
	StateNotFound
	StateConflict
	StateNetworkError
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateSuccess:
		return "success"
	case StateNotFound:
		return "not-found"
	case StateConflict:
		return "conflict"
	case StateNetworkError:
		return "network-error"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

type NotificationKind int

const (
	NotifySuccess NotificationKind = iota
	NotifyWarning
	NotifyError
)

func (k NotificationKind) String() string {
	switch k {
	case NotifySuccess:
		return "success"
	case NotifyWarning:
		return "warning"
	default:
		return "error"
	}
}

type Notification struct {
	Kind    NotificationKind
	Message string
}

const (
	MsgCheckinSuccess   = "Check-in successful!"
	MsgLookupOffline    = "Cannot connect to server. Is it running?"
	MsgCheckinOffline   = "Cannot connect to server"
	MsgRegistrationNeed = "Registration number is required"
)

// OutcomeKind tags the result of a check-in.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeConflict
	OutcomeFailure
)

// Outcome of CheckIn. Participant is set on success, ScannedAt on conflict
// and Message on failure. Superseded is true when a newer action was
// issued before the response arrived; the view was left alone.
type Outcome struct {
	Kind        OutcomeKind
	Participant Participant
	ScannedAt   string
	Message     string
	Err         error
	Superseded  bool
}

// View is a copy of what the operator sees.
type View struct {
	State        State
	Loading      bool
	Result       *Participant
	Error        string
	Notification *Notification
	Stats        Stats
}

func (v View) clone() View {
	if v.Result != nil {
		r := *v.Result
		v.Result = &r
	}
	if v.Notification != nil {
		n := *v.Notification
		v.Notification = &n
	}
	return v
}

// Backend is the HTTP surface the orchestrator drives. *Client implements it.
type Backend interface {
	Stats(ctx context.Context) (Stats, error)
	Search(ctx context.Context, regNo string) (Participant, error)
	CheckIn(ctx context.Context, regNo string) (Participant, error)
}

// Orchestrator runs lookups and check-ins against the backend and keeps the
// operator view. Each action takes a token; a response whose token is no
// longer the latest is dropped, so the last issued action wins.
type Orchestrator struct {
	backend Backend
	log     Logger

	mu        sync.Mutex
	view      View
	token     uint64
	statsSeq  uint64
	statsSeen uint64
	observers []func(View)

	refreshing sync.WaitGroup
}

func NewOrchestrator(backend Backend, log Logger) *Orchestrator {
	if log == nil {
		log = nopLogger{}
	}
	return &Orchestrator{backend: backend, log: log}
}

// OnChange registers fn to receive a copy of the view after every change.
// fn runs on the goroutine that caused the change.
func (o *Orchestrator) OnChange(fn func(View)) {
	o.mu.Lock()
	o.observers = append(o.observers, fn)
	o.mu.Unlock()
}

func (o *Orchestrator) View() View {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.view.clone()
}

// Lookup searches for regNo and replaces the displayed result. Blank input
// returns ErrEmptyQuery and changes nothing.
func (o *Orchestrator) Lookup(ctx context.Context, regNo string) (Participant, error) {
	regNo = strings.TrimSpace(regNo)
	if regNo == "" {
		return Participant{}, ErrEmptyQuery
	}

	tok := o.begin(func(v *View) {
		v.Error = ""
		v.Result = nil
	})
	p, err := o.backend.Search(ctx, regNo)

	o.finish(tok, "lookup "+regNo, func(v *View) {
		if err == nil {
			v.State = StateSuccess
			v.Result = &p
			return
		}
		var netErr *NetworkError
		switch {
		case errors.Is(err, ErrNotFound):
			v.State = StateNotFound
			v.Error = err.Error()
		case errors.As(err, &netErr):
			v.State = StateNetworkError
			v.Error = MsgLookupOffline
		default:
			v.State = StateRejected
			v.Error = err.Error()
		}
	})
	if err != nil {
		o.log.Debugf("lookup %q failed: %v", regNo, err)
	}
	return p, err
}

// CheckIn marks regNo as checked in. On success the displayed result is
// replaced with the server's record and stats are refreshed in the
// background. A conflict leaves the displayed result untouched.
func (o *Orchestrator) CheckIn(ctx context.Context, regNo string) Outcome {
	regNo = strings.TrimSpace(regNo)
	if regNo == "" {
		return Outcome{Kind: OutcomeFailure, Message: MsgRegistrationNeed, Err: ErrEmptyQuery}
	}

	tok := o.begin(nil)
	p, err := o.backend.CheckIn(ctx, regNo)

	out := checkinOutcome(p, err)
	applied := o.finish(tok, "checkin "+regNo, func(v *View) {
		switch out.Kind {
		case OutcomeSuccess:
			p := out.Participant
			v.State = StateSuccess
			v.Result = &p
			v.Notification = &Notification{Kind: NotifySuccess, Message: MsgCheckinSuccess}
		case OutcomeConflict:
			v.State = StateConflict
			v.Notification = &Notification{Kind: NotifyWarning, Message: out.Message}
		default:
			var netErr *NetworkError
			if errors.As(err, &netErr) {
				v.State = StateNetworkError
			} else {
				v.State = StateRejected
			}
			v.Notification = &Notification{Kind: NotifyError, Message: out.Message}
		}
	})
	out.Superseded = !applied

	switch out.Kind {
	case OutcomeSuccess:
		o.log.Infof("checked in %s (%s)", out.Participant.RegistrationNo, out.Participant.Name)
		o.refreshAsync(ctx)
	case OutcomeConflict:
		o.log.Infof("%s already checked in at %s", regNo, out.ScannedAt)
	default:
		o.log.Warnf("check-in of %s failed: %v", regNo, err)
	}
	return out
}

func checkinOutcome(p Participant, err error) Outcome {
	if err == nil {
		return Outcome{Kind: OutcomeSuccess, Participant: p}
	}
	var (
		conflict *ConflictError
		netErr   *NetworkError
	)
	switch {
	case errors.As(err, &conflict):
		return Outcome{Kind: OutcomeConflict, ScannedAt: conflict.ScannedAt, Message: conflict.Error(), Err: err}
	case errors.As(err, &netErr):
		return Outcome{Kind: OutcomeFailure, Message: MsgCheckinOffline, Err: err}
	default:
		msg := fallbackCheckinMessage
		var srv *ServerError
		if errors.As(err, &srv) {
			msg = srv.Error()
		}
		return Outcome{Kind: OutcomeFailure, Message: msg, Err: err}
	}
}

// RefreshStats replaces the stats from the server. Failures are logged and
// otherwise ignored.
func (o *Orchestrator) RefreshStats(ctx context.Context) {
	o.mu.Lock()
	o.statsSeq++
	seq := o.statsSeq
	o.mu.Unlock()

	s, err := o.backend.Stats(ctx)
	if err != nil {
		o.log.Debugf("failed to fetch stats: %v", err)
		return
	}

	o.mu.Lock()
	if seq < o.statsSeen {
		o.mu.Unlock()
		return
	}
	o.statsSeen = seq
	o.view.Stats = s
	v, obs := o.snapshotLocked()
	o.mu.Unlock()
	o.notify(obs, v)
}

func (o *Orchestrator) refreshAsync(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	o.refreshing.Add(1)
	go func() {
		defer o.refreshing.Done()
		o.RefreshStats(ctx)
	}()
}

// Wait blocks until background stats refreshes have finished.
func (o *Orchestrator) Wait() {
	o.refreshing.Wait()
}

// Dismiss returns to Idle and clears the error and notification. The
// displayed result stays.
func (o *Orchestrator) Dismiss() {
	o.mu.Lock()
	if o.view.Loading {
		o.mu.Unlock()
		return
	}
	o.view.State = StateIdle
	o.view.Error = ""
	o.view.Notification = nil
	v, obs := o.snapshotLocked()
	o.mu.Unlock()
	o.notify(obs, v)
}

func (o *Orchestrator) begin(prep func(*View)) uint64 {
	o.mu.Lock()
	o.token++
	tok := o.token
	o.view.State = StateLoading
	o.view.Loading = true
	o.view.Notification = nil
	if prep != nil {
		prep(&o.view)
	}
	v, obs := o.snapshotLocked()
	o.mu.Unlock()
	o.notify(obs, v)
	return tok
}

func (o *Orchestrator) finish(tok uint64, what string, apply func(*View)) bool {
	o.mu.Lock()
	if tok != o.token {
		o.mu.Unlock()
		o.log.Debugf("dropping stale response for %s", what)
		return false
	}
	o.view.Loading = false
	apply(&o.view)
	v, obs := o.snapshotLocked()
	o.mu.Unlock()
	o.notify(obs, v)
	return true
}

func (o *Orchestrator) snapshotLocked() (View, []func(View)) {
	obs := make([]func(View), len(o.observers))
	copy(obs, o.observers)
	return o.view.clone(), obs
}

func (o *Orchestrator) notify(obs []func(View), v View) {
	for _, fn := range obs {
		fn(v)
	}
}
