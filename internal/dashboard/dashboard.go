package dashboard

import (
	"context"
	"log"
	"sync"

	"rollcall/internal/model"
)

// Fetcher loads the records of a view from the server.
type Fetcher interface {
	Fetch(ctx context.Context, v View) ([]model.AttendanceRecord, error)
}

// Dashboard owns the State of one view and keeps it current.
type Dashboard struct {
	mu       sync.Mutex
	state    State
	fetcher  Fetcher
	onChange func(State)
}

// New creates a dashboard in Loading. onChange, when set, is called after every
// state change.
func New(v View, f Fetcher, onChange func(State)) *Dashboard {
	return &Dashboard{state: NewState(v), fetcher: f, onChange: onChange}
}

// State returns a snapshot of the current state.
func (d *Dashboard) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.state
	s.Records = append([]model.AttendanceRecord{}, s.Records...)
	return s
}

// Load fetches the view and moves to Ready, fetching again while events arrived
// during the previous fetch.
func (d *Dashboard) Load(ctx context.Context) error {
	for {
		d.mu.Lock()
		view := d.state.View
		d.state.Phase = Loading
		d.state.Dirty = false
		d.mu.Unlock()

		records, err := d.fetcher.Fetch(ctx, view)
		if err != nil {
			return err
		}

		d.mu.Lock()
		next, action := Loaded(d.state, records)
		d.state = next
		d.mu.Unlock()
		d.notify(next)

		if action != ActionRefetch {
			return nil
		}
	}
}

// Apply reconciles one event, fetching when the event requires it.
func (d *Dashboard) Apply(ctx context.Context, ev model.ChangeEvent) error {
	d.mu.Lock()
	prev := d.state
	next, action := Reconcile(d.state, ev)
	d.state = next
	d.mu.Unlock()

	if action == ActionRefetch {
		return d.Load(ctx)
	}
	if changed(prev, next) {
		d.notify(next)
	}
	return nil
}

// Run applies events until the channel closes or ctx ends. Fetch failures are logged
// and the view keeps its last good state.
func (d *Dashboard) Run(ctx context.Context, events <-chan model.ChangeEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := d.Apply(ctx, ev); err != nil {
				log.Printf("dashboard: refetch after %s event failed: %v", ev.Type, err)
			}
		}
	}
}

func (d *Dashboard) notify(s State) {
	if d.onChange != nil {
		d.onChange(s)
	}
}

func changed(a, b State) bool {
	if a.Phase != b.Phase || a.Dirty != b.Dirty || len(a.Records) != len(b.Records) {
		return true
	}
	for i := range a.Records {
		if a.Records[i] != b.Records[i] {
			return true
		}
	}
	return false
}
