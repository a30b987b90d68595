package watcher

import (
	"sort"
	"time"
)

// pendingChange is a coalesced event awaiting the settle window
type pendingChange struct {
	ev    Event
	order int
}

// Debouncer coalesces bursts of file events into batches. All pending paths
// share one settle window: each incoming event restarts the timer, and when
// the library goes quiet everything accumulated is flushed together. Repeat
// events for a path within a window keep the first classification.
type Debouncer struct {
	in     <-chan Event
	out    chan Batch
	settle time.Duration
	done   chan struct{}
}

// NewDebouncer starts a debouncer reading from in. The output channel closes
// after in closes and the final flush has been delivered.
func NewDebouncer(in <-chan Event, settle time.Duration) *Debouncer {
	d := &Debouncer{
		in:     in,
		out:    make(chan Batch),
		settle: settle,
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Batches returns the channel of flushed event batches
func (d *Debouncer) Batches() <-chan Batch {
	return d.out
}

// Done is closed once the debouncer has fully drained and shut down
func (d *Debouncer) Done() <-chan struct{} {
	return d.done
}

func (d *Debouncer) run() {
	defer close(d.done)
	defer close(d.out)

	pending := make(map[string]pendingChange)
	seq := 0

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case ev, ok := <-d.in:
			if !ok {
				if timer != nil {
					timer.Stop()
				}
				d.flush(pending)
				return
			}

			key := ev.Path
			if ev.Op == Renamed {
				key = ev.OldPath
			}
			if _, exists := pending[key]; !exists {
				pending[key] = pendingChange{ev: ev, order: seq}
				seq++
			}

			if timer == nil {
				timer = time.NewTimer(d.settle)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(d.settle)
			}
			timerC = timer.C

		case <-timerC:
			d.flush(pending)
			pending = make(map[string]pendingChange)
			seq = 0
			timerC = nil
		}
	}
}

// flush partitions pending changes by operation and emits one batch per
// operation with paths in arrival order
func (d *Debouncer) flush(pending map[string]pendingChange) {
	if len(pending) == 0 {
		return
	}

	ordered := make([]pendingChange, 0, len(pending))
	for _, pc := range pending {
		ordered = append(ordered, pc)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].order < ordered[j].order
	})

	var removed, changed []string
	var renamed []RenamePair
	for _, pc := range ordered {
		switch pc.ev.Op {
		case Removed:
			removed = append(removed, pc.ev.Path)
		case Renamed:
			renamed = append(renamed, RenamePair{From: pc.ev.OldPath, To: pc.ev.Path})
		default:
			changed = append(changed, pc.ev.Path)
		}
	}

	// Removals and renames first so a replaced file is not pruned after its
	// replacement was inserted
	if len(removed) > 0 {
		d.out <- Batch{Kind: Removed, Paths: removed}
	}
	if len(renamed) > 0 {
		d.out <- Batch{Kind: Renamed, Pairs: renamed}
	}
	if len(changed) > 0 {
		d.out <- Batch{Kind: Changed, Paths: changed}
	}
}
