package gesture

import "math"

// DefaultThreshold is the per-axis movement, in pixels, that turns a tap into a drag.
const DefaultThreshold = 5.0

// Phase is the state of one input stream.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseTracking
	PhaseDragging
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseTracking:
		return "tracking"
	case PhaseDragging:
		return "dragging"
	default:
		return "unknown"
	}
}

// Sequence is an active pointer or touch sequence.
type Sequence struct {
	Origin   Point
	Dragging bool
}

// move records a move to p. Once the sequence is dragging it stays dragging.
func (s *Sequence) move(p Point, threshold float64) {
	if s.Dragging {
		return
	}
	dx := math.Abs(p.X - s.Origin.X)
	dy := math.Abs(p.Y - s.Origin.Y)
	if dx > threshold || dy > threshold {
		s.Dragging = true
	}
}

// Disambiguator tracks mouse and touch sequences independently. It is not
// safe for concurrent use; each map session owns one.
type Disambiguator struct {
	threshold float64
	active    map[Source]*Sequence
}

// NewDisambiguator creates a Disambiguator. A non-positive threshold selects
// DefaultThreshold.
func NewDisambiguator(threshold float64) *Disambiguator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Disambiguator{
		threshold: threshold,
		active:    make(map[Source]*Sequence, 2),
	}
}

// Handle feeds one event through the state machine. It reports a placement
// only when a sequence is released on the map without having become a drag.
func (d *Disambiguator) Handle(ev Event) (Placement, bool) {
	if ev.Source != SourceMouse && ev.Source != SourceTouch {
		return Placement{}, false
	}
	if ev.Source == SourceTouch && ev.Touches > 1 && ev.Kind != KindUp {
		// Pinch or multi-finger pan.
		delete(d.active, ev.Source)
		return Placement{}, false
	}

	switch ev.Kind {
	case KindDown:
		if ev.Target.ownsClicks() {
			delete(d.active, ev.Source)
			return Placement{}, false
		}
		d.active[ev.Source] = &Sequence{Origin: ev.Screen}

	case KindMove:
		if seq, ok := d.active[ev.Source]; ok {
			seq.move(ev.Screen, d.threshold)
		}

	case KindUp:
		seq, ok := d.active[ev.Source]
		if !ok {
			return Placement{}, false
		}
		delete(d.active, ev.Source)
		seq.move(ev.Screen, d.threshold)
		if seq.Dragging || ev.Target.ownsClicks() {
			return Placement{}, false
		}
		return Placement{Source: ev.Source, Screen: ev.Screen, LatLng: ev.LatLng}, true

	case KindCancel:
		delete(d.active, ev.Source)
	}
	return Placement{}, false
}

// Phase reports the current state of the given input stream.
func (d *Disambiguator) Phase(src Source) Phase {
	seq, ok := d.active[src]
	switch {
	case !ok:
		return PhaseIdle
	case seq.Dragging:
		return PhaseDragging
	default:
		return PhaseTracking
	}
}

// Reset aborts every active sequence.
func (d *Disambiguator) Reset() {
	clear(d.active)
}
