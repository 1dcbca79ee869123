package tally

// Outcome describes what a RecordOnce call did.
type Outcome int

const (
	// Skipped means the call had no key (or no actor) and touched nothing.
	Skipped Outcome = iota
	// AlreadyRecorded means the actor had already triggered the key; nothing
	// changed.
	AlreadyRecorded
	// Recorded means the pair is new and the key's counter went up by one.
	Recorded
	// Failed means the store transaction did not commit. Nothing changed.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "Skipped"
	case AlreadyRecorded:
		return "AlreadyRecorded"
	case Recorded:
		return "Recorded"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Result is returned by RecordOnce. Callers are free to ignore it.
type Result struct {
	Outcome  Outcome
	Attempts int   // store transactions tried; 0 when skipped
	Err      error // set for Failed, and for Skipped when the actor was empty
}

// Recorded reports whether this call added the pair.
func (r Result) Recorded() bool {
	return r.Outcome == Recorded
}
