package state

// Effects is the classified outcome of one completed dispatch round. The
// state machine never sees model wording, only these flags plus the facts
// accumulated so far; this keeps transitions deterministic across model
// versions.
type Effects struct {
	ServicesListed   bool
	SlotsListed      bool
	CustomerResolved bool
	BookingCreated   bool
	BookingCancelled bool
	BookingConflict  bool
	Fatal            bool
}

// Advance computes the next state from the current one, the accumulated
// facts, and the effects of the dispatch round that just completed. It is
// pure: no I/O, no clock.
//
// The session walks the fixed linear path
//
//	initiated -> greeting -> collecting_info -> consulting -> booking -> confirming -> completed
//
// one gate at a time. A single turn may clear several gates (the observed
// sequence is still in order), but no gate is ever skipped. failed is
// reachable from every non-terminal state; completed and failed are
// terminal.
func Advance(cur State, facts Facts, eff Effects) State {
	if cur.Terminal() {
		return cur
	}
	if eff.Fatal {
		return StateFailed
	}

	for {
		next, ok := successor(cur)
		if !ok {
			return cur
		}
		if !gateOpen(cur, facts, eff) {
			return cur
		}
		cur = next
	}
}

// successor returns the next state on the linear path. Exhaustive over the
// closed state set.
func successor(s State) (State, bool) {
	switch s {
	case StateInitiated:
		return StateGreeting, true
	case StateGreeting:
		return StateCollectingInfo, true
	case StateCollectingInfo:
		return StateConsulting, true
	case StateConsulting:
		return StateBooking, true
	case StateBooking:
		return StateConfirming, true
	case StateConfirming:
		return StateCompleted, true
	case StateCompleted, StateFailed:
		return s, false
	default:
		return s, false
	}
}

// gateOpen reports whether the session may leave the given state. Gates are
// fact-driven so that an event supplying no new information leaves the
// session where it was.
func gateOpen(s State, facts Facts, eff Effects) bool {
	switch s {
	case StateInitiated:
		// Any processed event moves past initiated.
		return true
	case StateGreeting:
		return eff.ServicesListed || eff.SlotsListed ||
			facts.HasAny(FactName, FactPhone, FactDesiredService, FactServiceID)
	case StateCollectingInfo:
		return eff.ServicesListed || eff.SlotsListed ||
			facts.HasAny(FactServiceID, FactDesiredService)
	case StateConsulting:
		return facts.Has(FactName) && facts.Has(FactPhone) &&
			facts.HasAny(FactServiceID, FactDesiredService)
	case StateBooking:
		// A conflicting booking attempt pins the session here until the
		// user picks another slot.
		return !eff.BookingConflict && facts.Has(FactSelectedSlot)
	case StateConfirming:
		return !eff.BookingConflict && facts.Has(FactBookingID)
	default:
		return false
	}
}
