package jito

import (
	"fmt"

	"github.com/ninja0404/pump-bundler/pkg/types"
)

// Outcome is the relay-native lifecycle stage of a bundle.
type Outcome string

const (
	OutcomeUnknown   Outcome = ""
	OutcomeAccepted  Outcome = "accepted"
	OutcomeProcessed Outcome = "processed"
	OutcomeFinalized Outcome = "finalized"
	OutcomeRejected  Outcome = "rejected"
)

// Result is one observation of a bundle from the relay.
type Result struct {
	BundleID string
	Outcome  Outcome
	Slot     uint64
	Reason   types.RejectReason
	Detail   string
}

// State is the caller-facing bundle state.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateConfirmed  State = "confirmed"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transition is expected.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateFailed
}

// Status is the caller-facing view of a submitted bundle.
type Status struct {
	BundleID   string
	State      State
	LandedSlot uint64
	Error      string
	Err        error
	Signatures []string
}

// MapResult converts a relay observation into a caller-facing status.
func MapResult(r Result) Status {
	st := Status{BundleID: r.BundleID}
	switch r.Outcome {
	case OutcomeFinalized, OutcomeProcessed:
		st.State = StateConfirmed
		st.LandedSlot = r.Slot
	case OutcomeAccepted:
		st.State = StateProcessing
	case OutcomeRejected:
		rej := &types.RelayRejection{Reason: r.Reason, Detail: r.Detail}
		st.State = StateFailed
		st.Err = rej
		st.Error = rej.Error()
	default:
		st.State = StatePending
	}
	return st
}

// fromInflight translates a getInflightBundleStatuses entry.
func fromInflight(s InflightStatus) Result {
	r := Result{BundleID: s.BundleID}
	switch s.Status {
	case "Landed":
		r.Outcome = OutcomeProcessed
		r.Slot = s.LandedSlot
	case "Pending":
		r.Outcome = OutcomeAccepted
	case "Failed":
		r.Outcome = OutcomeRejected
		r.Reason = types.RejectDropped
		r.Detail = "bundle did not land in any region"
	}
	return r
}

// fromFinal translates a getBundleStatuses entry.
func fromFinal(s FinalStatus, slot uint64) Result {
	r := Result{BundleID: s.BundleID, Slot: slot}
	switch s.ConfirmationStatus {
	case "finalized":
		r.Outcome = OutcomeFinalized
	case "processed", "confirmed":
		r.Outcome = OutcomeProcessed
	}
	return r
}

// ParseRejectReason maps relay error text to a rejection reason.
func ParseRejectReason(msg string) types.RejectReason {
	switch {
	case containsAny(msg, "simulation", "simulate"):
		return types.RejectSimulationFailure
	case containsAny(msg, "tip", "bid", "auction"):
		return types.RejectBidTooLow
	case containsAny(msg, "dropped", "expired"):
		return types.RejectDropped
	default:
		return types.RejectInternalError
	}
}

func (s Status) String() string {
	switch {
	case s.Error != "":
		return fmt.Sprintf("%s (%s): %s", s.BundleID, s.State, s.Error)
	case s.LandedSlot > 0:
		return fmt.Sprintf("%s (%s at slot %d)", s.BundleID, s.State, s.LandedSlot)
	default:
		return fmt.Sprintf("%s (%s)", s.BundleID, s.State)
	}
}
