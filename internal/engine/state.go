package engine

// WriteState is the lifecycle state of a shipment's in-flight write.
// At most one write state machine runs per shipment id; the zero value
// StateIdle means no write is in flight.
//
// States are observability only. Correctness never depends on reading
// them: registry content transitions exclusively on confirmed re-fetch.
type WriteState string

const (
	StateIdle                 WriteState = "idle"
	StateSubmitting           WriteState = "submitting"
	StateAwaitingConfirmation WriteState = "awaiting_confirmation"
	StateReconciling          WriteState = "reconciling"
)
