package messages

// ResetSignal distinguishes the reasons for resetting the commit pipeline.
type ResetSignal int

const (
	// ResetTargetRound requests clearing pipeline state so consensus can
	// re-synchronize to a target round.
	ResetTargetRound ResetSignal = iota
	// ResetStop requests clearing pipeline state and shutting the driver down.
	ResetStop
)

// ResetAck confirms that a reset has fully completed: the buffer is empty and
// all in-flight phase work has drained.
type ResetAck struct{}

// ResetRequest asks the pipeline driver to discard all in-flight work.
type ResetRequest struct {
	Signal ResetSignal
	// TargetRound is only meaningful for ResetTargetRound.
	TargetRound uint64
	// Done receives exactly one ack once the reset has completed.
	Done chan<- ResetAck
}
