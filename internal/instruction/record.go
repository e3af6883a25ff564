package instruction

// Status is the terminal outcome of one instruction.
type Status int32

const (
	StatusApplied Status = iota
	StatusRejected
)

func (s Status) String() string {
	if s == StatusRejected {
		return "rejected"
	}
	return "applied"
}

// Record is the settlement log entry for one processed instruction. Every
// instruction, applied or rejected, yields exactly one record; rejected
// instructions mutate no state but their outcome is still recorded and
// published.
type Record struct {
	Sequence       int64
	IdempotencyKey string
	Type           Type
	Market         *string
	TimestampMs    int64
	SourceSequence int64

	Status       Status
	RejectReason string
	RejectDetail string

	StateHash [32]byte
	PrevHash  [32]byte
}
