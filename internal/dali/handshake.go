package dali

import "context"

// Phase is the state of one query/reply exchange.
type Phase int

// Query phases. An exchange moves forward only; any mismatch or timeout
// jumps straight to PhaseDone.
const (
	PhaseSent Phase = iota
	PhaseAwaitConfirm
	PhaseAwaitReply
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseSent:
		return "sent"
	case PhaseAwaitConfirm:
		return "await_confirm"
	case PhaseAwaitReply:
		return "await_reply"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// QueryExchange is the transport half of a query/reply handshake.
type QueryExchange interface {
	// Flush drops stale frames so the reply cannot be confused with them.
	Flush() int

	// Send writes the request to the bus interface.
	Send(ctx context.Context, request Frame) error

	// Confirm waits for the interface to acknowledge the request. When it
	// returns confirmed=false, result is handed back to the caller as is.
	Confirm(ctx context.Context, request Frame) (result Frame, confirmed bool, err error)

	// AwaitReply waits up to DefaultReceiveTimeout for the backward frame.
	AwaitReply(ctx context.Context) (Frame, error)
}

// QueryResult is the outcome of RunQuery.
type QueryResult struct {
	Reply Frame
	// Phase is where the exchange finished: PhaseDone after a reply (or reply
	// timeout), or the phase that short-circuited it.
	Phase Phase
}

// RunQuery drives one query through Sent, AwaitConfirm and AwaitReply.
//
// Parameters:
//   - ctx: Cancels any wait
//   - x: Transport exchange
//   - request: Forward frame expecting a backward frame
//
// Returns:
//   - QueryResult: The reply, or the frame that ended the exchange early
//   - error: Transport or usage errors only; a missing reply is a
//     StatusTimeout frame
func RunQuery(ctx context.Context, x QueryExchange, request Frame) (QueryResult, error) {
	x.Flush()

	phase := PhaseSent
	if err := x.Send(ctx, request); err != nil {
		return QueryResult{Phase: phase}, err
	}

	phase = PhaseAwaitConfirm
	result, confirmed, err := x.Confirm(ctx, request)
	if err != nil {
		return QueryResult{Phase: phase}, err
	}
	if !confirmed {
		return QueryResult{Reply: result, Phase: phase}, nil
	}

	phase = PhaseAwaitReply
	reply, err := x.AwaitReply(ctx)
	if err != nil {
		return QueryResult{Phase: phase}, err
	}
	return QueryResult{Reply: reply, Phase: PhaseDone}, nil
}
