package main

import (
	"context"
	"time"
)

// defaultDispatchTimeout bounds how long a client waits for the daemon loop
// to process its action.
const defaultDispatchTimeout = 2 * time.Second

// dispatch submits a to the daemon loop and waits for its outcome.
//
// Enqueueing never blocks: a full queue fails with ErrQueueFull. Waiting is
// bounded by timeout and ctx.
func dispatch(ctx context.Context, events chan<- Event, a Action, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	reply := make(chan error, 1)

	select {
	case events <- AwaitedEvent{Event: a, Reply: reply}:
	default:
		return ErrQueueFull
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-reply:
		return err
	case <-timer.C:
		return ErrNoReply
	case <-ctx.Done():
		return ctx.Err()
	}
}

// requestSnapshot asks the daemon loop for a state snapshot.
func requestSnapshot(ctx context.Context, events chan<- Event, timeout time.Duration) (StateSnapshot, error) {
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	reply := make(chan StateSnapshot, 1)

	select {
	case events <- RequestStateSnapshot{Reply: reply}:
	default:
		return StateSnapshot{}, ErrQueueFull
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case snap := <-reply:
		return snap, nil
	case <-timer.C:
		return StateSnapshot{}, ErrNoReply
	case <-ctx.Done():
		return StateSnapshot{}, ctx.Err()
	}
}
