// Package handler provides the dispatch strategies deciding when and where
// a subscriber method runs relative to the firing call.
//
// # Strategies
//
//   - Inline (OnPublisher): runs on the firing goroutine. The publisher
//     blocks until the method returns and sees any mutation of the event
//     arguments as well as any unhandled failure.
//
//   - Background (OnBackground): queues the call to a dedicated worker.
//     Calls on one worker run in FIFO order; the firing call returns
//     immediately.
//
//   - UserInterface (OnUserInterface, OnUserInterfaceAsync): runs on the
//     UI goroutine captured at registration (see package uithread). The
//     synchronous variant waits for completion.
//
//   - Pooled (FireAndForget): runs on the shared worker pool with no
//     ordering guarantee.
//
// # Failures
//
// The Invoker handed to Handle already reports subscriber failures to the
// broker extensions. What it returns is the failure nobody handled:
// synchronous strategies return it to the firing call, asynchronous ones
// log it and drop it.
//
// # Usage
//
//	broker.Subscribe(d, "topic://clock/tick", (*View).OnTick,
//	    broker.WithHandler(handler.OnBackground()),
//	)
package handler
