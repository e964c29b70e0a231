// Package broadcast fans typed messages out to many subscribers over
// buffered channels. statekit uses it to stream completion events.
//
//	b := broadcast.NewMemoryBroadcaster[statemachine.StateChanged](64)
//	defer b.Close()
//
//	sub := b.Subscribe(ctx)
//	for msg := range sub.Receive(ctx) {
//	    fmt.Println(msg.Data.EntityID, msg.Data.State)
//	}
//
// Broadcast never blocks: a subscriber with a full buffer misses the message
// and MemoryBroadcaster counts the drop. Subscriptions end when their context
// is done, when they are closed, or when the broadcaster is closed.
package broadcast
