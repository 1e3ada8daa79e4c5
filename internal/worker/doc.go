// Package worker runs the bounded pool that dispatches comments received by
// the webhook ingress. Deliveries are acknowledged once their events are
// queued; workers process them concurrently and rely on the dispatcher's
// dedup gate.
package worker
