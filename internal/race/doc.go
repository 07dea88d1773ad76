// Package race runs a cheap guard and an expensive producer concurrently for a
// single request and cancels the producer the moment the guard rejects.
//
// The coordinator suspends only on the guard. A rejection (or a guard failure)
// cancels the producer's private context and waits for the producer goroutine
// to confirm termination before returning. An artifact is handed to the caller
// only after the guard has accepted, so a producer that finishes microseconds
// after a rejection is still reported as Blocked.
//
// Usage:
//
//	out := race.Run(ctx, req, guard, producer, race.Options{
//	    GuardTimeout:    2 * time.Second,
//	    ProducerTimeout: 60 * time.Second,
//	})
//	switch out.Kind {
//	case race.Completed:
//	    use(out.Artifact)
//	case race.Blocked:
//	    refuse(out.Reason)
//	}
//
// Every invocation is independent: Run holds no state between calls.
package race
