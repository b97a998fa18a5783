// Package action composes three facade topics — "<topic>.goal",
// "<topic>.feedback", and "<topic>.result" — into a long-running,
// goal/feedback/result exchange: a client submits a goal, the server
// may publish zero or more progress feedback updates while it works,
// and eventually publishes one final result. This is a second pattern
// the distilled spec.md leaves to composition (it defines only the
// pub/sub primitive in §2); like reqrep, it needs no new synchronization
// primitive, only a correlation id layered over three independent
// pub/sub topics.
//
// As with reqrep, the underlying ring buffer keeps only the newest
// value per topic, so a feedback update a client doesn't poll for in
// time is simply missed — action does not buffer a feedback history.
package action
