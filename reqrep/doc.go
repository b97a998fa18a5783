// Package reqrep composes two facade topics — "<topic>.req" and
// "<topic>.rep" — into a correlated request/response exchange. This is
// one of the patterns the original implementation this spec was
// distilled from supports directly but which spec.md's own module list
// leaves to composition on top of the publish/subscribe core (spec.md
// §2's pub/sub primitive is the only wire protocol it defines); reqrep
// is that composition, built entirely out of two facade.Publisher/
// facade.Subscriber pairs plus a sequence number for correlation.
//
// A Client publishes a request envelope carrying a fresh sequence
// number, then waits on the reply topic until it observes a response
// envelope whose sequence number matches; anything else (a stale reply,
// or a foreign client's reply sharing the topic) is discarded. A Server
// reads requests in FIFO-as-observed order, dispatches them to a
// handler, and publishes each response tagged with its request's
// sequence number.
//
// Because the underlying ring buffer keeps only the newest value per
// topic (spec.md §4.2.4), a Server that falls behind a burst of
// requests — or a Client that is slow to read — can silently miss
// intermediate ones. reqrep does not add queuing or retries beyond
// this; it is a thin correlation layer, not a message broker.
package reqrep
