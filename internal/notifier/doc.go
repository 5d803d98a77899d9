// Package notifier delivers price alerts to the configured chat.
//
// Notify only enqueues. A single background worker drains the queue through
// a token-bucket limiter and retries failed sends with jittered exponential
// backoff. Delivery failures are logged and published on the event bus but
// never returned to the caller.
package notifier
