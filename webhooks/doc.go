// Package webhooks verifies inbound deliveries and drives them through the
// ingest pipeline:
// verify -> normalize -> resolve recipients -> persist (dedupe) -> fan-out.
// A delivery that fails verification produces no side effects.
package webhooks
