// Package history keeps an optional local ledger of finished builds so a demo
// run can be inspected after the fact. The remote service owns the canonical
// counts; this is a convenience sidecar and losing rows is acceptable.
package history
