// Package core contains the integration domain model, contracts, the
// platform registry and the OAuth credential lifecycle. Provider, transport
// and storage adapters depend on this package; core never imports them.
package core
