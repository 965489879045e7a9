// Package domain contains the core model types, repository contracts, and
// sentinel errors shared across the service. It has no dependencies on
// adapters or transport.
package domain
