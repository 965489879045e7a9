// Package app is the application layer. It orchestrates the channel/session
// lifecycle, token issuance, and follow use cases against the durable stores
// and the external room provider.
package app
