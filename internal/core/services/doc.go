// Package services implements the driving port interfaces.
// Services hold the comment anchoring and propagation logic and
// orchestrate calls to driven ports (adapters).
//
// Services never import adapters; stores, indexes and sources are
// injected through the driven ports.
package services
