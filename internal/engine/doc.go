// Package engine hosts objects on a single apartment. It resolves kinds via
// the registry, constructs objects through the factory so every call runs on
// the apartment's worker, persists lifecycle changes and invocation history
// in the store, and publishes them to event subscribers in real time.
package engine
