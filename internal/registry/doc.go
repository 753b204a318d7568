// Package registry manages embedding backend descriptors and their
// priority ordering.
//
// A Registry is constructed explicitly by the host process and passed
// by reference into the embedding gateway; there is no global mutable
// state. Descriptors are created at configuration load, validated on
// Register, and mutated only through Enable, Disable, and SetPriority.
// Backends are never deleted at runtime, only deactivated.
//
// # Ordering
//
// EnabledOrdered returns enabled backends sorted ascending by priority
// (priority 1 before priority 2), with ties broken by registration
// order. The ordering is stable across repeated calls with unchanged
// configuration, which makes failover sequences deterministic.
//
// # Validation
//
// Register rejects descriptors that violate the configuration
// invariants: a self-hosted kind (ollama, sentence_transformer)
// without an endpoint, a hosted kind (openai, huggingface) without a
// credential, a non-positive timeout, or negative retries. Validate
// additionally fails when the embedding feature is globally on but no
// backend is enabled.
//
// # Concurrency
//
// All methods are safe for concurrent use. Mutations take effect only
// for calls starting after the mutation; callers that need a
// consistent view across several operations hold the EnabledOrdered
// snapshot.
package registry
