// Package tool is the registry of remotely invocable operations.
//
// The package is split by concern:
//   - descriptor: tool descriptors, typed parameter schemas, handlers
//   - type_system: the V1 field types and argument coercion
//   - validate: descriptor and argument diagnostics
//   - registry: registration, discovery, and invocation
//   - schema: JSON Schema rendering for discovery
//
// A Registry is populated once at startup, sealed, and then only read. The
// package is transport-agnostic; the mcp package exposes it over the wire.
package tool
