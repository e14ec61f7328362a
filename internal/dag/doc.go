// Package dag is a small, concurrency-safe directed acyclic graph keyed by
// string IDs. The build step graph uses it to validate step dependencies and
// to derive a deterministic execution order.
package dag
