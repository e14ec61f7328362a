// Package registry provides the central "glue" for the module system.
//
// Modules register four kinds of things: capability contracts (what may be
// recorded at build time), binding factories (the live implementations the
// runtime replays against), build steps, and configuration namespaces.
//
// During application startup, the registry is populated and then validated to
// ensure that every contract and its live binding agree on operation names
// and parameter types, so a sequence that records cleanly also replays
// cleanly.
package registry
