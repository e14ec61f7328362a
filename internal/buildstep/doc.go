// Package buildstep implements the build step graph.
//
// A Step declares the items it consumes (Inputs) and the items it produces
// (Outputs). Plan wires every input to the single step that produces it,
// rejects cycles and fixes a deterministic order: a topological order in
// which steps that become ready together are taken by name.
//
// Execute runs the plan on a pool of workers. Independent steps may run in
// parallel, but each step's recorded actions are collected separately and
// reported in plan order, so the completion order of workers never leaks
// into the result.
//
// A failing step cancels the rest of the run; its dependents are skipped.
package buildstep
