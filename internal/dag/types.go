package dag

import "sync"

// Graph is a collection of nodes and their dependencies, representing a DAG.
// All operations on the graph are concurrency-safe.
type Graph struct {
	// mutex protects the nodes map during concurrent access.
	mutex sync.RWMutex
	// nodes stores all nodes in the graph, keyed by their unique ID.
	nodes map[string]*node
}

// node is un-exported so callers work with string IDs only.
type node struct {
	id string
	// deps are the nodes this node waits for (predecessors).
	deps map[string]*node
	// dependents are the nodes waiting for this one (successors).
	dependents map[string]*node
}

// CycleError reports a dependency cycle as the ordered list of node IDs
// along it, with the first ID repeated at the end.
type CycleError struct {
	Path []string
}
