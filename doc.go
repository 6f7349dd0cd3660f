// Package axon is a cooperative, forking execution engine for graphs
// of neurons.
//
// The engine is in package 'core'.  Package 'graph' is a small
// in-memory graph with a YAML loader, 'service' solves neurons for
// clients, and the commands are in 'cmd'.
package axon
