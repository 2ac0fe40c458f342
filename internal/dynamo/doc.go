// Package dynamo provides the primitives shared by every stage of a run.
//
// The package defines the flattened coordinate layout and the error
// taxonomy that the driver reports at the top level:
//
//   - [Coords]: positions, momenta or derivatives of all atoms of all systems
//   - [Error]: a fatal condition tagged with one of the sentinel kinds
//
// # Layout
//
// Coordinates are stored atom-major, then dimension, then system:
//
//	index = atom*3*nSystem + dim*nSystem + system
//
// Only nSystem == 1 is accepted by the driver, so for a single system the
// layout reduces to atom*3 + dim.
package dynamo
