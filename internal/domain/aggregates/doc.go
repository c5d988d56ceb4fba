// Package aggregates holds the processing-step aggregate contract, its inputs and results, and the
// coded Error every write returns.
package aggregates
