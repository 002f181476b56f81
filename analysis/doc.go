// Package analysis runs a parsed batch through the detection engine in one
// of three execution modes and merges partition results into one Metrics.
package analysis
