// Package dataset holds viscosity measurements and turns raw rows into clean
// training samples.
//
// Raw rows (Record) come from the master CSV, from formulation mirrors or from
// callers building datasets in memory. Any numeric field may be missing.
// Clean normalizes units, classifies raw oils, imputes potency and terpene
// content from one another and rejects physically impossible rows, returning
// Samples that downstream packages can use without further checks.
package dataset
