// Package trainer fits viscosity models from measurement data.
//
// For each media type with enough clean rows the trainer fits:
//
//  1. an Arrhenius baseline on 1/T_K -> ln(viscosity)
//  2. a residual regressor on potency/terpene features -> ln(viscosity) - baseline
//  3. when at least MinCompositionRows rows carry a compound breakdown, a
//     composition regressor on compound fractions -> what 1 and 2 still miss
//
// and optionally a consolidated variant whose residual features include
// one-hot terpene identities. Media types are trained concurrently. A media
// type that cannot be trained is skipped and reported; it never fails the run.
package trainer
