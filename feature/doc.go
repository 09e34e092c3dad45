// Package feature builds the model input vectors.
//
// A feature vector is an ordered list of tagged values. The order is fixed at
// training time and stored with the model as a Schema; at prediction time the
// caller's inputs are assembled against that schema so the ordering can never
// drift between training and inference.
//
// Inputs are always fractions in [0, 1]. Callers holding percentages should
// pass them through Fraction first.
package feature
