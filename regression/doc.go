// Package regression provides the estimators used by the viscosity models.
//
// Every model in visco is a sum of terms in log-viscosity space. The
// Arrhenius baseline captures the temperature dependence:
//
//	ln(viscosity) = a + b / T_K
//
// and residual/composition terms are fitted by one of three estimators on a
// design matrix built by the feature package:
//
//   - Ridge: L2-regularized least squares solved via a Cholesky factorization
//     (gonum). Features are standardized before the penalty is applied so the
//     strength of alpha does not depend on feature units.
//   - OLS: ordinary least squares (github.com/sajari/regression).
//   - Forest: a bagged ensemble of CART regression trees with a fixed seed.
//
// # Usage
//
//	fitter, err := regression.NewFitter(format.RegressorRidge, regression.WithAlpha(1.0))
//	if err != nil {
//	    return err
//	}
//	model, err := regression.Fit(fitter, X, y)
//	if err != nil {
//	    return err
//	}
//	residual := model.Estimator.Predict(x)
//
// CrossValidate scores a fitter with shuffled k-fold R², and Snapshot converts
// any fitted estimator into a JSON-serializable form for model artifacts.
package regression
