// Package bet implements the sensitivity core of the Butler–Estep–Tavener
// (BET) method for stochastic inverse problems: gradient-based sensitivity
// estimation of a forward map and combinatorial selection of the quantities
// of interest (QoIs) that best condition the inversion.
//
// Given sampled parameter/output pairs of a forward map, the package
// approximates local Jacobians at a set of cluster centers via weighted
// least squares with radial-basis-function weights, scores candidate QoI
// subsets by the singular values of the row-restricted Jacobians, and
// searches over subsets to find those that minimize either the expected
// inverse-set volume ("measure") or the conditioning of the induced
// inversion ("skewness").
//
// Basic usage:
//
//	disc, err := bet.NewDiscretization(inputs, outputs)
//	jac, centers, err := bet.EstimateGradientsRBF(disc, bet.DefaultGradientConfig())
//	best, err := bet.ChooseOptimalQoIs(jac, bet.DefaultChooseConfig())
//	// best[i].Sets is the ranked list of QoI index subsets of size best[i].Size
//
// # Search strategy
//
// Size-2 subsets are scored exhaustively over the candidate pool. Larger
// subsets are grown greedily from the best-ranked smaller subsets, bounded
// by the similarity and score tolerances in ChooseConfig. The greedy
// expansion is a heuristic: it bounds runtime to near-linear in the output
// dimension per subset size, but does not guarantee the global optimum for
// sizes above 2.
//
// Monte-Carlo probability computation, simple-function approximation of the
// data-space measure, and result persistence are external collaborators and
// out of scope; the package exposes only in-memory numerical operations.
package bet
