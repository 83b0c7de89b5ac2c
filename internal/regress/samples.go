package regress

// Held sample of historical wholesale observations used to fit the default
// estimator at process start. Feature order matches predict.FeatureNames:
// demand proxy, seasonal multiplier, market volatility, quality indicator,
// location multiplier. Prices are per-bag wholesale in local currency.
var heldSamples = [][]float64{
	{0.82, 1.10, 0.12, 1, 1.2},
	{0.25, 0.80, 0.08, 0, 0.9},
	{0.55, 1.00, 0.10, 0, 1.0},
	{0.91, 1.20, 0.22, 1, 1.2},
	{0.33, 0.90, 0.05, 0, 1.0},
	{0.70, 1.10, 0.15, 1, 1.0},
	{0.48, 1.00, 0.10, 0, 0.9},
	{0.88, 1.20, 0.30, 0, 1.2},
	{0.15, 0.80, 0.06, 0, 0.9},
	{0.62, 0.90, 0.11, 1, 1.0},
	{0.77, 1.10, 0.18, 0, 1.2},
	{0.41, 1.00, 0.09, 1, 0.9},
	{0.95, 1.20, 0.25, 1, 1.2},
	{0.29, 0.80, 0.07, 1, 1.0},
	{0.58, 1.10, 0.13, 0, 1.0},
	{0.67, 0.90, 0.16, 0, 1.2},
	{0.37, 1.00, 0.08, 0, 1.0},
	{0.84, 1.10, 0.20, 1, 0.9},
	{0.22, 0.90, 0.05, 0, 1.2},
	{0.73, 1.20, 0.14, 0, 1.0},
	{0.50, 0.80, 0.12, 1, 1.2},
	{0.60, 1.00, 0.10, 1, 1.0},
	{0.45, 1.10, 0.19, 0, 0.9},
	{0.80, 0.90, 0.09, 1, 1.0},
}

var heldTargets = []float64{
	88.4, 31.2, 49.6, 97.8, 38.5,
	72.1, 42.3, 75.9, 27.4, 58.7,
	68.2, 47.9, 99.5, 40.8, 55.3,
	57.6, 44.1, 70.4, 39.2, 63.8,
	60.5, 59.4, 43.7, 66.9,
}

// TrainDefault fits the default least-squares estimator on the held sample
// data. Called once at startup; the returned model is read-only.
func TrainDefault() (*LeastSquares, error) {
	return Fit(heldSamples, heldTargets)
}
