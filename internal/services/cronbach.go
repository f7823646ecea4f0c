package services

// CronbachAlpha computes Cronbach's alpha for a matrix shaped
// [nParticipants][nItems]. Population variance (divide by N) is used
// throughout, so perfectly correlated items give 1. The result is clamped to
// [0, 1]; ragged or degenerate input gives 0.
func CronbachAlpha(matrix [][]float64) float64 {
	n := len(matrix)
	if n == 0 {
		return 0
	}
	k := len(matrix[0])
	if k < 2 {
		return 0
	}
	totals := make([]float64, n)
	for i, row := range matrix {
		if len(row) != k {
			return 0
		}
		for _, v := range row {
			totals[i] += v
		}
	}

	var sumItemVars float64
	column := make([]float64, n)
	for j := 0; j < k; j++ {
		for i := range matrix {
			column[i] = matrix[i][j]
		}
		sumItemVars += populationVariance(column)
	}
	totalVar := populationVariance(totals)
	if totalVar == 0 {
		return 0
	}

	kf := float64(k)
	alpha := (kf / (kf - 1)) * (1 - sumItemVars/totalVar)
	switch {
	case alpha < 0:
		return 0
	case alpha > 1:
		return 1
	}
	return alpha
}

func populationVariance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var sum float64
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return sum / float64(len(xs))
}
