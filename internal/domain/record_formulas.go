package domain

// maxEstimatedReps is the highest rep count the 1RM estimators are trusted for.
// Above it the raw weight is used as the estimate.
const maxEstimatedReps = 12

// EstimateOneRepMax returns the estimated one-rep max for a set.
// For 2..12 reps it is the mean of the Epley and Brzycki estimates; for a
// single rep or more than 12 reps the weight itself is returned.
func EstimateOneRepMax(weight float64, reps int) float64 {
	if reps == 1 || reps > maxEstimatedReps {
		return weight
	}
	if reps <= 0 {
		return 0
	}
	return (epley(weight, reps) + brzycki(weight, reps)) / 2
}

// epley: weight * (1 + reps/30)
func epley(weight float64, reps int) float64 {
	return weight * (1 + float64(reps)/30)
}

// brzycki: weight * (36 / (37 - reps))
func brzycki(weight float64, reps int) float64 {
	return weight * (36 / float64(37-reps))
}
