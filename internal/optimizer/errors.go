package optimizer

import "errors"

var (
	errNoObservations = errors.New("no observations to fit")
	errSingularKernel = errors.New("kernel matrix is not positive definite")
)
