// Package data provides the dataset loader and the deterministic, seeded
// splitting utilities consumed by the predictor orchestrator.
package data

import (
	"fmt"
	"math/rand"
)

// Set is a labeled dataset: one feature vector, one scalar label, and one
// identifier per row.
type Set struct {
	X     [][]float64
	Y     []float64
	Names []string
}

// SplitTestFromTrainVal shuffles the rows with the given seed and splits off
// the requested fraction as the test subset. Names may be nil.
func SplitTestFromTrainVal(x [][]float64, y []float64, names []string, seed int64, testingRatio float64) (
	xTest [][]float64, yTest []float64, xTrain [][]float64, yTrain []float64, namesTest, namesTrain []string) {
	n := len(x)
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	nTest := int(float64(n) * testingRatio)

	xTest = make([][]float64, 0, nTest)
	yTest = make([]float64, 0, nTest)
	xTrain = make([][]float64, 0, n-nTest)
	yTrain = make([]float64, 0, n-nTest)
	for i, idx := range perm {
		if i < nTest {
			xTest = append(xTest, x[idx])
			yTest = append(yTest, y[idx])
			if names != nil {
				namesTest = append(namesTest, names[idx])
			}
		} else {
			xTrain = append(xTrain, x[idx])
			yTrain = append(yTrain, y[idx])
			if names != nil {
				namesTrain = append(namesTrain, names[idx])
			}
		}
	}
	return xTest, yTest, xTrain, yTrain, namesTest, namesTrain
}

// SplitInnerValFromTrainData shuffles the training rows with the given seed
// and keeps trainingRatio of them for training; the rest becomes the inner
// validation subset used for early stopping.
func SplitInnerValFromTrainData(x [][]float64, y []float64, seed int64, trainingRatio float64) (
	xTrain, xInnerVal [][]float64, yTrain, yInnerVal []float64) {
	n := len(x)
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	nTrain := int(float64(n) * trainingRatio)

	xTrain = make([][]float64, 0, nTrain)
	yTrain = make([]float64, 0, nTrain)
	xInnerVal = make([][]float64, 0, n-nTrain)
	yInnerVal = make([]float64, 0, n-nTrain)
	for i, idx := range perm {
		if i < nTrain {
			xTrain = append(xTrain, x[idx])
			yTrain = append(yTrain, y[idx])
		} else {
			xInnerVal = append(xInnerVal, x[idx])
			yInnerVal = append(yInnerVal, y[idx])
		}
	}
	return xTrain, xInnerVal, yTrain, yInnerVal
}

// PrepareFoldedData shuffles the rows with the given seed and partitions
// them into folds disjoint groups. Group sizes differ by at most one row.
func PrepareFoldedData(x [][]float64, y []float64, folds int, seed int64) ([][][]float64, [][]float64, error) {
	if folds < 1 {
		return nil, nil, fmt.Errorf("fold count must be at least 1, got %d", folds)
	}
	n := len(x)
	if n < folds {
		return nil, nil, fmt.Errorf("cannot partition %d rows into %d folds", n, folds)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)

	foldedXs := make([][][]float64, folds)
	foldedYs := make([][]float64, folds)
	base := n / folds
	rem := n % folds
	pos := 0
	for f := 0; f < folds; f++ {
		size := base
		if f < rem {
			size++
		}
		foldedXs[f] = make([][]float64, 0, size)
		foldedYs[f] = make([]float64, 0, size)
		for i := 0; i < size; i++ {
			idx := perm[pos]
			foldedXs[f] = append(foldedXs[f], x[idx])
			foldedYs[f] = append(foldedYs[f], y[idx])
			pos++
		}
	}
	return foldedXs, foldedYs, nil
}

// PrepareDataOneFold holds out fold currentFold as the outer validation
// subset, pools the remaining folds, and carves an inner validation subset
// from the pool with a fresh shuffle of the given seed.
func PrepareDataOneFold(foldedXs [][][]float64, foldedYs [][]float64, currentFold int, seed int64, trainingRatio float64) (
	xTrain, xInnerVal, xOuterVal [][]float64, yTrain, yInnerVal, yOuterVal []float64, err error) {
	if currentFold < 0 || currentFold >= len(foldedXs) {
		return nil, nil, nil, nil, nil, nil, fmt.Errorf("fold index %d out of range [0, %d)", currentFold, len(foldedXs))
	}

	xOuterVal = foldedXs[currentFold]
	yOuterVal = foldedYs[currentFold]

	var xPool [][]float64
	var yPool []float64
	for f := range foldedXs {
		if f == currentFold {
			continue
		}
		xPool = append(xPool, foldedXs[f]...)
		yPool = append(yPool, foldedYs[f]...)
	}

	xTrain, xInnerVal, yTrain, yInnerVal = SplitInnerValFromTrainData(xPool, yPool, seed, trainingRatio)
	return xTrain, xInnerVal, xOuterVal, yTrain, yInnerVal, yOuterVal, nil
}
