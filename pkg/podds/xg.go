package podds

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/richard-senior/podds/internal/logger"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// XGStrategy turns a shot into a goal probability in [0,1]
type XGStrategy interface {
	Name() string
	PredictXG(shot ShotEvent) float64
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

//////////////////////////////////////////////////////////////////
////// HEURISTIC
//////////////////////////////////////////////////////////////////

// HeuristicStrategy is the closed form estimate that needs no training data
type HeuristicStrategy struct{}

func (HeuristicStrategy) Name() string { return "heuristic" }

func (HeuristicStrategy) PredictXG(shot ShotEvent) float64 {
	distanceFactor := math.Max(0, 1-shot.Distance/30)
	angleFactor := 1 - math.Abs(shot.Angle)/90
	xg := distanceFactor * angleFactor
	if shot.IsBigChance {
		xg += 0.3
	}
	if shot.IsHeader {
		xg -= 0.2
	}
	return clamp01(xg)
}

//////////////////////////////////////////////////////////////////
////// DISTANCE BANDS
//////////////////////////////////////////////////////////////////

// DistanceBandStrategy assigns a base value per distance band and scales it by
// angle and body part. Coarser than the heuristic, kept for comparison runs.
type DistanceBandStrategy struct{}

func (DistanceBandStrategy) Name() string { return "distance_band" }

func (DistanceBandStrategy) PredictXG(shot ShotEvent) float64 {
	var xg float64
	switch {
	case shot.Distance < 6:
		xg = 0.3
	case shot.Distance < 12:
		xg = 0.1
	case shot.Distance < 18:
		xg = 0.05
	default:
		xg = 0.02
	}
	xg *= 1 - math.Abs(shot.Angle)/90
	switch {
	case shot.IsHeader || shot.BodyPart == BodyPartHead:
		xg *= 0.7
	case shot.BodyPart == BodyPartOther:
		xg *= 0.6
	}
	return clamp01(xg)
}

//////////////////////////////////////////////////////////////////
////// TRAINED CLASSIFIER
//////////////////////////////////////////////////////////////////

const numShotFeatures = 8

func shotFeatures(shot ShotEvent) []float64 {
	return []float64{
		shot.Distance,
		math.Abs(shot.Angle),
		boolFeature(shot.IsBigChance),
		boolFeature(shot.IsHeader),
		boolFeature(shot.IsFoot()),
		float64(shot.DefendersBetween),
		boolFeature(shot.IsFastBreak),
		shot.GoalkeeperDistance,
	}
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func sigmoid(z float64) float64 {
	if z > 20 {
		z = 20
	} else if z < -20 {
		z = -20
	}
	return 1 / (1 + math.Exp(-z))
}

// LogisticStrategy is an L2 regularised logistic regression over standardised shot features
type LogisticStrategy struct {
	Weights []float64 // bias first, then one per feature
	Mean    []float64
	Scale   []float64
}

func (*LogisticStrategy) Name() string { return "logistic" }

// PredictXG falls back to the heuristic when the strategy was not built by TrainLogistic
func (l *LogisticStrategy) PredictXG(shot ShotEvent) float64 {
	if !l.fitted() {
		return HeuristicStrategy{}.PredictXG(shot)
	}
	return sigmoid(l.score(l.standardise(shotFeatures(shot))))
}

func (l *LogisticStrategy) fitted() bool {
	return l != nil && len(l.Weights) == numShotFeatures+1 &&
		len(l.Mean) == numShotFeatures && len(l.Scale) == numShotFeatures
}

func (l *LogisticStrategy) standardise(raw []float64) []float64 {
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = (v - l.Mean[i]) / l.Scale[i]
	}
	return out
}

func (l *LogisticStrategy) score(x []float64) float64 {
	return l.Weights[0] + floats.Dot(l.Weights[1:], x)
}

// TrainLogistic fits a classifier on labelled shots. Both outcomes must be present.
func TrainLogistic(shots []ShotEvent, l2 float64) (*LogisticStrategy, error) {
	if len(shots) == 0 {
		return nil, &InsufficientDataWarning{Component: "xg train", Reason: "no shots"}
	}
	goals := 0
	for _, s := range shots {
		if s.IsGoal {
			goals++
		}
	}
	if goals == 0 || goals == len(shots) {
		return nil, &InsufficientDataWarning{Component: "xg train", Reason: "shots must include goals and misses"}
	}

	n := len(shots)
	raw := make([][]float64, n)
	labels := make([]float64, n)
	for i, s := range shots {
		raw[i] = shotFeatures(s)
		labels[i] = boolFeature(s.IsGoal)
	}

	model := &LogisticStrategy{
		Mean:  make([]float64, numShotFeatures),
		Scale: make([]float64, numShotFeatures),
	}
	column := make([]float64, n)
	for j := 0; j < numShotFeatures; j++ {
		for i := range raw {
			column[i] = raw[i][j]
		}
		mean, std := stat.MeanStdDev(column, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		model.Mean[j] = mean
		model.Scale[j] = std
	}

	x := make([][]float64, n)
	for i := range raw {
		x[i] = model.standardise(raw[i])
	}

	problem := optimize.Problem{
		Func: func(w []float64) float64 {
			loss := 0.0
			for i := range x {
				p := sigmoid(w[0] + floats.Dot(w[1:], x[i]))
				p = math.Min(math.Max(p, 1e-12), 1-1e-12)
				loss -= labels[i]*math.Log(p) + (1-labels[i])*math.Log(1-p)
			}
			reg := 0.5 * l2 * floats.Dot(w[1:], w[1:])
			return loss/float64(n) + reg
		},
		Grad: func(grad, w []float64) {
			for k := range grad {
				grad[k] = 0
			}
			for i := range x {
				diff := sigmoid(w[0]+floats.Dot(w[1:], x[i])) - labels[i]
				grad[0] += diff
				for j, v := range x[i] {
					grad[j+1] += diff * v
				}
			}
			for k := range grad {
				grad[k] /= float64(n)
			}
			for k := 1; k < len(grad); k++ {
				grad[k] += l2 * w[k]
			}
		},
	}

	initial := make([]float64, numShotFeatures+1)
	settings := &optimize.Settings{
		GradientThreshold: 1e-6,
		MajorIterations:   500,
	}
	result, err := optimize.Minimize(problem, initial, settings, &optimize.LBFGS{})
	if err != nil {
		if result == nil {
			return nil, fmt.Errorf("xg classifier optimisation failed: %w", err)
		}
		logger.Warn("xG classifier optimisation stopped early", err)
	}
	model.Weights = result.X
	return model, nil
}

//////////////////////////////////////////////////////////////////
////// ESTIMATOR
//////////////////////////////////////////////////////////////////

// XGEstimator predicts shot and match xG with a swappable strategy
type XGEstimator struct {
	mu       sync.RWMutex
	strategy XGStrategy
	l2       float64
}

// NewXGEstimator starts with strategy, or the heuristic when nil
func NewXGEstimator(strategy XGStrategy) *XGEstimator {
	if strategy == nil {
		strategy = HeuristicStrategy{}
	}
	return &XGEstimator{strategy: strategy, l2: 0.01}
}

func (x *XGEstimator) Strategy() XGStrategy {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.strategy
}

func (x *XGEstimator) SetStrategy(s XGStrategy) {
	if s == nil {
		s = HeuristicStrategy{}
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.strategy = s
}

// IsTrained is true once a classifier has been fitted and installed
func (x *XGEstimator) IsTrained() bool {
	l, ok := x.Strategy().(*LogisticStrategy)
	return ok && l.fitted()
}

// Train fits a classifier and switches to it. Without usable data the current
// strategy stays in place and the condition is logged.
func (x *XGEstimator) Train(shots []ShotEvent) error {
	model, err := TrainLogistic(shots, x.l2)
	if err != nil {
		var w *InsufficientDataWarning
		if errors.As(err, &w) {
			logger.Warn(w.Error())
			return nil
		}
		return err
	}
	x.SetStrategy(model)
	logger.Info("xG classifier trained on", len(shots), "shots")
	return nil
}

func (x *XGEstimator) PredictXG(shot ShotEvent) float64 {
	return x.Strategy().PredictXG(shot)
}

// CalculateMatchXG sums shot xG per side
func (x *XGEstimator) CalculateMatchXG(homeShots, awayShots []ShotEvent) (float64, float64) {
	s := x.Strategy()
	home, away := 0.0, 0.0
	for _, shot := range homeShots {
		home += s.PredictXG(shot)
	}
	for _, shot := range awayShots {
		away += s.PredictXG(shot)
	}
	return home, away
}

// ShotStatsXG approximates team xG from aggregate shot counts
func ShotStatsXG(s ShotStats) float64 {
	return float64(s.ShotsInsideBox)*0.1 + float64(s.ShotsOnTarget)*0.07 + float64(s.ShotsOutsideBox)*0.02
}
