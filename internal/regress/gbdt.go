package regress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ArtifactFileName is the serialized model file inside a model artifact
// directory.
const ArtifactFileName = "model.json"

// TrainConfig holds the gradient boosting hyperparameters.
type TrainConfig struct {
	NumTrees       int     `json:"num_trees" yaml:"num_trees"`
	MaxDepth       int     `json:"max_depth" yaml:"max_depth"`
	LearningRate   float64 `json:"learning_rate" yaml:"learning_rate"`
	MinSamplesLeaf int     `json:"min_samples_leaf" yaml:"min_samples_leaf"`
}

// DefaultTrainConfig mirrors common gradient-boosted regressor defaults.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		NumTrees:       100,
		MaxDepth:       4,
		LearningRate:   0.1,
		MinSamplesLeaf: 3,
	}
}

// treeNode is one node of a regression tree. Leaf nodes carry Value; internal
// nodes carry the split feature index and threshold.
type treeNode struct {
	Leaf      bool      `json:"leaf"`
	Value     float64   `json:"value,omitempty"`
	Feature   int       `json:"feature,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	Left      *treeNode `json:"left,omitempty"`
	Right     *treeNode `json:"right,omitempty"`
}

func (n *treeNode) predict(row []float64) float64 {
	for !n.Leaf {
		if row[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Value
}

// GBDT is a least-squares gradient-boosted regression tree ensemble. Each
// boosting round fits a depth-limited regression tree to the current
// residuals and adds its shrunken predictions to the ensemble.
type GBDT struct {
	Config      TrainConfig `json:"config"`
	Features    []string    `json:"feature_names"`
	Base        float64     `json:"base_prediction"`
	Trees       []*treeNode `json:"trees"`
	GainByIndex []float64   `json:"gain_by_index,omitempty"`
}

// NewGBDT creates an untrained GBDT with the given hyperparameters and the
// ordered feature-name schema it will be trained and invoked with.
func NewGBDT(cfg TrainConfig, featureNames []string) *GBDT {
	if cfg.NumTrees <= 0 {
		cfg = DefaultTrainConfig()
	}
	names := make([]string, len(featureNames))
	copy(names, featureNames)
	return &GBDT{Config: cfg, Features: names}
}

// FeatureNames returns the ordered feature schema recorded for this model.
func (m *GBDT) FeatureNames() []string {
	out := make([]string, len(m.Features))
	copy(out, m.Features)
	return out
}

// Fit trains the ensemble on the feature matrix X and label vector y.
func (m *GBDT) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 || len(X) != len(y) {
		return fmt.Errorf("training data has %d rows for %d labels", len(X), len(y))
	}
	for i, row := range X {
		if len(row) != len(m.Features) {
			return fmt.Errorf("row %d has %d values, schema has %d features", i, len(row), len(m.Features))
		}
	}

	var sum float64
	for _, v := range y {
		sum += v
	}
	m.Base = sum / float64(len(y))
	m.Trees = m.Trees[:0]
	m.GainByIndex = make([]float64, len(m.Features))

	residual := make([]float64, len(y))
	pred := make([]float64, len(y))
	for i := range y {
		pred[i] = m.Base
	}

	idx := make([]int, len(y))
	for i := range idx {
		idx[i] = i
	}

	for t := 0; t < m.Config.NumTrees; t++ {
		for i := range y {
			residual[i] = y[i] - pred[i]
		}
		root := m.buildNode(X, residual, idx, m.Config.MaxDepth)
		m.Trees = append(m.Trees, root)
		for i, row := range X {
			pred[i] += m.Config.LearningRate * root.predict(row)
		}
	}
	return nil
}

// Predict returns the ensemble prediction for each row of X.
func (m *GBDT) Predict(X [][]float64) ([]float64, error) {
	if len(m.Trees) == 0 {
		return nil, fmt.Errorf("model has not been trained")
	}
	out := make([]float64, len(X))
	for i, row := range X {
		if len(row) != len(m.Features) {
			return nil, fmt.Errorf("row %d has %d values, schema has %d features", i, len(row), len(m.Features))
		}
		v := m.Base
		for _, tree := range m.Trees {
			v += m.Config.LearningRate * tree.predict(row)
		}
		out[i] = v
	}
	return out, nil
}

// Importance returns the total squared-error reduction accumulated by splits
// on each feature, keyed by feature name. Untrained models return an empty
// map.
func (m *GBDT) Importance() map[string]float64 {
	out := make(map[string]float64, len(m.Features))
	for i, name := range m.Features {
		if i < len(m.GainByIndex) && m.GainByIndex[i] > 0 {
			out[name] = m.GainByIndex[i]
		}
	}
	return out
}

// buildNode grows one regression tree node over the sample indices idx,
// splitting greedily on the largest squared-error reduction.
func (m *GBDT) buildNode(X [][]float64, target []float64, idx []int, depth int) *treeNode {
	leafValue := mean(target, idx)
	if depth == 0 || len(idx) < 2*m.Config.MinSamplesLeaf {
		return &treeNode{Leaf: true, Value: leafValue}
	}

	bestGain := 0.0
	bestFeature := -1
	bestThreshold := 0.0
	baseErr := sumSquaredError(target, idx, leafValue)

	sorted := make([]int, len(idx))
	for feat := 0; feat < len(m.Features); feat++ {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, b int) bool {
			return X[sorted[a]][feat] < X[sorted[b]][feat]
		})

		// Prefix sums over the sorted order give O(1) split evaluation.
		prefixSum := 0.0
		prefixSq := 0.0
		totalSum := 0.0
		totalSq := 0.0
		for _, i := range sorted {
			totalSum += target[i]
			totalSq += target[i] * target[i]
		}

		for k := 0; k < len(sorted)-1; k++ {
			i := sorted[k]
			prefixSum += target[i]
			prefixSq += target[i] * target[i]

			left := k + 1
			right := len(sorted) - left
			if left < m.Config.MinSamplesLeaf || right < m.Config.MinSamplesLeaf {
				continue
			}
			// Skip non-separating positions (equal feature values).
			if X[sorted[k]][feat] == X[sorted[k+1]][feat] {
				continue
			}

			leftErr := prefixSq - prefixSum*prefixSum/float64(left)
			rightSum := totalSum - prefixSum
			rightErr := (totalSq - prefixSq) - rightSum*rightSum/float64(right)
			gain := baseErr - leftErr - rightErr
			if gain > bestGain {
				bestGain = gain
				bestFeature = feat
				bestThreshold = (X[sorted[k]][feat] + X[sorted[k+1]][feat]) / 2
			}
		}
	}

	if bestFeature < 0 {
		return &treeNode{Leaf: true, Value: leafValue}
	}
	m.GainByIndex[bestFeature] += bestGain

	var leftIdx, rightIdx []int
	for _, i := range idx {
		if X[i][bestFeature] <= bestThreshold {
			leftIdx = append(leftIdx, i)
		} else {
			rightIdx = append(rightIdx, i)
		}
	}

	return &treeNode{
		Feature:   bestFeature,
		Threshold: bestThreshold,
		Left:      m.buildNode(X, target, leftIdx, depth-1),
		Right:     m.buildNode(X, target, rightIdx, depth-1),
	}
}

func mean(v []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var s float64
	for _, i := range idx {
		s += v[i]
	}
	return s / float64(len(idx))
}

func sumSquaredError(v []float64, idx []int, center float64) float64 {
	var s float64
	for _, i := range idx {
		d := v[i] - center
		s += d * d
	}
	return s
}

// Save writes the model artifact as model.json inside dir, creating the
// directory if needed.
func (m *GBDT) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	path := filepath.Join(dir, ArtifactFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write model artifact %s: %w", path, err)
	}
	return nil
}

// Load reads a model artifact previously written by Save from dir.
func Load(dir string) (*GBDT, error) {
	path := filepath.Join(dir, ArtifactFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact %s: %w", path, err)
	}
	var m GBDT
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode model artifact %s: %w", path, err)
	}
	return &m, nil
}
