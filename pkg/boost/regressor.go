package boost

import (
	"errors"
	"sort"
)

// ==================== 配置 ====================

// Config 梯度提升回归参数
type Config struct {
	NumTrees       int
	LearningRate   float64
	MaxDepth       int
	MinSamplesLeaf int
}

// DefaultConfig 默认超参数（沿用价格预测的历史配置）
func DefaultConfig() Config {
	return Config{
		NumTrees:       100,
		LearningRate:   0.05,
		MaxDepth:       4,
		MinSamplesLeaf: 2,
	}
}

// ==================== 回归器 ====================

// Regressor 平方误差目标的梯度提升回归树
// 每棵树拟合当前残差，预测为 基准值 + 学习率 × Σ 树输出
type Regressor struct {
	cfg   Config
	base  float64
	trees []*node
}

type node struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	left      *node
	right     *node
}

// NewRegressor 创建回归器
func NewRegressor(cfg Config) *Regressor {
	if cfg.NumTrees <= 0 {
		cfg.NumTrees = 100
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.05
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 4
	}
	if cfg.MinSamplesLeaf <= 0 {
		cfg.MinSamplesLeaf = 1
	}
	return &Regressor{cfg: cfg}
}

// Fit 训练。X 的每行是一个样本的特征向量，y 是对应标签
func (r *Regressor) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 || len(X) != len(y) {
		return errors.New("训练数据为空或特征与标签长度不一致")
	}
	dim := len(X[0])
	for _, row := range X {
		if len(row) != dim {
			return errors.New("特征维度不一致")
		}
	}

	r.base = mean(y)
	r.trees = r.trees[:0]

	preds := make([]float64, len(y))
	for i := range preds {
		preds[i] = r.base
	}

	indices := make([]int, len(y))
	for i := range indices {
		indices[i] = i
	}

	residual := make([]float64, len(y))
	for t := 0; t < r.cfg.NumTrees; t++ {
		for i := range y {
			residual[i] = y[i] - preds[i]
		}
		tree := r.buildTree(X, residual, indices, 0)
		r.trees = append(r.trees, tree)
		for i := range preds {
			preds[i] += r.cfg.LearningRate * evalNode(tree, X[i])
		}
	}
	return nil
}

// Predict 对单个特征向量求值
func (r *Regressor) Predict(x []float64) float64 {
	out := r.base
	for _, tree := range r.trees {
		out += r.cfg.LearningRate * evalNode(tree, x)
	}
	return out
}

// ==================== 建树 ====================

func (r *Regressor) buildTree(X [][]float64, target []float64, indices []int, depth int) *node {
	value := meanAt(target, indices)
	if depth >= r.cfg.MaxDepth || len(indices) < 2*r.cfg.MinSamplesLeaf {
		return &node{leaf: true, value: value}
	}

	feature, threshold, ok := r.bestSplit(X, target, indices)
	if !ok {
		return &node{leaf: true, value: value}
	}

	var left, right []int
	for _, i := range indices {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &node{leaf: true, value: value}
	}

	return &node{
		feature:   feature,
		threshold: threshold,
		left:      r.buildTree(X, target, left, depth+1),
		right:     r.buildTree(X, target, right, depth+1),
	}
}

// bestSplit 对每个特征排序后线性扫描切分点，最大化平方和增益
func (r *Regressor) bestSplit(X [][]float64, target []float64, indices []int) (int, float64, bool) {
	n := len(indices)
	dim := len(X[indices[0]])

	var totalSum float64
	for _, i := range indices {
		totalSum += target[i]
	}
	baseScore := totalSum * totalSum / float64(n)

	bestGain := 0.0
	bestFeature := -1
	bestThreshold := 0.0

	sorted := make([]int, n)
	for f := 0; f < dim; f++ {
		copy(sorted, indices)
		sort.Slice(sorted, func(a, b int) bool {
			return X[sorted[a]][f] < X[sorted[b]][f]
		})

		leftSum := 0.0
		for k := 1; k < n; k++ {
			leftSum += target[sorted[k-1]]
			// 相同特征值之间不能切
			if X[sorted[k-1]][f] == X[sorted[k]][f] {
				continue
			}
			if k < r.cfg.MinSamplesLeaf || n-k < r.cfg.MinSamplesLeaf {
				continue
			}
			rightSum := totalSum - leftSum
			score := leftSum*leftSum/float64(k) + rightSum*rightSum/float64(n-k)
			gain := score - baseScore
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = (X[sorted[k-1]][f] + X[sorted[k]][f]) / 2
			}
		}
	}

	if bestFeature < 0 {
		return 0, 0, false
	}
	return bestFeature, bestThreshold, true
}

// ==================== 辅助 ====================

func evalNode(n *node, x []float64) float64 {
	for !n.leaf {
		if x[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func meanAt(vals []float64, indices []int) float64 {
	var sum float64
	for _, i := range indices {
		sum += vals[i]
	}
	return sum / float64(len(indices))
}
