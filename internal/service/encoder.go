package service

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// ==================== 语义编码器 ====================

// Encoder 把名称变体编码成定长数值向量
// 同一输入必须产出同一向量（匹配结果要可复现）
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float64, error)
}

// CosineSimilarity 余弦相似度，零向量按 0 处理
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// ==================== 本地 n-gram 编码器 ====================

const localEncoderDim = 256

// LocalEncoder 字符三元组哈希编码器
// 不依赖外部服务的离线默认实现：大小写、空白、标点差异基本不影响相似度，
// 对 "Dell Inspiron 15" vs "Dell Inspiron15" 这类变体给出高分
type LocalEncoder struct{}

// NewLocalEncoder 创建本地编码器
func NewLocalEncoder() *LocalEncoder {
	return &LocalEncoder{}
}

func (e *LocalEncoder) Encode(_ context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		vectors[i] = encodeTrigrams(text)
	}
	return vectors, nil
}

func encodeTrigrams(text string) []float64 {
	vec := make([]float64, localEncoderDim)

	normalized := normalizeName(text)
	runes := []rune(normalized)
	if len(runes) == 0 {
		return vec
	}

	// 首尾补哨兵，让开头/结尾的字符也有完整三元组
	padded := make([]rune, 0, len(runes)+2)
	padded = append(padded, '^')
	padded = append(padded, runes...)
	padded = append(padded, '$')

	for i := 0; i+3 <= len(padded); i++ {
		h := fnv.New32a()
		h.Write([]byte(string(padded[i : i+3])))
		vec[h.Sum32()%localEncoderDim]++
	}

	// L2 归一化
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

// normalizeName 小写化，标点折叠为空格，再压缩连续空白
func normalizeName(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
