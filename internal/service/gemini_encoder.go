package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ==================== Gemini 编码器 ====================

// GeminiEncoderConfig Gemini Embedding API 配置
type GeminiEncoderConfig struct {
	ApiKey string
	Model  string
}

// GeminiEncoder 调用 Gemini Embedding API 的语义编码器
// 线上环境用它换取比本地 n-gram 更强的语义区分度
type GeminiEncoder struct {
	config *GeminiEncoderConfig
	client *http.Client
}

// NewGeminiEncoder 创建 Gemini 编码器
func NewGeminiEncoder(cfg *GeminiEncoderConfig) *GeminiEncoder {
	if cfg.Model == "" {
		cfg.Model = "gemini-embedding-001"
	}
	return &GeminiEncoder{
		config: cfg,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (e *GeminiEncoder) Encode(ctx context.Context, texts []string) ([][]float64, error) {
	if e.config.ApiKey == "" {
		return nil, fmt.Errorf("Gemini API Key 未配置")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	type part struct {
		Text string `json:"text"`
	}
	type content struct {
		Parts []part `json:"parts"`
	}
	type embedRequest struct {
		Model   string  `json:"model"`
		Content content `json:"content"`
	}

	requests := make([]embedRequest, 0, len(texts))
	for _, t := range texts {
		requests = append(requests, embedRequest{
			Model:   "models/" + e.config.Model,
			Content: content{Parts: []part{{Text: t}}},
		})
	}

	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:batchEmbedContents?key=%s",
		e.config.Model, e.config.ApiKey)

	bodyBytes, _ := json.Marshal(map[string]interface{}{"requests": requests})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Gemini API 错误 [%d]: %s", resp.StatusCode, string(respBody))
	}

	var geminiResp struct {
		Embeddings []struct {
			Values []float64 `json:"values"`
		} `json:"embeddings"`
	}
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}
	if len(geminiResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("返回向量数不匹配: 期望 %d 实际 %d", len(texts), len(geminiResp.Embeddings))
	}

	vectors := make([][]float64, len(texts))
	for i, emb := range geminiResp.Embeddings {
		vectors[i] = emb.Values
	}
	return vectors, nil
}
