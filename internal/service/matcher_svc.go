package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"marketpulse/internal/repository"
)

// ==================== 合并事件 ====================

// MergeEvent 一次身份合并的审计记录
type MergeEvent struct {
	PrimaryID       int64   `json:"primary_id"`
	SecondaryID     int64   `json:"secondary_id"`
	Score           float64 `json:"score"`
	PrimaryName     string  `json:"primary_name"`
	SecondaryName   string  `json:"secondary_name"`
	PrimaryVendor   string  `json:"primary_vendor"`
	SecondaryVendor string  `json:"secondary_vendor"`
}

// ==================== 身份匹配服务 ====================

// MatcherService 跨供应商商品身份匹配
// 全量两两比对为 O(n²)，目录在几千条以内可接受；
// 规模再上去需要近邻索引做 blocking，这是已知的扩展上限
type MatcherService struct {
	products  repository.ProductRepository
	encoder   Encoder
	threshold float64
	log       *zap.SugaredLogger
}

// NewMatcherService 创建匹配服务
func NewMatcherService(
	products repository.ProductRepository,
	encoder Encoder,
	threshold float64,
	log *zap.SugaredLogger,
) *MatcherService {
	if threshold <= 0 {
		threshold = 0.85
	}
	return &MatcherService{
		products:  products,
		encoder:   encoder,
		threshold: threshold,
		log:       log,
	}
}

// FindMatches 扫描全部名称映射，合并相似度过阈值的跨供应商身份
//
// 规则：
//   - 只比 i < j 的无序对，不重复比较
//   - 相似度 > 阈值 且 供应商不同 才合并；同一供应商的重复上架不算身份冲突
//   - 主身份取迭代序先出现的一方（按快照的稳定 ID 序，结果确定）
//   - 自合并是空操作
//
// 编码器或存储失败中止整个扫描并返回错误；已应用的合并各自独立、无需回滚，
// 该轮按未完成处理，重跑即可
func (s *MatcherService) FindMatches(ctx context.Context) ([]MergeEvent, error) {
	mappings, err := s.products.ListMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取名称映射失败: %w", err)
	}
	if len(mappings) == 0 {
		return nil, nil
	}

	s.log.Infow("开始身份匹配", "mappings", len(mappings), "threshold", s.threshold)

	names := make([]string, len(mappings))
	for i, m := range mappings {
		names[i] = m.ExternalNameVariant
	}
	vectors, err := s.encoder.Encode(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("编码名称变体失败: %w", err)
	}

	var events []MergeEvent
	for i := 0; i < len(mappings); i++ {
		for j := i + 1; j < len(mappings); j++ {
			score := CosineSimilarity(vectors[i], vectors[j])
			if score <= s.threshold {
				continue
			}
			if mappings[i].VendorName == mappings[j].VendorName {
				continue
			}

			primary := mappings[i]
			secondary := mappings[j]

			// 快照 ID 可能已被同轮更早的合并改写过；
			// 改挂条件按快照值过滤，最多影响 0 行，语义不受影响
			if _, err := s.products.RepointMappings(ctx, primary.InternalProductID, secondary.InternalProductID); err != nil {
				return events, fmt.Errorf("合并 %d -> %d 失败: %w",
					secondary.InternalProductID, primary.InternalProductID, err)
			}

			events = append(events, MergeEvent{
				PrimaryID:       primary.InternalProductID,
				SecondaryID:     secondary.InternalProductID,
				Score:           score,
				PrimaryName:     primary.ExternalNameVariant,
				SecondaryName:   secondary.ExternalNameVariant,
				PrimaryVendor:   primary.VendorName,
				SecondaryVendor: secondary.VendorName,
			})

			s.log.Infow("身份合并",
				"primary", primary.InternalProductID,
				"secondary", secondary.InternalProductID,
				"score", fmt.Sprintf("%.2f", score),
				"a", primary.ExternalNameVariant,
				"b", secondary.ExternalNameVariant,
			)
		}
	}

	s.log.Infow("身份匹配完成", "merges", len(events))
	return events, nil
}
