package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"marketpulse/internal/model"
)

// ==================== 接口定义 ====================

// ProductRepository 规范商品与名称映射仓储接口
type ProductRepository interface {
	// 商品
	Create(ctx context.Context, product *model.Product) error
	GetByID(ctx context.Context, id int64) (*model.Product, error)
	List(ctx context.Context, limit int) ([]model.Product, error)
	SearchByName(ctx context.Context, keyword string) ([]model.Product, error)
	Count(ctx context.Context) (int64, error)

	// 名称映射
	CreateMapping(ctx context.Context, mapping *model.ProductMapping) error
	GetMapping(ctx context.Context, nameVariant, vendor string) (*model.ProductMapping, error)
	ListMappings(ctx context.Context) ([]model.ProductMapping, error)
	ListMappingsByProduct(ctx context.Context, productID int64) ([]model.ProductMapping, error)

	// 身份合并：把 secondaryID 名下的全部映射改挂到 primaryID
	RepointMappings(ctx context.Context, primaryID, secondaryID int64) (int64, error)

	// 事务
	WithTx(tx *gorm.DB) ProductRepository
	Transaction(ctx context.Context, fn func(txRepo ProductRepository) error) error
}

// ==================== 仓储实现 ====================

type productRepo struct {
	db *gorm.DB
}

// NewProductRepository 创建商品仓储
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepo{db: db}
}

func (r *productRepo) Create(ctx context.Context, product *model.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *productRepo) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	var product model.Product
	if err := r.db.WithContext(ctx).First(&product, id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepo) List(ctx context.Context, limit int) ([]model.Product, error) {
	if limit <= 0 {
		limit = 100
	}
	var products []model.Product
	err := r.db.WithContext(ctx).
		Order("id ASC").
		Limit(limit).
		Find(&products).Error
	return products, err
}

func (r *productRepo) SearchByName(ctx context.Context, keyword string) ([]model.Product, error) {
	var products []model.Product
	err := r.db.WithContext(ctx).
		Where("LOWER(name) LIKE ?", "%"+strings.ToLower(keyword)+"%").
		Order("id ASC").
		Find(&products).Error
	return products, err
}

func (r *productRepo) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.Product{}).Count(&total).Error
	return total, err
}

func (r *productRepo) CreateMapping(ctx context.Context, mapping *model.ProductMapping) error {
	return r.db.WithContext(ctx).Create(mapping).Error
}

func (r *productRepo) GetMapping(ctx context.Context, nameVariant, vendor string) (*model.ProductMapping, error) {
	var mapping model.ProductMapping
	err := r.db.WithContext(ctx).
		Where("external_name_variant = ? AND vendor_name = ?", nameVariant, vendor).
		First(&mapping).Error
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

// ListMappings 稳定按 ID 升序返回全部映射
// 匹配器依赖这个顺序做确定性的“先出现者为主”合并决策
func (r *productRepo) ListMappings(ctx context.Context) ([]model.ProductMapping, error) {
	var mappings []model.ProductMapping
	err := r.db.WithContext(ctx).
		Order("id ASC").
		Find(&mappings).Error
	return mappings, err
}

func (r *productRepo) ListMappingsByProduct(ctx context.Context, productID int64) ([]model.ProductMapping, error) {
	var mappings []model.ProductMapping
	err := r.db.WithContext(ctx).
		Where("internal_product_id = ?", productID).
		Order("id ASC").
		Find(&mappings).Error
	return mappings, err
}

func (r *productRepo) RepointMappings(ctx context.Context, primaryID, secondaryID int64) (int64, error) {
	// 自合并不触碰任何行
	if primaryID == secondaryID {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&model.ProductMapping{}).
		Where("internal_product_id = ?", secondaryID).
		Update("internal_product_id", primaryID)
	return result.RowsAffected, result.Error
}

func (r *productRepo) WithTx(tx *gorm.DB) ProductRepository {
	return &productRepo{db: tx}
}

func (r *productRepo) Transaction(ctx context.Context, fn func(txRepo ProductRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(r.WithTx(tx))
	})
}
