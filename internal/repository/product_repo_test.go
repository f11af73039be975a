package repository

import (
	"context"
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"marketpulse/internal/model"
)

// ==================== 测试辅助 ====================

func setupRepoTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("连接测试数据库失败: %v", err)
	}

	if err := db.AutoMigrate(&model.Product{}, &model.ProductMapping{}, &model.PriceObservation{}); err != nil {
		t.Fatalf("迁移测试表失败: %v", err)
	}
	return db
}

func mustCreateProduct(t *testing.T, repo ProductRepository, name string) *model.Product {
	t.Helper()
	product := &model.Product{Name: name}
	if err := repo.Create(context.Background(), product); err != nil {
		t.Fatalf("创建商品失败: %v", err)
	}
	return product
}

// ==================== 单元测试 ====================

func TestProductRepo_CreateAndGet(t *testing.T) {
	repo := NewProductRepository(setupRepoTestDB(t))
	ctx := context.Background()

	product := mustCreateProduct(t, repo, "Dell Inspiron 15")
	if product.ID == 0 {
		t.Fatal("创建后应分配主键")
	}

	found, err := repo.GetByID(ctx, product.ID)
	if err != nil {
		t.Fatalf("查询商品失败: %v", err)
	}
	if found.Name != "Dell Inspiron 15" {
		t.Errorf("name = %s, want Dell Inspiron 15", found.Name)
	}
}

func TestProductRepo_SearchByName(t *testing.T) {
	repo := NewProductRepository(setupRepoTestDB(t))
	ctx := context.Background()

	mustCreateProduct(t, repo, "Dell Inspiron 15")
	mustCreateProduct(t, repo, "ASUS VivoBook 14")
	mustCreateProduct(t, repo, "Dell XPS 13")

	// 大小写不敏感的子串匹配
	results, err := repo.SearchByName(ctx, "dell")
	if err != nil {
		t.Fatalf("检索失败: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("命中数 = %d, want 2", len(results))
	}
}

func TestProductRepo_MappingUniqueness(t *testing.T) {
	repo := NewProductRepository(setupRepoTestDB(t))
	ctx := context.Background()

	product := mustCreateProduct(t, repo, "Laptop X")

	mapping := &model.ProductMapping{
		InternalProductID:   product.ID,
		ExternalNameVariant: "Laptop X",
		VendorName:          "VendorA",
	}
	if err := repo.CreateMapping(ctx, mapping); err != nil {
		t.Fatalf("首次创建映射失败: %v", err)
	}

	// (名称变体, 供应商) 复合唯一，重复创建必须报可识别的重复键错误
	dup := &model.ProductMapping{
		InternalProductID:   product.ID,
		ExternalNameVariant: "Laptop X",
		VendorName:          "VendorA",
	}
	err := repo.CreateMapping(ctx, dup)
	if err == nil {
		t.Fatal("重复映射应当失败")
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Errorf("err = %v, want gorm.ErrDuplicatedKey", err)
	}

	// 同名不同供应商不受约束影响
	other := &model.ProductMapping{
		InternalProductID:   product.ID,
		ExternalNameVariant: "Laptop X",
		VendorName:          "VendorB",
	}
	if err := repo.CreateMapping(ctx, other); err != nil {
		t.Fatalf("不同供应商的同名映射应当成功: %v", err)
	}
}

func TestProductRepo_GetMapping_NotFound(t *testing.T) {
	repo := NewProductRepository(setupRepoTestDB(t))

	_, err := repo.GetMapping(context.Background(), "不存在", "VendorA")
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("err = %v, want gorm.ErrRecordNotFound", err)
	}
}

func TestProductRepo_RepointMappings(t *testing.T) {
	repo := NewProductRepository(setupRepoTestDB(t))
	ctx := context.Background()

	primary := mustCreateProduct(t, repo, "Dell Inspiron 15")
	secondary := mustCreateProduct(t, repo, "Dell Inspiron-15")

	if err := repo.CreateMapping(ctx, &model.ProductMapping{
		InternalProductID: primary.ID, ExternalNameVariant: "Dell Inspiron 15", VendorName: "VendorA",
	}); err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateMapping(ctx, &model.ProductMapping{
		InternalProductID: secondary.ID, ExternalNameVariant: "Dell Inspiron-15", VendorName: "VendorB",
	}); err != nil {
		t.Fatal(err)
	}

	moved, err := repo.RepointMappings(ctx, primary.ID, secondary.ID)
	if err != nil {
		t.Fatalf("改挂映射失败: %v", err)
	}
	if moved != 1 {
		t.Errorf("改挂行数 = %d, want 1", moved)
	}

	// 主身份名下应聚齐两条映射，次要身份名下应清空
	primaryMappings, _ := repo.ListMappingsByProduct(ctx, primary.ID)
	if len(primaryMappings) != 2 {
		t.Errorf("主身份映射数 = %d, want 2", len(primaryMappings))
	}
	secondaryMappings, _ := repo.ListMappingsByProduct(ctx, secondary.ID)
	if len(secondaryMappings) != 0 {
		t.Errorf("次要身份映射数 = %d, want 0", len(secondaryMappings))
	}

	// 次要 Product 行保留，只是不再被任何映射指向
	if _, err := repo.GetByID(ctx, secondary.ID); err != nil {
		t.Errorf("合并后次要商品行不应被删除: %v", err)
	}
}

func TestProductRepo_RepointMappings_SelfMerge(t *testing.T) {
	repo := NewProductRepository(setupRepoTestDB(t))
	ctx := context.Background()

	product := mustCreateProduct(t, repo, "Laptop X")
	if err := repo.CreateMapping(ctx, &model.ProductMapping{
		InternalProductID: product.ID, ExternalNameVariant: "Laptop X", VendorName: "VendorA",
	}); err != nil {
		t.Fatal(err)
	}

	// 自合并是空操作，不触碰任何行
	moved, err := repo.RepointMappings(ctx, product.ID, product.ID)
	if err != nil {
		t.Fatalf("自合并不应报错: %v", err)
	}
	if moved != 0 {
		t.Errorf("自合并改动行数 = %d, want 0", moved)
	}

	mappings, _ := repo.ListMappingsByProduct(ctx, product.ID)
	if len(mappings) != 1 {
		t.Errorf("映射数 = %d, want 1", len(mappings))
	}
}

func TestProductRepo_ListMappings_StableOrder(t *testing.T) {
	repo := NewProductRepository(setupRepoTestDB(t))
	ctx := context.Background()

	product := mustCreateProduct(t, repo, "Laptop X")
	variants := []string{"Laptop X", "LAPTOP X", "Laptop-X"}
	vendors := []string{"VendorA", "VendorB", "VendorC"}
	for i := range variants {
		if err := repo.CreateMapping(ctx, &model.ProductMapping{
			InternalProductID: product.ID, ExternalNameVariant: variants[i], VendorName: vendors[i],
		}); err != nil {
			t.Fatal(err)
		}
	}

	mappings, err := repo.ListMappings(ctx)
	if err != nil {
		t.Fatalf("读取映射失败: %v", err)
	}
	if len(mappings) != 3 {
		t.Fatalf("映射数 = %d, want 3", len(mappings))
	}
	for i := 1; i < len(mappings); i++ {
		if mappings[i].ID <= mappings[i-1].ID {
			t.Fatal("映射必须按 ID 升序返回")
		}
	}
}
