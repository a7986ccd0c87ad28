package milvus

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"sync"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/DrJLabs/Forgetful-sub001/internal/config"
)

// 事实集合的字段布局由代码固定，配置只决定集合名、向量维度与索引。
// 字段名同时被 store 层引用，所以导出为常量。
const (
	FieldID        = "id"
	FieldOwnerID   = "owner_id"
	FieldContent   = "content"
	FieldMetadata  = "metadata"
	FieldState     = "state"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
	FieldEmbedding = "embedding"
)

// OutputFields 是查询与搜索时取回的全部标量字段。
var OutputFields = []string{FieldID, FieldOwnerID, FieldContent, FieldMetadata, FieldState, FieldCreatedAt, FieldUpdatedAt}

var (
	instance *MilvusClient
	once     sync.Once
	initErr  error
)

// MilvusClient 包含了 Milvus 客户端实例和相关配置。
type MilvusClient struct {
	Client client.Client        // Milvus 客户端实例。
	Config *config.MilvusConfig // Milvus 配置。

	mu         sync.Mutex
	partitions map[string]bool // 已确认存在的分区缓存。
}

// GetClient 使用单例模式创建并返回一个 Milvus 客户端实例。
func GetClient(ctx context.Context, cfg *config.MilvusConfig) (*MilvusClient, error) {
	once.Do(func() {
		// 使用配置中的地址创建 Milvus 客户端。
		c, err := client.NewClient(ctx, client.Config{Address: cfg.Address})
		if err != nil {
			initErr = fmt.Errorf("无法连接到 Milvus: %w", err)
			return
		}
		log.Println("✅ 成功连接到 Milvus!")
		instance = &MilvusClient{Client: c, Config: cfg, partitions: make(map[string]bool)}
	})
	return instance, initErr
}

// Close 安全地关闭与 Milvus 的连接。
func (c *MilvusClient) Close() {
	if c.Client != nil {
		c.Client.Close()
		log.Println("ℹ️ 已安全关闭 Milvus 连接。")
	}
}

// HealthCheck 检查 Milvus 连接的健康状况。
func (c *MilvusClient) HealthCheck(ctx context.Context) error {
	if c.Client == nil {
		return fmt.Errorf("Milvus client is nil")
	}
	_, err := c.Client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("Milvus health check failed: %w", err)
	}
	return nil
}

// EnsureCollection 确保事实集合存在并已加载。
// 集合不存在时按固定 Schema 创建，并根据配置为向量字段建立索引。
func (c *MilvusClient) EnsureCollection(ctx context.Context) error {
	collName := c.Config.Collection
	exists, err := c.Client.HasCollection(ctx, collName)
	if err != nil {
		return fmt.Errorf("检查集合是否存在时出错: %w", err)
	}
	if !exists {
		schema := entity.NewSchema().
			WithName(collName).
			WithDescription("long-term fact storage, one row per fact").
			WithField(entity.NewField().WithName(FieldID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64).WithIsPrimaryKey(true)).
			WithField(entity.NewField().WithName(FieldOwnerID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(256)).
			WithField(entity.NewField().WithName(FieldContent).WithDataType(entity.FieldTypeVarChar).WithMaxLength(8192)).
			WithField(entity.NewField().WithName(FieldMetadata).WithDataType(entity.FieldTypeVarChar).WithMaxLength(16384)).
			WithField(entity.NewField().WithName(FieldState).WithDataType(entity.FieldTypeVarChar).WithMaxLength(32)).
			WithField(entity.NewField().WithName(FieldCreatedAt).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(FieldUpdatedAt).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(FieldEmbedding).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(c.Config.Dimension)))

		if err := c.Client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("创建集合失败: %w", err)
		}
		idx, err := c.buildIndexFromConfig()
		if err != nil {
			return err
		}
		if err := c.Client.CreateIndex(ctx, collName, FieldEmbedding, idx, false); err != nil {
			return fmt.Errorf("为字段 '%s' 创建索引失败: %w", FieldEmbedding, err)
		}
		log.Printf("✅ 成功创建集合 '%s' (dim=%d)。", collName, c.Config.Dimension)
	}

	if err := c.Client.LoadCollection(ctx, collName, false); err != nil {
		return fmt.Errorf("加载 Milvus 集合 '%s' 失败: %w", collName, err)
	}
	return nil
}

// buildIndexFromConfig 是一个辅助函数，用于从配置构建索引实体。
func (c *MilvusClient) buildIndexFromConfig() (entity.Index, error) {
	indexCfg := c.Config.Index
	metricType := entity.MetricType(indexCfg.MetricType)

	switch indexCfg.IndexType {
	case "IVF_FLAT":
		nlist := indexCfg.Nlist
		if nlist <= 0 {
			nlist = 128
		}
		return entity.NewIndexIvfFlat(metricType, nlist)
	case "HNSW":
		m := indexCfg.M
		if m <= 0 {
			m = 8
		}
		efConstruction := indexCfg.EfConstruction
		if efConstruction <= 0 {
			efConstruction = 96
		}
		return entity.NewIndexHNSW(metricType, m, efConstruction)
	case "AUTOINDEX":
		return entity.NewIndexAUTOINDEX(metricType)
	default:
		return nil, fmt.Errorf("不支持的索引类型: %s", indexCfg.IndexType)
	}
}

// PartitionForOwner 计算归属者对应的分区名。
// Milvus 分区名只允许字母、数字和下划线，归属者 id 却可能是
// 邮箱或任意字符串，所以用哈希生成稳定的合法名称。
func PartitionForOwner(ownerID string) string {
	h := fnv.New32a()
	h.Write([]byte(ownerID))
	return fmt.Sprintf("owner_%08x", h.Sum32())
}

// EnsurePartition 确保归属者分区存在，重复调用走内存缓存。
func (c *MilvusClient) EnsurePartition(ctx context.Context, ownerID string) (string, error) {
	partitionName := PartitionForOwner(ownerID)

	c.mu.Lock()
	known := c.partitions[partitionName]
	c.mu.Unlock()
	if known {
		return partitionName, nil
	}

	collName := c.Config.Collection
	has, err := c.Client.HasPartition(ctx, collName, partitionName)
	if err != nil {
		return "", fmt.Errorf("无法检查集合 '%s' 的分区 '%s': %w", collName, partitionName, err)
	}
	if !has {
		if err := c.Client.CreatePartition(ctx, collName, partitionName); err != nil {
			return "", fmt.Errorf("为集合 '%s' 创建分区 '%s' 失败: %w", collName, partitionName, err)
		}
		log.Printf("✅ 成功创建分区: %s", partitionName)
	}

	c.mu.Lock()
	c.partitions[partitionName] = true
	c.mu.Unlock()
	return partitionName, nil
}

// Upsert 写入或覆盖一条事实记录。主键相同的行会被新值替换，
// 所以新增和原位更新共用这一个入口。
func (c *MilvusClient) Upsert(ctx context.Context, partitionName string, columns ...entity.Column) error {
	_, err := c.Client.Upsert(ctx, c.Config.Collection, partitionName, columns...)
	if err != nil {
		return fmt.Errorf("failed to upsert data into Milvus: %w", err)
	}
	return nil
}

// Delete 按表达式删除分区内的记录。
func (c *MilvusClient) Delete(ctx context.Context, partitionName, expr string) error {
	err := c.Client.Delete(ctx, c.Config.Collection, partitionName, expr)
	if err != nil {
		return fmt.Errorf("failed to delete data from Milvus: %w", err)
	}
	return nil
}

// Search 在指定分区中执行向量相似度搜索，并附带标量过滤表达式。
func (c *MilvusClient) Search(ctx context.Context, partitionName, expr string, topK int, vector []float32) ([]client.SearchResult, error) {
	sp, err := c.buildSearchParam()
	if err != nil {
		return nil, err
	}

	searchVectors := []entity.Vector{entity.FloatVector(vector)}
	results, err := c.Client.Search(
		ctx,
		c.Config.Collection,
		[]string{partitionName},
		expr,
		OutputFields,
		searchVectors,
		FieldEmbedding,
		entity.MetricType(c.Config.Index.MetricType),
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("在分区 '%s' 中搜索失败: %w", partitionName, err)
	}
	return results, nil
}

// buildSearchParam 根据索引类型构建搜索参数。
func (c *MilvusClient) buildSearchParam() (entity.SearchParam, error) {
	switch c.Config.Index.IndexType {
	case "IVF_FLAT":
		return entity.NewIndexIvfFlatSearchParam(10)
	case "HNSW":
		return entity.NewIndexHNSWSearchParam(64)
	case "AUTOINDEX":
		return entity.NewIndexAUTOINDEXSearchParam(1)
	default:
		return nil, fmt.Errorf("不支持的索引类型: %s", c.Config.Index.IndexType)
	}
}

// Query 按表达式查询分区内的指定字段，opts 可携带分页参数。
// fields 为 nil 时返回全部标量字段；软删除路径需要把 embedding 也取回来。
func (c *MilvusClient) Query(ctx context.Context, partitionName, expr string, fields []string, opts ...client.SearchQueryOptionFunc) (client.ResultSet, error) {
	if fields == nil {
		fields = OutputFields
	}
	rs, err := c.Client.Query(ctx, c.Config.Collection, []string{partitionName}, expr, fields, opts...)
	if err != nil {
		return nil, fmt.Errorf("查询集合 '%s' 失败: %w", c.Config.Collection, err)
	}
	return rs, nil
}

// Flush 手动触发一次刷新操作，将内存中的数据写入磁盘。
func (c *MilvusClient) Flush(ctx context.Context) error {
	if err := c.Client.Flush(ctx, c.Config.Collection, false); err != nil {
		return fmt.Errorf("刷新集合 '%s' 失败: %w", c.Config.Collection, err)
	}
	return nil
}
