package neo4j

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/DrJLabs/Forgetful-sub001/internal/config"
)

var (
	instance *Neo4jClient
	once     sync.Once
	initErr  error
)

// Neo4jClient 包含了 Neo4j 驱动实例和从 YAML 加载的相关配置。
type Neo4jClient struct {
	Driver neo4j.DriverWithContext // Neo4j 驱动实例。
	Config *config.Neo4jConfig     // Neo4j 配置。
}

// GetClient 使用单例模式创建并返回一个新的 Neo4j 驱动实例。
func GetClient(ctx context.Context, cfg *config.Neo4jConfig) (*Neo4jClient, error) {
	once.Do(func() {
		// 使用用户名和密码创建认证 token。
		auth := neo4j.BasicAuth(cfg.Username, cfg.Password, "")

		// 创建驱动实例。
		driver, err := neo4j.NewDriverWithContext(cfg.Uri, auth)
		if err != nil {
			initErr = fmt.Errorf("无法创建 Neo4j 驱动: %w", err)
			return
		}

		// 验证与数据库的连接是否成功。
		if err := driver.VerifyConnectivity(ctx); err != nil {
			driver.Close(ctx) // 如果验证失败，需要关闭已创建的驱动以释放资源。
			initErr = fmt.Errorf("无法连接到 Neo4j 数据库: %w", err)
			return
		}

		log.Println("✅ 成功连接到 Neo4j!")
		instance = &Neo4jClient{Driver: driver, Config: cfg}
	})
	return instance, initErr
}

// Close 安全地关闭与 Neo4j 的连接。
func (c *Neo4jClient) Close(ctx context.Context) {
	if c.Driver != nil {
		if err := c.Driver.Close(ctx); err != nil {
			log.Printf("关闭 Neo4j 驱动失败: %v", err)
		}
	}
}

// HealthCheck 检查 Neo4j 连接的健康状况。
func (c *Neo4jClient) HealthCheck(ctx context.Context) error {
	return c.Driver.VerifyConnectivity(ctx)
}

// EnsureSchema 为实体节点建立索引。关系图按 (owner_id, name) 检索实体，
// 没有这个索引每次 MERGE 都要全表扫描。
func (c *Neo4jClient) EnsureSchema(ctx context.Context) error {
	_, err := c.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		query := "CREATE INDEX entity_owner_name IF NOT EXISTS FOR (e:Entity) ON (e.owner_id, e.name)"
		result, err := tx.Run(ctx, query, nil)
		if err != nil {
			return nil, err
		}
		return nil, result.Err()
	})
	if err != nil {
		return fmt.Errorf("创建实体索引失败: %w", err)
	}
	return nil
}

// ExecuteWrite 在一个自动管理的写事务中执行 Cypher 查询。
func (c *Neo4jClient) ExecuteWrite(ctx context.Context, work func(tx neo4j.ManagedTransaction) (interface{}, error)) (interface{}, error) {
	session := c.Driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.Config.Database})
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, work)
	if err != nil {
		return nil, fmt.Errorf("执行 Neo4j 写事务失败: %w", err)
	}

	return result, nil
}

// ExecuteRead 在一个自动管理的读事务中执行 Cypher 查询。
func (c *Neo4jClient) ExecuteRead(ctx context.Context, work func(tx neo4j.ManagedTransaction) (interface{}, error)) (interface{}, error) {
	session := c.Driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.Config.Database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, work)
	if err != nil {
		return nil, fmt.Errorf("执行 Neo4j 读事务失败: %w", err)
	}

	return result, nil
}
