package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MilvusIndexConfig 定义了事实集合向量索引的配置。
type MilvusIndexConfig struct {
	IndexType      string `yaml:"indexType"`      // 索引类型 (例如: "HNSW", "IVF_FLAT", "AUTOINDEX")
	MetricType     string `yaml:"metricType"`     // 相似度度量类型 (例如: "COSINE", "L2", "IP")
	Nlist          int    `yaml:"nlist"`          // IVF 索引的聚类数
	M              int    `yaml:"m"`              // HNSW 索引的连接数
	EfConstruction int    `yaml:"efConstruction"` // HNSW 索引的构建参数
}

// MilvusConfig 定义了 Milvus 数据库的连接与事实集合配置。
// 集合的字段结构由代码固定，这里只配置集合名、向量维度与索引。
type MilvusConfig struct {
	Address    string            `yaml:"address"`    // Milvus 服务地址
	Collection string            `yaml:"collection"` // 事实集合名称
	Dimension  int               `yaml:"dimension"`  // 向量维度，必须与 embedding 模型一致
	Index      MilvusIndexConfig `yaml:"index"`      // 向量索引配置
}

// Neo4jConfig 定义了 Neo4j 图数据库的连接配置。
type Neo4jConfig struct {
	Uri      string `yaml:"uri"`      // Neo4j 数据库URI (例如: "bolt://localhost:7687")
	Username string `yaml:"username"` // 用户名
	Password string `yaml:"password"` // 密码
	Database string `yaml:"database"` // 数据库名称
}

// MongoConfig 定义了 MongoDB 数据库的连接配置。
// 事实状态变迁的历史日志保存在这里。
type MongoConfig struct {
	Address           string `yaml:"address"`           // MongoDB 服务器地址
	Username          string `yaml:"username"`          // 用户名
	Password          string `yaml:"password"`          // 密码
	Database          string `yaml:"database"`          // 数据库名称
	HistoryCollection string `yaml:"historyCollection"` // 历史日志集合名称
}

// MySQLConfig 定义了 MySQL 数据库的连接配置。
// 接入协议（应用）注册表保存在这里。
type MySQLConfig struct {
	Address         string `yaml:"address"`         // MySQL 服务器地址
	Username        string `yaml:"username"`        // 用户名
	Password        string `yaml:"password"`        // 密码
	Database        string `yaml:"database"`        // 数据库名称
	MaxOpenConns    int    `yaml:"maxOpenConns"`    // 最大打开连接数
	MaxIdleConns    int    `yaml:"maxIdleConns"`    // 最大空闲连接数
	ConnMaxLifetime int    `yaml:"connMaxLifetime"` // 连接最大生命周期 (秒)
}

// RedisConfig 定义了 Redis 数据库的连接配置。
type RedisConfig struct {
	Address  string `yaml:"address"`  // Redis 服务器地址 (例如: "localhost:6379")
	Password string `yaml:"password"` // Redis 密码
	DB       int    `yaml:"db"`       // Redis 数据库编号
}

// KafkaConfig 定义了 Kafka 消息队列的连接配置。
type KafkaConfig struct {
	Brokers         []string `yaml:"brokers"`         // Kafka Broker 地址列表
	TurnTopic       string   `yaml:"turnTopic"`       // 对话批次摄取主题
	DeadLetterTopic string   `yaml:"deadLetterTopic"` // 无法解析的消息投递到这里
	GroupID         string   `yaml:"groupID"`         // 消费组ID
}

// MinIOConfig 定义了 MinIO 对象存储的连接配置。
// 原始对话批次的快照归档在这里。
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`  // MinIO 服务端点
	AccessKey string `yaml:"accessKey"` // 访问密钥
	SecretKey string `yaml:"secretKey"` // Secret 密钥
	Bucket    string `yaml:"bucket"`    // 归档存储桶名称
	Secure    bool   `yaml:"secure"`    // 是否使用HTTPS
}

// EtcdConfig 定义了 Etcd 服务注册的连接配置。
type EtcdConfig struct {
	Endpoints []string `yaml:"endpoints"` // Etcd 节点地址列表
	Username  string   `yaml:"username"`  // 用户名
	Password  string   `yaml:"password"`  // 密码
}

// DatabaseConfigs 包含所有数据库的配置。
type DatabaseConfigs struct {
	Milvus  MilvusConfig `yaml:"milvus"`  // 向量事实存储
	Neo4j   Neo4jConfig  `yaml:"neo4j"`   // 图关系存储
	MongoDB MongoConfig  `yaml:"mongodb"` // 历史日志存储
	MySQL   MySQLConfig  `yaml:"mysql"`   // 应用注册表存储
	Redis   RedisConfig  `yaml:"redis"`   // 限流计数存储
	Kafka   KafkaConfig  `yaml:"kafka"`   // 异步摄取队列
	MinIO   MinIOConfig  `yaml:"minio"`   // 原始对话归档
	Etcd    EtcdConfig   `yaml:"etcd"`    // 服务注册
}

// GeminiConfig 包含了 Gemini 模型的配置。
type GeminiConfig struct {
	APIKey string `yaml:"apiKey"` // Gemini API 密钥
	Model  string `yaml:"model"`  // Gemini 模型名称
}

// OpenAIConfig 包含了 OpenAI 模型的配置。
type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`  // OpenAI API 密钥
	Model   string `yaml:"model"`   // OpenAI 模型名称
	BaseURL string `yaml:"baseURL"` // 服务基础 URL (可选，兼容自建网关)
}

// OllamaConfig 包含了 Ollama 本地模型的配置。
type OllamaConfig struct {
	BaseURL string `yaml:"baseURL"` // Ollama 服务地址 (例如: "http://localhost:11434")
	Model   string `yaml:"model"`   // 模型名称
}

// LLMConfig 包含了不同LLM提供商的配置。
type LLMConfig struct {
	Provider string       `yaml:"provider"` // LLM提供商 (例如: "gemini", "openai", "ollama")
	Gemini   GeminiConfig `yaml:"gemini"`   // Gemini 模型配置
	OpenAI   OpenAIConfig `yaml:"openai"`   // OpenAI 模型配置
	Ollama   OllamaConfig `yaml:"ollama"`   // Ollama 模型配置
}

// EmbeddingConfig 包含了不同Embedding提供商的配置。
type EmbeddingConfig struct {
	Provider string       `yaml:"provider"` // Embedding提供商 (例如: "gemini", "openai", "ollama")
	Gemini   GeminiConfig `yaml:"gemini"`   // Gemini 模型配置
	OpenAI   OpenAIConfig `yaml:"openai"`   // OpenAI 模型配置
	Ollama   OllamaConfig `yaml:"ollama"`   // Ollama 模型配置
}

// TimeoutConfig 定义了引擎各类外部调用的独立超时，格式为 Go duration 字符串。
type TimeoutConfig struct {
	Extraction     string `yaml:"extraction"`     // 事实抽取调用超时
	Classification string `yaml:"classification"` // 决策分类调用超时
	Embedding      string `yaml:"embedding"`      // 向量化调用超时
	VectorStore    string `yaml:"vectorStore"`    // 向量存储读写超时
	GraphStore     string `yaml:"graphStore"`     // 图存储读写超时
	History        string `yaml:"history"`        // 历史日志写入超时
}

// CircuitBreakerConfig 定义了抽取客户端熔断器的配置。
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // 例如: "30s"
}

// MemoryConfig 定义了记忆引擎的可调参数。
type MemoryConfig struct {
	SimilarityTopK int                  `yaml:"similarityTopK"` // 相似事实检索数量
	WorkerPoolSize int                  `yaml:"workerPoolSize"` // 提交协调器的并发度
	Timeouts       TimeoutConfig        `yaml:"timeouts"`       // 外部调用超时
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"` // 抽取客户端熔断器
}

// ProtocolBinding 将一个已知接入协议的客户端名绑定到它的默认归属者。
type ProtocolBinding struct {
	Client       string `yaml:"client"`       // 接入协议声明的客户端名
	DefaultOwner string `yaml:"defaultOwner"` // 该协议的默认归属者 id
}

// IdentityConfig 定义了身份解析的配置。
type IdentityConfig struct {
	FallbackOwner string            `yaml:"fallbackOwner"` // 无法识别调用方时的兜底归属者 id
	BindingTTL    string            `yaml:"bindingTTL"`    // 会话绑定的有效期，"0" 表示进程生命周期
	Protocols     []ProtocolBinding `yaml:"protocols"`     // 已知接入协议列表
}

// RateLimiterConfig 定义了 API 限流器的配置。
type RateLimiterConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Algorithm string  `yaml:"algorithm"` // 支持: "tokenBucket", "redisSlidingWindow"
	Rate      float64 `yaml:"rate"`      // tokenBucket: 每秒速率
	Capacity  int     `yaml:"capacity"`  // tokenBucket: 桶容量
	Limit     int     `yaml:"limit"`     // redisSlidingWindow: 窗口内请求上限
	Window    string  `yaml:"window"`    // redisSlidingWindow: 窗口长度，例如 "1m"
}

// APIConfig 定义了 HTTP API 的配置。
type APIConfig struct {
	Address     string            `yaml:"address"`     // 监听地址 (例如: ":8080")
	JwtSecret   string            `yaml:"jwtSecret"`   // JWT 密钥
	TokenTTL    int               `yaml:"tokenTTL"`    // JWT 令牌的有效期（秒）
	RateLimiter RateLimiterConfig `yaml:"rateLimiter"` // 限流配置
}

// MCPConfig 定义了 MCP 接入协议服务的配置。
type MCPConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Address    string `yaml:"address"`    // SSE 监听地址 (例如: ":8084")
	ClientName string `yaml:"clientName"` // 该接入协议在身份解析中声明的客户端名
}

// DiscoveryConfig 定义了服务注册的配置。
type DiscoveryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ServiceName   string `yaml:"serviceName"`   // 注册的服务名
	AdvertiseAddr string `yaml:"advertiseAddr"` // 对外公布的地址
	TTL           int64  `yaml:"ttl"`           // 租约有效期（秒）
}

// ConsumerConfig 定义了异步摄取消费者的开关。
type ConsumerConfig struct {
	Enabled bool `yaml:"enabled"`
	Archive bool `yaml:"archive"` // 是否归档原始对话批次到 MinIO
}

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`        // 应用程序名称
	Version     string `yaml:"version"`     // 应用程序版本
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// AppConfig 是整个 YAML 文件的根结构，包含了应用程序的所有配置。
type AppConfig struct {
	App       AppInfo         `yaml:"app"`       // 应用程序信息
	Logger    LoggerConfig    `yaml:"logger"`    // 日志记录器配置
	LLM       LLMConfig       `yaml:"llm"`       // LLM 配置部分
	Embedding EmbeddingConfig `yaml:"embedding"` // Embedding 配置部分
	Databases DatabaseConfigs `yaml:"databases"` // 数据库配置
	Memory    MemoryConfig    `yaml:"memory"`    // 记忆引擎配置
	Identity  IdentityConfig  `yaml:"identity"`  // 身份解析配置
	API       APIConfig       `yaml:"api"`       // HTTP API 配置
	MCP       MCPConfig       `yaml:"mcp"`       // MCP 接入协议配置
	Discovery DiscoveryConfig `yaml:"discovery"` // 服务注册配置
	Consumer  ConsumerConfig  `yaml:"consumer"`  // 异步摄取配置
}

// LoadConfig 从指定路径加载并解析 YAML 配置文件，随后填充默认值并校验。
//
// 参数:
//
//	path: YAML 配置文件的路径。
//
// 返回值:
//
//	*AppConfig: 解析后的应用程序配置结构体。
//	error: 如果文件读取、解析或校验失败，则返回错误。
func LoadConfig(path string) (*AppConfig, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(yamlFile, &cfg); err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults 为缺省项填充默认值。
func (c *AppConfig) applyDefaults() {
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Memory.SimilarityTopK <= 0 {
		c.Memory.SimilarityTopK = 8
	}
	if c.Memory.WorkerPoolSize <= 0 {
		c.Memory.WorkerPoolSize = 4
	}
	if c.Identity.FallbackOwner == "" {
		c.Identity.FallbackOwner = "default_user"
	}
	if c.Databases.Milvus.Collection == "" {
		c.Databases.Milvus.Collection = "memory_facts"
	}
	if c.Databases.Milvus.Dimension <= 0 {
		c.Databases.Milvus.Dimension = 768
	}
	if c.Databases.Milvus.Index.IndexType == "" {
		c.Databases.Milvus.Index.IndexType = "HNSW"
	}
	if c.Databases.Milvus.Index.MetricType == "" {
		c.Databases.Milvus.Index.MetricType = "COSINE"
	}
	if c.Databases.MongoDB.HistoryCollection == "" {
		c.Databases.MongoDB.HistoryCollection = "fact_history"
	}
	if c.Databases.Kafka.GroupID == "" {
		c.Databases.Kafka.GroupID = "memory-service"
	}
	if c.API.Address == "" {
		c.API.Address = ":8080"
	}
	if c.MCP.ClientName == "" {
		c.MCP.ClientName = "mcp"
	}
	if c.Discovery.ServiceName == "" {
		c.Discovery.ServiceName = "memory_service"
	}
	if c.Discovery.TTL <= 0 {
		c.Discovery.TTL = 10
	}
}

// Validate 校验配置的一致性。配置错误应当在启动时暴露，
// 而不是在运行期间演变成难以察觉的正确性问题。
func (c *AppConfig) Validate() error {
	// 兜底归属者是单一的：多个协议可以各有默认归属者，但同一个
	// 客户端名只能绑定一次，否则同一逻辑用户的记忆会被拆散。
	seen := make(map[string]string, len(c.Identity.Protocols))
	for _, p := range c.Identity.Protocols {
		if p.Client == "" || p.DefaultOwner == "" {
			return fmt.Errorf("身份解析配置不完整: client=%q defaultOwner=%q", p.Client, p.DefaultOwner)
		}
		if prev, ok := seen[p.Client]; ok && prev != p.DefaultOwner {
			return fmt.Errorf("客户端 %q 被绑定到了两个默认归属者 (%q, %q)", p.Client, prev, p.DefaultOwner)
		}
		seen[p.Client] = p.DefaultOwner
	}
	if c.Identity.BindingTTL != "" {
		if _, err := time.ParseDuration(c.Identity.BindingTTL); err != nil {
			return fmt.Errorf("bindingTTL 不是合法的 duration: %w", err)
		}
	}
	return nil
}

// ParseDurationOr 把 duration 字符串解析为 time.Duration，
// 解析失败或为空时返回 fallback。
func ParseDurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
