// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Extractor     ExtractorConfig     `mapstructure:"extractor"`
	Chunker       ChunkerConfig       `mapstructure:"chunker"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
	Synth         SynthConfig         `mapstructure:"synth"`
	Session       SessionConfig       `mapstructure:"session"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port           string  `mapstructure:"port"`
	Mode           string  `mapstructure:"mode"`
	MaxUploadMB    int     `mapstructure:"max_upload_mb"`
	RequestTimeout int     `mapstructure:"request_timeout_seconds"`
	UploadDir      string  `mapstructure:"upload_dir"`
	RateLimit      float64 `mapstructure:"rate_limit_per_second"`
	RateBurst      int     `mapstructure:"rate_burst"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。DSN 为空时不持久化文档元数据。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时重处理任务同步执行。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。Endpoint 为空时不归档原始 PDF。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	Dimensions     int    `mapstructure:"dimensions"`
	BatchSize      int    `mapstructure:"batch_size"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Timeout 返回单次 Embedding 调用的超时时间。
func (c EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Available 表示 Embedding 能力是否可用（开启且配置了凭证）。
func (c EmbeddingConfig) Available() bool {
	return c.Enabled && c.APIKey != "" && c.BaseURL != ""
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	Enabled        bool                `mapstructure:"enabled"`
	APIKey         string              `mapstructure:"api_key"`
	BaseURL        string              `mapstructure:"base_url"`
	Model          string              `mapstructure:"model"`
	TimeoutSeconds int                 `mapstructure:"timeout_seconds"`
	Generation     LLMGenerationConfig `mapstructure:"generation"`
	Prompt         LLMPromptConfig     `mapstructure:"prompt"`
}

// Timeout 返回单次 LLM 调用的超时时间。
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Available 表示 LLM 能力是否可用。
func (c LLMConfig) Available() bool {
	return c.Enabled && c.APIKey != "" && c.BaseURL != ""
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LLMPromptConfig 配置系统提示与上下文包裹格式（可选）。
type LLMPromptConfig struct {
	Rules        string `mapstructure:"rules"`
	RefStart     string `mapstructure:"ref_start"`
	RefEnd       string `mapstructure:"ref_end"`
	NoResultText string `mapstructure:"no_result_text"`
}

// ExtractorConfig 选择 PDF 文本提取后端：fitz（本地 MuPDF）或 tika（远程）。
type ExtractorConfig struct {
	Backend string `mapstructure:"backend"`
}

// ChunkerConfig 配置文本切块策略：window（固定窗口）或 paragraph（段落感知）。
type ChunkerConfig struct {
	Strategy string `mapstructure:"strategy"`
	Size     int    `mapstructure:"size"`
	Overlap  int    `mapstructure:"overlap"`
}

// RetrievalConfig 配置检索相关参数。
type RetrievalConfig struct {
	VectorBackend     string  `mapstructure:"vector_backend"`
	TopK              int     `mapstructure:"top_k"`
	KeywordTopK       int     `mapstructure:"keyword_top_k"`
	FetchK            int     `mapstructure:"fetch_k"`
	MMREnabled        bool    `mapstructure:"mmr_enabled"`
	MMRLambda         float64 `mapstructure:"mmr_lambda"`
	IndexMinWordLen   int     `mapstructure:"index_min_word_len"`
	QueryMinWordLen   int     `mapstructure:"query_min_word_len"`
	EmbedQueryTimeout int     `mapstructure:"embed_query_timeout_seconds"`
	BuildTimeout      int     `mapstructure:"build_timeout_seconds"`
}

// IndexBuildTimeout 返回建索引时向量化的时间上限。它不超过请求超时的四分之三，
// 为超时降级之后的归档与会话写入留出时间。
func (c *Config) IndexBuildTimeout() time.Duration {
	build := time.Duration(c.Retrieval.BuildTimeout) * time.Second
	if c.Server.RequestTimeout > 0 {
		limit := time.Duration(c.Server.RequestTimeout) * time.Second * 3 / 4
		if build <= 0 || build > limit {
			build = limit
		}
	}
	return build
}

// SynthConfig 配置回答合成相关参数。
type SynthConfig struct {
	MaxAnswerChars int `mapstructure:"max_answer_chars"`
}

// SessionConfig 配置会话存储。
type SessionConfig struct {
	Backend        string `mapstructure:"backend"`
	TTLMinutes     int    `mapstructure:"ttl_minutes"`
	JanitorSeconds int    `mapstructure:"janitor_interval_seconds"`
	MaxHistory     int    `mapstructure:"max_history"`
	HistoryForLLM  int    `mapstructure:"history_for_llm"`
}

// TTL 返回会话的空闲过期时间。
func (c SessionConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// JanitorInterval 返回过期清理的执行间隔。
func (c SessionConfig) JanitorInterval() time.Duration {
	return time.Duration(c.JanitorSeconds) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.max_upload_mb", 32)
	v.SetDefault("server.request_timeout_seconds", 120)
	v.SetDefault("server.upload_dir", "uploads")
	v.SetDefault("server.rate_limit_per_second", 0)
	v.SetDefault("server.rate_burst", 20)
	// 没有默认值的键也需要注册，AutomaticEnv 才能在 Unmarshal 时覆盖它们
	for _, key := range []string{
		"database.mysql.dsn", "database.redis.addr", "database.redis.password",
		"kafka.brokers", "tika.server_url",
		"elasticsearch.addresses", "elasticsearch.username", "elasticsearch.password",
		"minio.endpoint", "minio.access_key_id", "minio.secret_access_key",
		"embedding.api_key", "llm.api_key", "log.output_path",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("kafka.topic", "pdfchat-reprocess")
	v.SetDefault("kafka.group_id", "pdf-chat-go-consumer")
	v.SetDefault("elasticsearch.index_name", "pdfchat_chunks")
	v.SetDefault("minio.bucket_name", "pdfchat")
	v.SetDefault("embedding.enabled", true)
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("embedding.timeout_seconds", 30)
	v.SetDefault("llm.enabled", true)
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout_seconds", 60)
	v.SetDefault("extractor.backend", "fitz")
	v.SetDefault("chunker.strategy", "paragraph")
	v.SetDefault("chunker.size", 1500)
	v.SetDefault("chunker.overlap", 300)
	v.SetDefault("retrieval.vector_backend", "memory")
	v.SetDefault("retrieval.top_k", 8)
	v.SetDefault("retrieval.keyword_top_k", 3)
	v.SetDefault("retrieval.fetch_k", 20)
	v.SetDefault("retrieval.mmr_enabled", true)
	v.SetDefault("retrieval.mmr_lambda", 0.5)
	v.SetDefault("retrieval.index_min_word_len", 4)
	v.SetDefault("retrieval.query_min_word_len", 3)
	v.SetDefault("retrieval.embed_query_timeout_seconds", 15)
	v.SetDefault("retrieval.build_timeout_seconds", 60)
	v.SetDefault("synth.max_answer_chars", 1200)
	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.ttl_minutes", 24*60)
	v.SetDefault("session.janitor_interval_seconds", 300)
	v.SetDefault("session.max_history", 100)
	v.SetDefault("session.history_for_llm", 10)
}

// Load 读取配置文件并返回配置结构体。文件不存在时仅使用默认值与环境变量。
// 环境变量以 PDFCHAT_ 为前缀，例如 PDFCHAT_LLM_API_KEY。
func Load(configPath string) (*Config, error) {
	// .env 可选，存在时先载入，便于在本地存放 API Key
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("读取 .env 失败: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PDFCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return &cfg, nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = *cfg
}
