// 统一配置加载，支持 YAML 文件 + 环境变量覆盖。
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("causalrag.yaml").
//	    WithEnvPrefix("CAUSALRAG").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/causalrag/causal"
	"github.com/BaSui01/causalrag/embedding"
	"github.com/BaSui01/causalrag/extract"
	"github.com/BaSui01/causalrag/retrieval"
)

// Config 是 causalrag 管线的完整配置。组件级配置（抽取、图构建、检索）
// 仅通过 YAML 文件设置；环境变量覆盖只作用于带 env 标签的运维项。
type Config struct {
	// Extraction 三元组抽取配置
	Extraction extract.Config `yaml:"extraction"`

	// Builder 因果图构建配置
	Builder causal.BuilderConfig `yaml:"builder"`

	// Paths 因果路径检索配置
	Paths causal.PathConfig `yaml:"paths"`

	// BM25 词法检索配置
	BM25 retrieval.BM25Config `yaml:"bm25"`

	// Hybrid 混合检索配置
	Hybrid retrieval.HybridConfig `yaml:"hybrid"`

	// Reranker 因果重排配置
	Reranker retrieval.RerankerConfig `yaml:"reranker"`

	// Embedding 本地哈希嵌入器配置（未注入外部嵌入服务时生效）
	Embedding embedding.HashingEmbedderConfig `yaml:"embedding"`

	// VectorStore 向量索引配置
	VectorStore VectorStoreConfig `yaml:"vector_store" env:"VECTOR_STORE"`

	// Redis 查询缓存后端，Addr 为空时使用进程内 LRU
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Metrics 指标配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// VectorStoreConfig 向量索引配置
type VectorStoreConfig struct {
	// 编码批大小
	BatchSize int `yaml:"batch_size" env:"BATCH_SIZE"`
}

// RedisConfig Redis 查询缓存配置
type RedisConfig struct {
	// 地址，空表示不启用 Redis 后端
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 缓存键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 条目存活时间
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Prometheus namespace
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	required   bool
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "CAUSALRAG",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径。文件不存在时回退到默认值。
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithRequiredConfigPath 设置配置文件路径，文件缺失视为错误。
func (l *Loader) WithRequiredConfigPath(path string) *Loader {
	l.configPath = path
	l.required = true
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置。优先级: 默认值 → YAML 文件 → 环境变量。
// 任何验证失败都在此处报错，不留到运行期。
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) && !l.required {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", l.configPath, err)
	}
	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置带 env 标签的结构体字段。
func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("set %s: %w", envKey, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	}
	return nil
}

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置。配置错误属于程序员/运维错误，快速失败。
func (c *Config) Validate() error {
	var errs []string

	if c.Builder.ConfidenceThreshold < 0 || c.Builder.ConfidenceThreshold > 1 {
		errs = append(errs, "builder.confidence_threshold must be in [0,1]")
	}
	if c.Builder.SimilarityThreshold < 0 || c.Builder.SimilarityThreshold > 1 {
		errs = append(errs, "builder.similarity_threshold must be in [0,1]")
	}
	if c.Paths.NodeThreshold < 0 || c.Paths.NodeThreshold > 1 {
		errs = append(errs, "paths.node_threshold must be in [0,1]")
	}
	if c.Paths.MinPathLength > c.Paths.MaxPathLength+1 {
		errs = append(errs, "paths.min_path_length exceeds the longest possible path")
	}
	if sum := c.Hybrid.SemanticWeight + c.Hybrid.CausalWeight + c.Hybrid.BM25Weight; sum <= 0 {
		errs = append(errs, "hybrid weights must sum to a positive value")
	}
	if c.BM25.K1 <= 0 || c.BM25.B < 0 || c.BM25.B > 1 {
		errs = append(errs, "bm25 parameters out of range (k1 > 0, b in [0,1])")
	}
	if c.VectorStore.BatchSize <= 0 {
		errs = append(errs, "vector_store.batch_size must be positive")
	}
	if c.Embedding.Dimension <= 0 {
		errs = append(errs, "embedding.dimension must be positive")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("unknown log level %q", c.Log.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
