// Package config 提供配置加载和管理功能
package config

import (
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Storage       StorageConfig       `yaml:"storage" mapstructure:"storage"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Messaging     MessagingConfig     `yaml:"messaging" mapstructure:"messaging"`
	Generation    GenerationConfig    `yaml:"generation" mapstructure:"generation"`
	Converter     ConverterConfig     `yaml:"converter" mapstructure:"converter"`
	Billing       BillingConfig       `yaml:"billing" mapstructure:"billing"`
	Samples       SamplesConfig       `yaml:"samples" mapstructure:"samples"`
	Notify        NotifyConfig        `yaml:"notify" mapstructure:"notify"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
	Features      FeaturesConfig      `yaml:"features" mapstructure:"features"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	SQLite SQLiteConfig `yaml:"sqlite" mapstructure:"sqlite"`
}

// SQLiteConfig SQLite 配置
type SQLiteConfig struct {
	Path            string        `yaml:"path" mapstructure:"path"`
	BusyTimeout     time.Duration `yaml:"busy_timeout" mapstructure:"busy_timeout"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// StorageConfig 产物存储配置
type StorageConfig struct {
	Artifacts ArtifactsConfig `yaml:"artifacts" mapstructure:"artifacts"`
}

// ArtifactsConfig 生成产物落盘配置
type ArtifactsConfig struct {
	// Dir 产物根目录，每个订单占用一个子目录
	Dir string `yaml:"dir" mapstructure:"dir"`
	// WorkDir 生成期间的临时工作目录根
	WorkDir string `yaml:"work_dir" mapstructure:"work_dir"`
	// KeepWorkDir 调试用，保留临时目录不清理
	KeepWorkDir bool `yaml:"keep_work_dir" mapstructure:"keep_work_dir"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	DefaultProvider string                    `yaml:"default_provider" mapstructure:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
	FallbackChain   []string                  `yaml:"fallback_chain" mapstructure:"fallback_chain"`
}

// ProviderConfig LLM 提供商配置
type ProviderConfig struct {
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	Model       string        `yaml:"model" mapstructure:"model"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// MessagingConfig 消息队列配置
type MessagingConfig struct {
	RedisStream RedisStreamConfig `yaml:"redis_stream" mapstructure:"redis_stream"`
}

// RedisStreamConfig Redis Stream 配置
type RedisStreamConfig struct {
	MaxLen        int           `yaml:"max_len" mapstructure:"max_len"`
	BlockTimeout  time.Duration `yaml:"block_timeout" mapstructure:"block_timeout"`
	ClaimInterval time.Duration `yaml:"claim_interval" mapstructure:"claim_interval"`
	RetryLimit    int           `yaml:"retry_limit" mapstructure:"retry_limit"`
	RetryBackoff  BackoffConfig `yaml:"retry_backoff" mapstructure:"retry_backoff"`
}

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial" mapstructure:"initial"`
	Max        time.Duration `yaml:"max" mapstructure:"max"`
	Multiplier float64       `yaml:"multiplier" mapstructure:"multiplier"`
}

// GenerationConfig 文档生成参数配置
type GenerationConfig struct {
	// SymbolsPerPage 一页正文折算的字符数
	SymbolsPerPage int `yaml:"symbols_per_page" mapstructure:"symbols_per_page"`
	// TitlePagePages 标题页折算页数
	TitlePagePages float64 `yaml:"title_page_pages" mapstructure:"title_page_pages"`
	// TOCBasePages 目录页基础页数
	TOCBasePages float64 `yaml:"toc_base_pages" mapstructure:"toc_base_pages"`
	// TOCPerChapterPages 目录页随章节数的增量
	TOCPerChapterPages float64 `yaml:"toc_per_chapter_pages" mapstructure:"toc_per_chapter_pages"`
	// OvershootTolerance 提前终止生成的超额系数
	OvershootTolerance float64 `yaml:"overshoot_tolerance" mapstructure:"overshoot_tolerance"`
	// SubsectionThreshold 启用子小节生成的页数比阈值
	SubsectionThreshold float64 `yaml:"subsection_threshold" mapstructure:"subsection_threshold"`
	// MaxValidationAttempts 单个片段校验失败后的最大重试次数
	MaxValidationAttempts int `yaml:"max_validation_attempts" mapstructure:"max_validation_attempts"`
	// PlanAttempts 工作计划生成的最大尝试次数
	PlanAttempts int `yaml:"plan_attempts" mapstructure:"plan_attempts"`
	// SimpleWorkMaxPages 小于等于该页数的订单走单次生成
	SimpleWorkMaxPages int `yaml:"simple_work_max_pages" mapstructure:"simple_work_max_pages"`
}

// ConverterConfig 文档转换工具配置
type ConverterConfig struct {
	PDFLatexPath    string        `yaml:"pdflatex_path" mapstructure:"pdflatex_path"`
	PandocPath      string        `yaml:"pandoc_path" mapstructure:"pandoc_path"`
	LibreOfficePath string        `yaml:"libreoffice_path" mapstructure:"libreoffice_path"`
	Timeout         time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// MinPDFBytes 小于该体积的 PDF 视为编译失败
	MinPDFBytes int64 `yaml:"min_pdf_bytes" mapstructure:"min_pdf_bytes"`
}

// BillingConfig 计价配置
type BillingConfig struct {
	// BasePrice 订单基础价格，页数不参与计价
	BasePrice int `yaml:"base_price" mapstructure:"base_price"`
	// ModelMultipliers 模型名子串到价格系数的映射
	ModelMultipliers map[string]float64 `yaml:"model_multipliers" mapstructure:"model_multipliers"`
}

// SamplesConfig 示例主题配置
type SamplesConfig struct {
	Themes []string `yaml:"themes" mapstructure:"themes"`
}

// NotifyConfig 管理员通知配置
type NotifyConfig struct {
	Enabled    bool          `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL string        `yaml:"webhook_url" mapstructure:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	Output string `yaml:"output" mapstructure:"output"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Exporter   string  `yaml:"exporter" mapstructure:"exporter"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Port    int    `yaml:"port" mapstructure:"port"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt" mapstructure:"jwt"`
	Admin     AdminConfig     `yaml:"admin" mapstructure:"admin"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" mapstructure:"cors"`
}

// JWTConfig JWT 配置
type JWTConfig struct {
	Secret            string        `yaml:"secret" mapstructure:"secret"`
	Issuer            string        `yaml:"issuer" mapstructure:"issuer"`
	Expiration        time.Duration `yaml:"expiration" mapstructure:"expiration"`
	RefreshExpiration time.Duration `yaml:"refresh_expiration" mapstructure:"refresh_expiration"`
}

// AdminConfig 管理端账号配置
type AdminConfig struct {
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int  `yaml:"burst" mapstructure:"burst"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}

// FeaturesConfig 功能开关配置
type FeaturesConfig struct {
	Validation ValidationFeature `yaml:"validation" mapstructure:"validation"`
	Docx       DocxFeature       `yaml:"docx" mapstructure:"docx"`
}

// ValidationFeature LaTeX 片段校验功能开关
type ValidationFeature struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// KeepOnFailure 重试耗尽后保留片段而不是使任务失败
	KeepOnFailure bool `yaml:"keep_on_failure" mapstructure:"keep_on_failure"`
}

// DocxFeature DOCX 转换功能开关
type DocxFeature struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}
