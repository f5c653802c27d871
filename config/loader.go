// =============================================================================
// 📦 RenderFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("renderflow.yaml").
//	    WithEnvPrefix("RENDERFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 RenderFlow 的完整配置结构
type Config struct {
	// Run 运行预算与并发配置
	Run RunConfig `yaml:"run" env:"RUN"`

	// Gate 准入闸门配置
	Gate GateConfig `yaml:"gate" env:"GATE"`

	// Render 渲染后端配置
	Render RenderConfig `yaml:"render" env:"RENDER"`

	// Audit 审计存储配置
	Audit AuditConfig `yaml:"audit" env:"AUDIT"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Metrics 指标配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// RunConfig 运行配置
type RunConfig struct {
	// 预算上限（美元）
	TotalBudget float64 `yaml:"total_budget" env:"TOTAL_BUDGET"`
	// 预算告警阈值（0-1 小数）
	AlertThresholds []float64 `yaml:"alert_thresholds" env:"-"`
	// 单次运行最大条目数，0 不限
	MaxTotalItems int `yaml:"max_total_items" env:"MAX_TOTAL_ITEMS"`
	// 单次运行最大声明成本（美元），0 不限
	MaxTotalCost float64 `yaml:"max_total_cost" env:"MAX_TOTAL_COST"`
	// 有效请求数超过该值时必须显式批准，0 永不要求
	ConfirmationThreshold int `yaml:"confirmation_threshold" env:"CONFIRMATION_THRESHOLD"`
	// 审批等待上限
	ApprovalTimeout time.Duration `yaml:"approval_timeout" env:"APPROVAL_TIMEOUT"`
	// 审批超时结局: reject, approve
	ApprovalTimeoutAction string `yaml:"approval_timeout_action" env:"APPROVAL_TIMEOUT_ACTION"`
	// 全局渲染并发，跨批次共享
	GlobalConcurrencyLimit int `yaml:"global_concurrency_limit" env:"GLOBAL_CONCURRENCY_LIMIT"`
	// 批内并发上限
	PerBatchConcurrencyLimit int `yaml:"per_batch_concurrency_limit" env:"PER_BATCH_CONCURRENCY_LIMIT"`
	// 相邻批次开始之间的最小间隔
	InterBatchDelay time.Duration `yaml:"inter_batch_delay" env:"INTER_BATCH_DELAY"`
	// 单次渲染调用超时
	PerRequestTimeout time.Duration `yaml:"per_request_timeout" env:"PER_REQUEST_TIMEOUT"`
	// 按资产类型的批次大小
	BatchSizes map[string]int `yaml:"batch_sizes" env:"-"`
	// 未登记类型的默认批次大小
	DefaultBatchSize int `yaml:"default_batch_size" env:"DEFAULT_BATCH_SIZE"`
}

// GateConfig 准入闸门配置
type GateConfig struct {
	// 提示词最小长度（rune 数），0 不限
	MinPromptLength int `yaml:"min_prompt_length" env:"MIN_PROMPT_LENGTH"`
	// 提示词最大长度（rune 数），0 不限
	MaxPromptLength int `yaml:"max_prompt_length" env:"MAX_PROMPT_LENGTH"`
	// 禁止关键词
	Blocklist []string `yaml:"blocklist" env:"BLOCKLIST"`
	// 关键词匹配是否区分大小写
	CaseSensitive bool `yaml:"case_sensitive" env:"CASE_SENSITIVE"`
	// 单件渲染耗时估计，进入确认单
	EstimatedTimePerItem time.Duration `yaml:"estimated_time_per_item" env:"ESTIMATED_TIME_PER_ITEM"`
}

// RenderConfig 渲染后端配置
type RenderConfig struct {
	// 渲染提供方: openai, stub
	Provider string `yaml:"provider" env:"PROVIDER"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL（可选）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 单次调用超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 图像质量: standard, hd
	Quality string `yaml:"quality" env:"QUALITY"`
	// 图像风格: vivid, natural
	Style string `yaml:"style" env:"STYLE"`
	// 按资产类型的图像尺寸
	SizeByAsset map[string]string `yaml:"size_by_asset" env:"-"`
	// 内联产物落盘目录，留空则不落盘
	OutputDir string `yaml:"output_dir" env:"OUTPUT_DIR"`
	// 重试策略
	Retry RetryConfig `yaml:"retry" env:"RETRY"`
}

// RetryConfig 渲染重试配置
type RetryConfig struct {
	// 最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 首次重试延迟
	InitialDelay time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY"`
	// 延迟上限
	MaxDelay time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
	// 退避倍率
	Multiplier float64 `yaml:"multiplier" env:"MULTIPLIER"`
	// 是否加 ±25% 抖动
	Jitter bool `yaml:"jitter" env:"JITTER"`
}

// AuditConfig 审计存储配置
type AuditConfig struct {
	// 存储后端: memory, file, database, redis
	Store string `yaml:"store" env:"STORE"`
	// file 后端：运行目录根
	Dir string `yaml:"dir" env:"DIR"`
	// file 后端：每次追加后 fsync
	Fsync bool `yaml:"fsync" env:"FSYNC"`
	// database 后端连接串（空则用内存 SQLite）
	DSN string `yaml:"dsn" env:"DSN"`
	// redis 后端
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
}

// RedisConfig Redis 审计后端配置
type RedisConfig struct {
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 运行数据过期时间，0 永不过期
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否启用 Prometheus 采集
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 指标命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
	// 抓取端点监听地址，留空则不暴露。长任务运行期间可被 Prometheus 抓取
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "RENDERFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
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

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置。路径是显式指定的，文件缺失
// 按错误处理：带着打错的 --config 静默跑默认配置会花真钱。
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

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

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置并验证，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().
		WithConfigPath(path).
		WithValidator((*Config).Validate).
		Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// =============================================================================
// 🛡️ 配置验证
// =============================================================================

// 已知枚举值。
var (
	knownStores      = map[string]bool{"memory": true, "file": true, "database": true, "redis": true}
	knownProviders   = map[string]bool{"openai": true, "stub": true}
	knownLogLevels   = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	knownLogFormats  = map[string]bool{"json": true, "console": true}
	knownTimeoutActs = map[string]bool{"reject": true, "approve": true}
	knownQualities   = map[string]bool{"": true, "standard": true, "hd": true}
)

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	// 运行配置
	if c.Run.TotalBudget <= 0 {
		errs = append(errs, "run.total_budget must be positive")
	}
	if c.Run.MaxTotalItems < 0 {
		errs = append(errs, "run.max_total_items cannot be negative")
	}
	if c.Run.MaxTotalCost < 0 {
		errs = append(errs, "run.max_total_cost cannot be negative")
	}
	for _, th := range c.Run.AlertThresholds {
		if th <= 0 || th > 1 {
			errs = append(errs, fmt.Sprintf("run.alert_thresholds entry %g must be in (0, 1]", th))
		}
	}
	if c.Run.ConfirmationThreshold < 0 {
		errs = append(errs, "run.confirmation_threshold cannot be negative")
	}
	if c.Run.ApprovalTimeout < 0 {
		errs = append(errs, "run.approval_timeout cannot be negative")
	}
	if !knownTimeoutActs[c.Run.ApprovalTimeoutAction] {
		errs = append(errs, fmt.Sprintf("run.approval_timeout_action %q must be reject or approve", c.Run.ApprovalTimeoutAction))
	}
	if c.Run.GlobalConcurrencyLimit <= 0 {
		errs = append(errs, "run.global_concurrency_limit must be positive")
	}
	if c.Run.PerBatchConcurrencyLimit <= 0 {
		errs = append(errs, "run.per_batch_concurrency_limit must be positive")
	}
	if c.Run.InterBatchDelay < 0 {
		errs = append(errs, "run.inter_batch_delay cannot be negative")
	}
	if c.Run.PerRequestTimeout <= 0 {
		errs = append(errs, "run.per_request_timeout must be positive")
	}
	if c.Run.DefaultBatchSize <= 0 {
		errs = append(errs, "run.default_batch_size must be positive")
	}
	for asset, size := range c.Run.BatchSizes {
		if size <= 0 {
			errs = append(errs, fmt.Sprintf("run.batch_sizes.%s must be positive", asset))
		}
	}

	// 闸门配置
	if c.Gate.MinPromptLength < 0 {
		errs = append(errs, "gate.min_prompt_length cannot be negative")
	}
	if c.Gate.MaxPromptLength < 0 {
		errs = append(errs, "gate.max_prompt_length cannot be negative")
	}
	if c.Gate.MinPromptLength > 0 && c.Gate.MaxPromptLength > 0 &&
		c.Gate.MinPromptLength > c.Gate.MaxPromptLength {
		errs = append(errs, "gate.min_prompt_length cannot exceed gate.max_prompt_length")
	}

	// 渲染配置
	if !knownProviders[c.Render.Provider] {
		errs = append(errs, fmt.Sprintf("render.provider %q is not supported", c.Render.Provider))
	}
	if !knownQualities[c.Render.Quality] {
		errs = append(errs, fmt.Sprintf("render.quality %q must be standard or hd", c.Render.Quality))
	}
	if c.Render.Timeout <= 0 {
		errs = append(errs, "render.timeout must be positive")
	}
	if c.Render.Retry.MaxRetries < 0 {
		errs = append(errs, "render.retry.max_retries cannot be negative")
	}

	// 审计配置
	if !knownStores[c.Audit.Store] {
		errs = append(errs, fmt.Sprintf("audit.store %q is not supported", c.Audit.Store))
	}
	if c.Audit.Store == "file" && c.Audit.Dir == "" {
		errs = append(errs, "audit.dir is required for the file store")
	}
	if c.Audit.Store == "redis" {
		if c.Audit.Redis.Host == "" {
			errs = append(errs, "audit.redis.host is required for the redis store")
		}
		if c.Audit.Redis.Port <= 0 || c.Audit.Redis.Port > 65535 {
			errs = append(errs, "audit.redis.port is out of range")
		}
	}

	// 日志配置
	if !knownLogLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level %q is not supported", c.Log.Level))
	}
	if !knownLogFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format %q must be json or console", c.Log.Format))
	}

	// 指标与遥测
	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		errs = append(errs, "metrics.namespace is required when metrics are enabled")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}
	if c.Telemetry.Enabled {
		if c.Telemetry.OTLPEndpoint == "" {
			errs = append(errs, "telemetry.otlp_endpoint is required when telemetry is enabled")
		}
		if c.Telemetry.ServiceName == "" {
			errs = append(errs, "telemetry.service_name is required when telemetry is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
