package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 应用配置结构体
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	HTTP      HTTPConfig      `yaml:"http" toml:"http"`
	JWT       JWTConfig       `yaml:"jwt" toml:"jwt"`
	Log       LogConfig       `yaml:"log" toml:"log"`
	Redis     RedisConfig     `yaml:"redis" toml:"redis"`
	WebSocket WebSocketConfig `yaml:"websocket" toml:"websocket"`
	Kafka     KafkaConfig     `yaml:"kafka" toml:"kafka"`
}

// ServerConfig 聊天协议服务器（TCP）配置
type ServerConfig struct {
	Host           string        `yaml:"host" toml:"host"`                     // 监听地址，空表示所有网卡
	Port           string        `yaml:"port" toml:"port"`                     // 监听端口
	IdleTimeout    time.Duration `yaml:"idleTimeout" toml:"idleTimeout"`       // 连接空闲超时（读超时）
	WriteTimeout   time.Duration `yaml:"writeTimeout" toml:"writeTimeout"`     // 写超时
	MaxLineBytes   int           `yaml:"maxLineBytes" toml:"maxLineBytes"`     // 单行最大字节数
	RequireLogin   bool          `yaml:"requireLogin" toml:"requireLogin"`     // 未登录连接只允许 LOGIN/REGISTER/PING
	ReplyMalformed bool          `yaml:"replyMalformed" toml:"replyMalformed"` // 格式错误的行回复 ERROR|BAD_REQUEST
}

// Addr 监听地址 host:port
func (c ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver   string `yaml:"driver" toml:"driver"`     // sqlite / mysql / postgres
	Path     string `yaml:"path" toml:"path"`         // sqlite 文件路径
	Host     string `yaml:"host" toml:"host"`         // 数据库主机地址
	Port     int    `yaml:"port" toml:"port"`         // 数据库端口
	Username string `yaml:"username" toml:"username"` // 数据库用户名
	Password string `yaml:"password" toml:"password"` // 数据库密码
	Database string `yaml:"database" toml:"database"` // 数据库名称
	Charset  string `yaml:"charset" toml:"charset"`   // 字符集（mysql）
	SSLMode  string `yaml:"sslMode" toml:"sslMode"`   // sslmode（postgres）
	MaxIdle  int    `yaml:"maxIdle" toml:"maxIdle"`   // 最大空闲连接数
	MaxOpen  int    `yaml:"maxOpen" toml:"maxOpen"`   // 最大打开连接数
	LogSQL   bool   `yaml:"logSQL" toml:"logSQL"`     // 是否输出SQL日志
}

// HTTPConfig 管理接口（健康检查、统计、推送通道）配置
type HTTPConfig struct {
	Enabled      bool          `yaml:"enabled" toml:"enabled"`
	Addr         string        `yaml:"addr" toml:"addr"`
	Mode         string        `yaml:"mode" toml:"mode"` // gin 模式：debug / release
	AllowOrigins []string      `yaml:"allowOrigins" toml:"allowOrigins"`
	ReadTimeout  time.Duration `yaml:"readTimeout" toml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout" toml:"writeTimeout"`
}

// JWTConfig 推送通道令牌配置
type JWTConfig struct {
	Secret     string        `yaml:"secret" toml:"secret"`         // JWT密钥
	ExpireTime time.Duration `yaml:"expireTime" toml:"expireTime"` // JWT过期时间
	Issuer     string        `yaml:"issuer" toml:"issuer"`         // JWT签发者
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level" toml:"level"`           // 日志级别
	Mode       string `yaml:"mode" toml:"mode"`             // dev 模式同时输出到控制台
	Filename   string `yaml:"filename" toml:"filename"`     // 日志文件名
	MaxSize    int    `yaml:"maxSize" toml:"maxSize"`       // 单个日志文件最大大小(MB)
	MaxBackups int    `yaml:"maxBackups" toml:"maxBackups"` // 最大备份文件数
	MaxAge     int    `yaml:"maxAge" toml:"maxAge"`         // 最大保存天数
	Compress   bool   `yaml:"compress" toml:"compress"`     // 是否压缩
}

// RedisConfig Redis配置（在线状态）
type RedisConfig struct {
	Enabled     bool          `yaml:"enabled" toml:"enabled"`
	Host        string        `yaml:"host" toml:"host"`               // Redis主机地址
	Port        int           `yaml:"port" toml:"port"`               // Redis端口
	Password    string        `yaml:"password" toml:"password"`       // Redis密码
	DB          int           `yaml:"db" toml:"db"`                   // Redis数据库编号
	PresenceTTL time.Duration `yaml:"presenceTTL" toml:"presenceTTL"` // 在线状态TTL
}

// WebSocketConfig 推送通道心跳配置
type WebSocketConfig struct {
	Enabled      bool          `yaml:"enabled" toml:"enabled"`
	PingInterval time.Duration `yaml:"pingInterval" toml:"pingInterval"` // 发送ping的间隔
	ReadTimeout  time.Duration `yaml:"readTimeout" toml:"readTimeout"`   // 读超时时间（未收到任何数据则断开）
}

// KafkaConfig 消息事件发布配置
type KafkaConfig struct {
	Enabled bool          `yaml:"enabled" toml:"enabled"`
	Brokers []string      `yaml:"brokers" toml:"brokers"`
	Topic   string        `yaml:"topic" toml:"topic"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
}

// 配置文件候选路径
var searchPaths = []string{
	"config/config.yaml",
	"config/config.yml",
	"config/config.toml",
}

// LoadConfig 加载配置（混合方式：配置文件 + .env + 环境变量）
func LoadConfig() (*Config, error) {
	// .env 只补充尚未设置的环境变量
	_ = godotenv.Load()

	path := os.Getenv("CHAT_CONFIG")
	if path == "" {
		for _, p := range searchPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	config := getDefaultConfig()
	if path != "" {
		if err := loadFile(path, config); err != nil {
			return nil, err
		}
	}

	overrideWithEnvVars(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// loadFile 按扩展名解析 YAML 或 TOML，覆盖在默认值之上
func loadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), config); err != nil {
			return fmt.Errorf("解析TOML配置失败: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("解析YAML配置失败: %w", err)
		}
	}
	return nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("不支持的数据库驱动: %q", c.Database.Driver)
	}

	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("无效的服务器端口: %q", c.Server.Port)
	}
	if c.Server.MaxLineBytes <= 0 {
		return fmt.Errorf("maxLineBytes 必须大于0")
	}
	if c.WebSocket.Enabled && !c.HTTP.Enabled {
		return fmt.Errorf("启用推送通道需要同时启用 http")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("启用 kafka 需要配置 brokers 和 topic")
	}
	return nil
}

// overrideWithEnvVars 用环境变量覆盖配置
func overrideWithEnvVars(config *Config) {
	// 服务器配置
	if host := getEnv("SERVER_HOST", ""); host != "" {
		config.Server.Host = host
	}
	if port := getEnv("SERVER_PORT", ""); port != "" {
		config.Server.Port = port
	}
	if timeout := getEnvDuration("SERVER_IDLE_TIMEOUT", 0); timeout > 0 {
		config.Server.IdleTimeout = timeout
	}
	if timeout := getEnvDuration("SERVER_WRITE_TIMEOUT", 0); timeout > 0 {
		config.Server.WriteTimeout = timeout
	}
	if n := getEnvInt("SERVER_MAX_LINE_BYTES", 0); n > 0 {
		config.Server.MaxLineBytes = n
	}
	config.Server.RequireLogin = getEnvBool("SERVER_REQUIRE_LOGIN", config.Server.RequireLogin)
	config.Server.ReplyMalformed = getEnvBool("SERVER_REPLY_MALFORMED", config.Server.ReplyMalformed)

	// 数据库配置
	if driver := getEnv("DB_DRIVER", ""); driver != "" {
		config.Database.Driver = driver
	}
	if path := getEnv("DB_PATH", ""); path != "" {
		config.Database.Path = path
	}
	if host := getEnv("DB_HOST", ""); host != "" {
		config.Database.Host = host
	}
	if port := getEnvInt("DB_PORT", 0); port > 0 {
		config.Database.Port = port
	}
	if username := getEnv("DB_USERNAME", ""); username != "" {
		config.Database.Username = username
	}
	if password := getEnv("DB_PASSWORD", ""); password != "" {
		config.Database.Password = password
	}
	if database := getEnv("DB_DATABASE", ""); database != "" {
		config.Database.Database = database
	}
	if maxIdle := getEnvInt("DB_MAX_IDLE", 0); maxIdle > 0 {
		config.Database.MaxIdle = maxIdle
	}
	if maxOpen := getEnvInt("DB_MAX_OPEN", 0); maxOpen > 0 {
		config.Database.MaxOpen = maxOpen
	}

	// HTTP配置
	config.HTTP.Enabled = getEnvBool("HTTP_ENABLED", config.HTTP.Enabled)
	if addr := getEnv("HTTP_ADDR", ""); addr != "" {
		config.HTTP.Addr = addr
	}

	// JWT配置
	if secret := getEnv("JWT_SECRET", ""); secret != "" {
		config.JWT.Secret = secret
	}
	if expireTime := getEnvDuration("JWT_EXPIRE_TIME", 0); expireTime > 0 {
		config.JWT.ExpireTime = expireTime
	}

	// 日志配置
	if level := getEnv("LOG_LEVEL", ""); level != "" {
		config.Log.Level = level
	}
	if mode := getEnv("LOG_MODE", ""); mode != "" {
		config.Log.Mode = mode
	}
	if filename := getEnv("LOG_FILENAME", ""); filename != "" {
		config.Log.Filename = filename
	}

	// Redis配置
	config.Redis.Enabled = getEnvBool("REDIS_ENABLED", config.Redis.Enabled)
	if host := getEnv("REDIS_HOST", ""); host != "" {
		config.Redis.Host = host
	}
	if port := getEnvInt("REDIS_PORT", 0); port > 0 {
		config.Redis.Port = port
	}
	if password := getEnv("REDIS_PASSWORD", ""); password != "" {
		config.Redis.Password = password
	}
	if db := getEnvInt("REDIS_DB", -1); db >= 0 {
		config.Redis.DB = db
	}

	// WebSocket配置
	config.WebSocket.Enabled = getEnvBool("WS_ENABLED", config.WebSocket.Enabled)
	if d := getEnvDuration("WS_PING_INTERVAL", 0); d > 0 {
		config.WebSocket.PingInterval = d
	}
	if d := getEnvDuration("WS_READ_TIMEOUT", 0); d > 0 {
		config.WebSocket.ReadTimeout = d
	}

	// Kafka配置
	config.Kafka.Enabled = getEnvBool("KAFKA_ENABLED", config.Kafka.Enabled)
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		config.Kafka.Brokers = config.Kafka.Brokers[:0]
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				config.Kafka.Brokers = append(config.Kafka.Brokers, b)
			}
		}
	}
	if topic := getEnv("KAFKA_TOPIC", ""); topic != "" {
		config.Kafka.Topic = topic
	}
}

// getDefaultConfig 获取默认配置
func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "1967",
			IdleTimeout:    10 * time.Minute,
			WriteTimeout:   10 * time.Second,
			MaxLineBytes:   64 * 1024,
			RequireLogin:   true,
			ReplyMalformed: true,
		},
		Database: DatabaseConfig{
			Driver:   "sqlite",
			Path:     "data/chat.db",
			Host:     "localhost",
			Port:     3306,
			Username: "chat_user",
			Database: "lanchat",
			Charset:  "utf8mb4",
			SSLMode:  "disable",
			MaxIdle:  10,
			MaxOpen:  100,
		},
		HTTP: HTTPConfig{
			Enabled:      false,
			Addr:         ":8080",
			Mode:         "release",
			AllowOrigins: []string{"*"},
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		JWT: JWTConfig{
			Secret:     "change-me-in-production",
			ExpireTime: 24 * time.Hour,
			Issuer:     "lanchat",
		},
		Log: LogConfig{
			Level:      "info",
			Mode:       "release",
			Filename:   "logs/server.log",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
		Redis: RedisConfig{
			Host:        "localhost",
			Port:        6379,
			DB:          0,
			PresenceTTL: 2 * time.Minute,
		},
		WebSocket: WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  90 * time.Second,
		},
		Kafka: KafkaConfig{
			Topic:   "chat-messages",
			Timeout: 5 * time.Second,
		},
	}
}

// 辅助函数：获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// 辅助函数：获取整数环境变量
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// 辅助函数：获取布尔环境变量
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// 辅助函数：获取时间环境变量
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
