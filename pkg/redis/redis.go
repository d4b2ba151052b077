package redis

import (
	"context"
	"fmt"
	"time"

	"lanchat/config"

	"github.com/redis/go-redis/v9"
)

// Client 在线状态与离线推送队列共用的 Redis 客户端
type Client struct {
	rdb         *redis.Client
	presenceTTL time.Duration
}

// NewClient 初始化Redis连接
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		// 连接池配置
		PoolSize:     10,              // 连接池大小
		MinIdleConns: 2,               // 最小空闲连接
		MaxRetries:   3,               // 最大重试次数
		DialTimeout:  5 * time.Second, // 连接超时
		ReadTimeout:  3 * time.Second, // 读超时
		WriteTimeout: 3 * time.Second, // 写超时
	})

	// 测试连接
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis连接失败: %w", err)
	}

	return Wrap(rdb, cfg.PresenceTTL), nil
}

// Wrap 包装已有的 go-redis 客户端
func Wrap(rdb *redis.Client, presenceTTL time.Duration) *Client {
	if presenceTTL <= 0 {
		presenceTTL = DefaultPresenceTTL
	}
	return &Client{rdb: rdb, presenceTTL: presenceTTL}
}

// Close 关闭Redis连接
func (c *Client) Close() error {
	return c.rdb.Close()
}

// HealthCheck 检查Redis健康状态
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis连接异常: %w", err)
	}
	return nil
}
