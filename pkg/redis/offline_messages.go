package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// 离线推送相关常量
const (
	OfflineMessagesKeyPrefix = "lanchat:offline:" // 离线推送key前缀
	OfflineMessagesTTL       = 7 * 24 * time.Hour // 7天过期
	OfflineMessagesMax       = 100                // 每个用户最多保留的条数
)

func offlineKey(receiverID uint) string {
	return fmt.Sprintf("%s%d", OfflineMessagesKeyPrefix, receiverID)
}

// AddOfflineMessage 推送通道未连接时暂存事件，只保留最新的若干条
func (c *Client) AddOfflineMessage(ctx context.Context, receiverID uint, payload []byte) error {
	key := offlineKey(receiverID)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, payload)
		pipe.LTrim(ctx, key, -OfflineMessagesMax, -1)
		pipe.Expire(ctx, key, OfflineMessagesTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("添加离线消息失败: %w", err)
	}
	return nil
}

// DrainOfflineMessages 按入队顺序取出并清空暂存事件
func (c *Client) DrainOfflineMessages(ctx context.Context, receiverID uint) ([][]byte, error) {
	key := offlineKey(receiverID)

	var lrange *redis.StringSliceCmd
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		lrange = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("获取离线消息失败: %w", err)
	}

	items := lrange.Val()
	payloads := make([][]byte, 0, len(items))
	for _, item := range items {
		payloads = append(payloads, []byte(item))
	}
	return payloads, nil
}
