package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceData 在线状态数据
type PresenceData struct {
	UserID   uint      `json:"user_id"`
	Username string    `json:"username"`
	LastSeen time.Time `json:"last_seen"`
}

// 在线状态相关常量
const (
	PresenceKeyPrefix  = "lanchat:presence:user:" // 用户在线状态key前缀
	OnlineUsersKey     = "lanchat:online:users"   // 在线用户集合key
	DefaultPresenceTTL = 2 * time.Minute          // 在线状态TTL（心跳周期的数倍）
)

func presenceKey(userID uint) string {
	return fmt.Sprintf("%s%d", PresenceKeyPrefix, userID)
}

// Online 标记用户在线，状态带TTL，需靠心跳续期
func (c *Client) Online(ctx context.Context, userID uint, username string) error {
	data, err := json.Marshal(PresenceData{
		UserID:   userID,
		Username: username,
		LastSeen: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("序列化在线状态失败: %w", err)
	}

	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, presenceKey(userID), data, c.presenceTTL)
		pipe.SAdd(ctx, OnlineUsersKey, userID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("设置用户在线状态失败: %w", err)
	}
	return nil
}

// Refresh 心跳续期，状态已过期时重新写入
func (c *Client) Refresh(ctx context.Context, userID uint, username string) error {
	ok, err := c.rdb.Expire(ctx, presenceKey(userID), c.presenceTTL).Result()
	if err != nil {
		return fmt.Errorf("刷新用户在线状态失败: %w", err)
	}
	if !ok {
		return c.Online(ctx, userID, username)
	}
	return nil
}

// Offline 移除用户在线状态
func (c *Client) Offline(ctx context.Context, userID uint) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, presenceKey(userID))
		pipe.SRem(ctx, OnlineUsersKey, userID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("删除用户在线状态失败: %w", err)
	}
	return nil
}

// OnlineUsers 在线用户详情，顺带清理已过期的集合成员
func (c *Client) OnlineUsers(ctx context.Context) ([]PresenceData, error) {
	members, err := c.rdb.SMembers(ctx, OnlineUsersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("获取在线用户列表失败: %w", err)
	}

	presences := make([]PresenceData, 0, len(members))
	for _, member := range members {
		id, err := strconv.ParseUint(member, 10, 0)
		if err != nil {
			continue
		}
		data, err := c.rdb.Get(ctx, presenceKey(uint(id))).Result()
		if errors.Is(err, redis.Nil) {
			// TTL 过期，从集合中移除
			c.rdb.SRem(ctx, OnlineUsersKey, member)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("获取用户在线状态失败: %w", err)
		}

		var p PresenceData
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			continue
		}
		presences = append(presences, p)
	}
	return presences, nil
}
