package response

import (
	"net/http"

	"lanchat/internal/model"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`           // 状态码：0表示成功，其他表示错误
	Message string      `json:"message"`        // 响应消息
	Data    interface{} `json:"data,omitempty"` // 响应数据
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

// Unauthorized 401错误
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message)
}

// ServiceUnavailable 503错误，健康检查失败时使用真实状态码并附带检查结果
func ServiceUnavailable(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusServiceUnavailable, Response{
		Code:    http.StatusServiceUnavailable,
		Message: message,
		Data:    data,
	})
}

// InternalError 500错误
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, message)
}

// UserInfo 用户信息（隐藏密码哈希）
type UserInfo struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	Nickname  string `json:"nickname"`
	Avatar    string `json:"avatar"`
	Status    int    `json:"status"`
	LastLogin string `json:"last_login,omitempty"`
}

// FilterUserInfo 过滤用户信息，隐藏敏感字段
func FilterUserInfo(user *model.User) *UserInfo {
	if user == nil {
		return nil
	}

	info := &UserInfo{
		ID:       user.ID,
		Username: user.Username,
		Nickname: user.Nickname,
		Avatar:   user.AvatarPath,
		Status:   user.Status,
	}
	if user.LastLogin != nil {
		info.LastLogin = user.LastLogin.Format(model.SendTimeLayout)
	}
	return info
}

// MessageInfo 推送通道中的消息
type MessageInfo struct {
	ID          uint   `json:"id"`
	SenderID    uint   `json:"sender_id"`
	ReceiverID  uint   `json:"receiver_id"`
	ContentType int    `json:"content_type"`
	Content     string `json:"content"`
	FileName    string `json:"file_name,omitempty"`
	FileSize    int64  `json:"file_size,omitempty"`
	SendTime    string `json:"send_time"`
}

// FilterMessageInfo 转换消息为推送格式
func FilterMessageInfo(message *model.Message) *MessageInfo {
	if message == nil {
		return nil
	}

	return &MessageInfo{
		ID:          message.ID,
		SenderID:    message.SenderID,
		ReceiverID:  message.ReceiverID,
		ContentType: message.ContentType,
		Content:     message.Content,
		FileName:    message.FileName,
		FileSize:    message.FileSize,
		SendTime:    message.SendTime.Format(model.SendTimeLayout),
	}
}
