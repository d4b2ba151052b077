package errorx

import (
	"errors"
	"fmt"
)

// CodeError 带业务错误码的错误
// 支持 %w 包装底层错误，可被 errors.Is/errors.As 识别
type CodeError struct {
	Code  int    // 业务错误码
	Msg   string // 回给客户端的原因
	cause error  // 被包装的底层错误，只写日志
}

// Error 存在底层错误时返回 "消息: 底层错误"
func (e *CodeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.cause)
	}
	return e.Msg
}

// Unwrap 支持 errors.Is/errors.As 向下追溯
func (e *CodeError) Unwrap() error {
	return e.cause
}

// Is 业务码相同即视为同一类错误
func (e *CodeError) Is(target error) bool {
	t, ok := target.(*CodeError)
	return ok && t.Code == e.Code
}

// New 创建一个新的 CodeError
func New(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

// Wrap 包装底层错误，添加业务错误码和消息
// 用法: errorx.Wrap(err, CodeDBError, "服务繁忙")
func Wrap(err error, code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg, cause: err}
}

// GetCode 提取业务错误码，非 CodeError 返回服务繁忙
func GetCode(err error) int {
	var codeErr *CodeError
	if errors.As(err, &codeErr) {
		return codeErr.Code
	}
	return CodeServerBusy
}

// Message 提取回给客户端的原因，未知错误一律为服务繁忙
func Message(err error) string {
	var codeErr *CodeError
	if errors.As(err, &codeErr) {
		return codeErr.Msg
	}
	return ErrServerBusy.Msg
}

// 业务状态码
const (
	CodeSuccess         = 1000 // 成功
	CodeInvalidParam    = 1001 // 请求参数错误
	CodeUserExist       = 1002 // 用户已存在
	CodeUserNotExist    = 1003 // 用户不存在
	CodeInvalidPassword = 1004 // 用户名或密码错误
	CodeServerBusy      = 1005 // 服务繁忙
	CodeUnauthorized    = 1006 // 身份不匹配
	CodeNotLoggedIn     = 1007 // 未登录
	CodeAlreadyFriends  = 1008 // 已经是好友
	CodeNotFriends      = 1009 // 不是好友
	CodeDBError         = 1010 // 数据库错误
	CodeSelfFriend      = 1011 // 不能添加自己
	CodeAlreadyLoggedIn = 1012 // 当前连接已登录
)

// 预定义错误实例，既可直接返回，也可用于 errors.Is 比较
var (
	ErrInvalidParam    = New(CodeInvalidParam, "请求参数错误")
	ErrUserExist       = New(CodeUserExist, "用户名已存在")
	ErrUserNotExist    = New(CodeUserNotExist, "用户不存在")
	ErrInvalidPassword = New(CodeInvalidPassword, "用户名或密码错误")
	ErrServerBusy      = New(CodeServerBusy, "服务繁忙")
	ErrUnauthorized    = New(CodeUnauthorized, "用户身份不匹配")
	ErrNotLoggedIn     = New(CodeNotLoggedIn, "未登录")
	ErrAlreadyFriends  = New(CodeAlreadyFriends, "已经是好友")
	ErrNotFriends      = New(CodeNotFriends, "不是好友")
	ErrSelfFriend      = New(CodeSelfFriend, "不能添加自己为好友")
	ErrAlreadyLoggedIn = New(CodeAlreadyLoggedIn, "当前连接已登录")
)

// InvalidParam 带具体原因的参数错误
func InvalidParam(msg string) *CodeError {
	return New(CodeInvalidParam, msg)
}
