package protocol

import "lanchat/internal/model"

// 响应命令
const (
	RespLoginSuccess       = "LOGIN_SUCCESS"
	RespLoginFail          = "LOGIN_FAIL"
	RespRegisterSuccess    = "REGISTER_SUCCESS"
	RespRegisterFail       = "REGISTER_FAIL"
	RespFriendList         = "FRIEND_LIST"
	RespFriendListFail     = "FRIEND_LIST_FAIL"
	RespLogoutSuccess      = "LOGOUT_SUCCESS"
	RespLogoutFail         = "LOGOUT_FAIL"
	RespMessageList        = "MESSAGE_LIST"
	RespMessageListFail    = "MESSAGE_LIST_FAIL"
	RespMessageSaved       = "MESSAGE_SAVED"
	RespSearchResult       = "SEARCH_RESULT"
	RespSearchFail         = "SEARCH_FAIL"
	RespAddFriendResult    = "ADD_FRIEND_RESULT"
	RespRemoveFriendResult = "REMOVE_FRIEND_RESULT"
	RespMarkReadResult     = "MARK_READ_RESULT"
	RespUnreadCount        = "UNREAD_COUNT"
	RespUnreadCountFail    = "UNREAD_COUNT_FAIL"
	RespTokenResult        = "TOKEN_RESULT"
	RespPong               = "PONG"
	RespError              = "ERROR"

	resultSuccess = "SUCCESS"
	resultFail    = "FAIL"
	badRequest    = "BAD_REQUEST"
)

// Response 待编码的响应
type Response interface {
	Command() string
}

// LoginSuccess LOGIN_SUCCESS|id|username|nickname|avatarPath|status
type LoginSuccess struct {
	User model.User
}

func (*LoginSuccess) Command() string { return RespLoginSuccess }

// Failure <CMD>|reason
type Failure struct {
	Cmd    string
	Reason string
}

func (f *Failure) Command() string { return f.Cmd }

// Ack 只有命令本身，如 REGISTER_SUCCESS、PONG
type Ack struct {
	Cmd string
}

func (a *Ack) Command() string { return a.Cmd }

// Result <CMD>|SUCCESS[|extra...] 或 <CMD>|FAIL|reason
type Result struct {
	Cmd    string
	OK     bool
	Reason string
	Extra  []string
}

func (r *Result) Command() string { return r.Cmd }

// OKResult 成功结果
func OKResult(cmd string, extra ...string) *Result {
	return &Result{Cmd: cmd, OK: true, Extra: extra}
}

// FailResult 失败结果
func FailResult(cmd, reason string) *Result {
	return &Result{Cmd: cmd, Reason: reason}
}

// UserList FRIEND_LIST / SEARCH_RESULT，每个用户 5 个字段
type UserList struct {
	Cmd   string
	Users []model.User
}

func (l *UserList) Command() string { return l.Cmd }

// MessageList MESSAGE_LIST，每条消息 8 个字段
type MessageList struct {
	Messages []model.Message
}

func (*MessageList) Command() string { return RespMessageList }

// UnreadCount UNREAD_COUNT|peerId|n
type UnreadCount struct {
	PeerID uint
	Count  int64
}

func (*UnreadCount) Command() string { return RespUnreadCount }

// ProtocolError ERROR|BAD_REQUEST
type ProtocolError struct{}

func (*ProtocolError) Command() string { return RespError }
