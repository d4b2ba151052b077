package protocol

// 请求命令
const (
	CmdLogin        = "LOGIN"
	CmdRegister     = "REGISTER"
	CmdGetFriends   = "GET_FRIENDS"
	CmdLogout       = "LOGOUT"
	CmdGetMessages  = "GET_MESSAGES"
	CmdSaveMessage  = "SAVE_MESSAGE"
	CmdSearchUsers  = "SEARCH_USERS"
	CmdAddFriend    = "ADD_FRIEND"
	CmdRemoveFriend = "REMOVE_FRIEND"
	CmdMarkRead     = "MARK_READ"
	CmdGetUnread    = "GET_UNREAD"
	CmdGetToken     = "GET_TOKEN"
	CmdPing         = "PING"
)

// Request 解码后的请求
// Fail 构造该命令对应的失败响应
type Request interface {
	Command() string
	Fail(reason string) Response
}

// Scoped 携带调用者用户ID的请求，会话据此校验身份
type Scoped interface {
	Request
	Subject() uint
}

type LoginRequest struct {
	Username string
	Password string
}

func (*LoginRequest) Command() string { return CmdLogin }
func (*LoginRequest) Fail(reason string) Response {
	return &Failure{Cmd: RespLoginFail, Reason: reason}
}

type RegisterRequest struct {
	Username   string
	Password   string
	Nickname   string
	AvatarPath string // 为空时由业务层使用默认头像
}

func (*RegisterRequest) Command() string { return CmdRegister }
func (*RegisterRequest) Fail(reason string) Response {
	return &Failure{Cmd: RespRegisterFail, Reason: reason}
}

type GetFriendsRequest struct {
	UserID uint
}

func (*GetFriendsRequest) Command() string { return CmdGetFriends }
func (r *GetFriendsRequest) Subject() uint { return r.UserID }
func (*GetFriendsRequest) Fail(reason string) Response {
	return &Failure{Cmd: RespFriendListFail, Reason: reason}
}

type LogoutRequest struct {
	UserID uint
}

func (*LogoutRequest) Command() string { return CmdLogout }
func (r *LogoutRequest) Subject() uint { return r.UserID }
func (*LogoutRequest) Fail(reason string) Response {
	return &Failure{Cmd: RespLogoutFail, Reason: reason}
}

// GetMessagesRequest Limit 为 0 表示全部历史
type GetMessagesRequest struct {
	UserID uint
	PeerID uint
	Limit  int
}

func (*GetMessagesRequest) Command() string { return CmdGetMessages }
func (r *GetMessagesRequest) Subject() uint { return r.UserID }
func (*GetMessagesRequest) Fail(reason string) Response {
	return &Failure{Cmd: RespMessageListFail, Reason: reason}
}

// SaveMessageRequest FileName/FileSize 仅在文件消息中出现在线上
type SaveMessageRequest struct {
	SenderID    uint
	ReceiverID  uint
	ContentType int
	Content     string
	FileName    string
	FileSize    int64
}

func (*SaveMessageRequest) Command() string { return CmdSaveMessage }
func (r *SaveMessageRequest) Subject() uint { return r.SenderID }
func (*SaveMessageRequest) Fail(reason string) Response {
	return FailResult(RespMessageSaved, reason)
}

type SearchUsersRequest struct {
	UserID         uint
	Keyword        string
	ExcludeFriends bool
}

func (*SearchUsersRequest) Command() string { return CmdSearchUsers }
func (r *SearchUsersRequest) Subject() uint { return r.UserID }
func (*SearchUsersRequest) Fail(reason string) Response {
	return &Failure{Cmd: RespSearchFail, Reason: reason}
}

type AddFriendRequest struct {
	UserID     uint
	FriendID   uint
	RemarkName string
}

func (*AddFriendRequest) Command() string { return CmdAddFriend }
func (r *AddFriendRequest) Subject() uint { return r.UserID }
func (*AddFriendRequest) Fail(reason string) Response {
	return FailResult(RespAddFriendResult, reason)
}

type RemoveFriendRequest struct {
	UserID   uint
	FriendID uint
}

func (*RemoveFriendRequest) Command() string { return CmdRemoveFriend }
func (r *RemoveFriendRequest) Subject() uint { return r.UserID }
func (*RemoveFriendRequest) Fail(reason string) Response {
	return FailResult(RespRemoveFriendResult, reason)
}

type MarkReadRequest struct {
	UserID uint
	PeerID uint
}

func (*MarkReadRequest) Command() string { return CmdMarkRead }
func (r *MarkReadRequest) Subject() uint { return r.UserID }
func (*MarkReadRequest) Fail(reason string) Response {
	return FailResult(RespMarkReadResult, reason)
}

type GetUnreadRequest struct {
	UserID uint
	PeerID uint
}

func (*GetUnreadRequest) Command() string { return CmdGetUnread }
func (r *GetUnreadRequest) Subject() uint { return r.UserID }
func (*GetUnreadRequest) Fail(reason string) Response {
	return &Failure{Cmd: RespUnreadCountFail, Reason: reason}
}

type GetTokenRequest struct {
	UserID uint
}

func (*GetTokenRequest) Command() string { return CmdGetToken }
func (r *GetTokenRequest) Subject() uint { return r.UserID }
func (*GetTokenRequest) Fail(reason string) Response {
	return FailResult(RespTokenResult, reason)
}

type PingRequest struct{}

func (*PingRequest) Command() string             { return CmdPing }
func (*PingRequest) Fail(reason string) Response { return &ProtocolError{} }
