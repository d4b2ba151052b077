package service

import (
	"context"
	"errors"
	"time"

	"lanchat/internal/model"
	"lanchat/internal/protocol"
	"lanchat/internal/repository"
	"lanchat/pkg/errorx"

	"go.uber.org/zap"
)

// Repository 调度器依赖的持久化操作
// 空列表是正常结果，记录不存在返回 repository.ErrNotFound
type Repository interface {
	FindUserByCredentials(ctx context.Context, username, password string) (*model.User, error)
	CountUsersByUsername(ctx context.Context, username string) (int64, error)
	InsertUser(ctx context.Context, username, password, nickname, avatarPath string) (*model.User, error)
	UserExists(ctx context.Context, id uint) (bool, error)
	UpdateUserStatus(ctx context.Context, id uint, status int) error
	UpdateLastLogin(ctx context.Context, id uint, at time.Time) error
	SearchUsersByNickname(ctx context.Context, userID uint, keyword string, excludeFriends bool) ([]model.User, error)

	ListFriends(ctx context.Context, userID uint) ([]model.Friend, error)
	IsFriend(ctx context.Context, a, b uint) (bool, error)
	InsertFriendship(ctx context.Context, a, b uint, remarkName string) error
	DeleteFriendship(ctx context.Context, a, b uint) error

	InsertMessage(ctx context.Context, m *model.Message) error
	ListMessages(ctx context.Context, a, b uint, limit int) ([]model.Message, error)
	MarkMessagesRead(ctx context.Context, receiverID, senderID uint) (int64, error)
	CountUnread(ctx context.Context, receiverID, senderID uint) (int64, error)
}

// Presence 在线状态缓存，失败只记日志
type Presence interface {
	Online(ctx context.Context, userID uint, username string) error
	Refresh(ctx context.Context, userID uint, username string) error
	Offline(ctx context.Context, userID uint) error
}

// Notifier 消息保存后的旁路通知，不影响请求结果
type Notifier interface {
	MessageSaved(ctx context.Context, m *model.Message)
}

// TokenIssuer 推送通道令牌签发
type TokenIssuer interface {
	IssueToken(userID uint, username string) (string, error)
}

// Principal 会话绑定的身份，UserID 为 0 表示未登录
type Principal struct {
	UserID   uint
	Username string
}

// Authenticated 是否已登录
func (p Principal) Authenticated() bool { return p.UserID != 0 }

// Dispatcher 无状态的命令调度器
type Dispatcher struct {
	repo         Repository
	presence     Presence
	notifier     Notifier
	tokens       TokenIssuer
	log          *zap.Logger
	now          func() time.Time
	requireLogin bool
}

// Option 调度器可选项
type Option func(*Dispatcher)

func WithPresence(p Presence) Option       { return func(d *Dispatcher) { d.presence = p } }
func WithNotifier(n Notifier) Option       { return func(d *Dispatcher) { d.notifier = n } }
func WithTokenIssuer(t TokenIssuer) Option { return func(d *Dispatcher) { d.tokens = t } }
func WithLogger(l *zap.Logger) Option      { return func(d *Dispatcher) { d.log = l } }
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithRequireLogin 为 false 时未登录会话沿用请求中的用户ID
func WithRequireLogin(v bool) Option { return func(d *Dispatcher) { d.requireLogin = v } }

// NewDispatcher 创建调度器
func NewDispatcher(repo Repository, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		repo:         repo,
		presence:     nopPresence{},
		notifier:     nopNotifier{},
		log:          zap.NewNop(),
		now:          time.Now,
		requireLogin: true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch 执行一个请求并返回响应，业务失败与存储失败都转换为该命令的失败响应
func (d *Dispatcher) Dispatch(ctx context.Context, p Principal, req protocol.Request) protocol.Response {
	if err := d.authorize(p, req); err != nil {
		return d.fail(req, err)
	}

	var (
		resp protocol.Response
		err  error
	)
	switch r := req.(type) {
	case *protocol.LoginRequest:
		resp, err = d.login(ctx, p, r)
	case *protocol.RegisterRequest:
		resp, err = d.register(ctx, r)
	case *protocol.LogoutRequest:
		resp, err = d.logout(ctx, r)
	case *protocol.GetTokenRequest:
		resp, err = d.token(p)
	case *protocol.PingRequest:
		resp = d.ping(ctx, p)
	case *protocol.GetFriendsRequest:
		resp, err = d.getFriends(ctx, r)
	case *protocol.SearchUsersRequest:
		resp, err = d.searchUsers(ctx, r)
	case *protocol.AddFriendRequest:
		resp, err = d.addFriend(ctx, r)
	case *protocol.RemoveFriendRequest:
		resp, err = d.removeFriend(ctx, r)
	case *protocol.GetMessagesRequest:
		resp, err = d.getMessages(ctx, r)
	case *protocol.SaveMessageRequest:
		resp, err = d.saveMessage(ctx, r)
	case *protocol.MarkReadRequest:
		resp, err = d.markRead(ctx, r)
	case *protocol.GetUnreadRequest:
		resp, err = d.getUnread(ctx, r)
	default:
		return &protocol.ProtocolError{}
	}
	if err != nil {
		return d.fail(req, err)
	}
	return resp
}

// authorize 已登录会话只能以自己的身份操作
func (d *Dispatcher) authorize(p Principal, req protocol.Request) error {
	scoped, ok := req.(protocol.Scoped)
	if !ok {
		return nil
	}
	if p.Authenticated() {
		if scoped.Subject() != p.UserID {
			return errorx.ErrUnauthorized
		}
		return nil
	}
	if _, isToken := req.(*protocol.GetTokenRequest); isToken || d.requireLogin {
		return errorx.ErrNotLoggedIn
	}
	return nil
}

func (d *Dispatcher) fail(req protocol.Request, err error) protocol.Response {
	var codeErr *errorx.CodeError
	if !errors.As(err, &codeErr) || codeErr.Code == errorx.CodeDBError || codeErr.Code == errorx.CodeServerBusy {
		d.log.Error("命令执行失败", zap.String("command", req.Command()), zap.Error(err))
	} else {
		d.log.Debug("命令被拒绝", zap.String("command", req.Command()), zap.String("reason", codeErr.Msg))
	}
	return req.Fail(errorx.Message(err))
}

// storeErr 存储层错误统一包装为服务繁忙，原因只写日志
func storeErr(err error) error {
	return errorx.Wrap(err, errorx.CodeDBError, errorx.ErrServerBusy.Msg)
}

// requireUser 引用的用户必须存在
func (d *Dispatcher) requireUser(ctx context.Context, id uint) error {
	ok, err := d.repo.UserExists(ctx, id)
	if err != nil {
		return storeErr(err)
	}
	if !ok {
		return errorx.ErrUserNotExist
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
