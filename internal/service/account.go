package service

import (
	"context"
	"errors"
	"strings"

	"lanchat/internal/model"
	"lanchat/internal/protocol"
	"lanchat/internal/repository"
	"lanchat/pkg/errorx"

	"go.uber.org/zap"
)

// login 校验凭据，成功后置为在线并记录登录时间
func (d *Dispatcher) login(ctx context.Context, p Principal, r *protocol.LoginRequest) (protocol.Response, error) {
	if p.Authenticated() {
		return nil, errorx.ErrAlreadyLoggedIn
	}

	// 与注册一致，用户名去掉首尾空白，密码原样比较
	user, err := d.repo.FindUserByCredentials(ctx, strings.TrimSpace(r.Username), r.Password)
	if err != nil {
		if isNotFound(err) {
			return nil, errorx.ErrInvalidPassword
		}
		return nil, storeErr(err)
	}

	if err := d.repo.UpdateUserStatus(ctx, user.ID, model.StatusOnline); err != nil {
		return nil, storeErr(err)
	}
	if err := d.repo.UpdateLastLogin(ctx, user.ID, d.now()); err != nil {
		return nil, storeErr(err)
	}
	user.Status = model.StatusOnline

	if err := d.presence.Online(ctx, user.ID, user.Username); err != nil {
		d.log.Warn("设置在线状态失败", zap.Uint("user_id", user.ID), zap.Error(err))
	}

	d.log.Info("用户登录", zap.Uint("user_id", user.ID), zap.String("username", user.Username))
	return &protocol.LoginSuccess{User: *user}, nil
}

// register 用户名唯一性以存储层唯一索引为准，预检查只用于快速失败
func (d *Dispatcher) register(ctx context.Context, r *protocol.RegisterRequest) (protocol.Response, error) {
	in, err := newRegisterInput(r)
	if err != nil {
		return nil, err
	}

	count, err := d.repo.CountUsersByUsername(ctx, in.Username)
	if err != nil {
		return nil, storeErr(err)
	}
	if count > 0 {
		return nil, errorx.ErrUserExist
	}

	user, err := d.repo.InsertUser(ctx, in.Username, in.Password, in.Nickname, in.AvatarPath)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) {
			return nil, errorx.ErrUserExist
		}
		return nil, storeErr(err)
	}

	d.log.Info("用户注册", zap.Uint("user_id", user.ID), zap.String("username", user.Username))
	return &protocol.Ack{Cmd: protocol.RespRegisterSuccess}, nil
}

// logout 幂等，用户不存在也返回成功
func (d *Dispatcher) logout(ctx context.Context, r *protocol.LogoutRequest) (protocol.Response, error) {
	if err := d.MarkOffline(ctx, r.UserID); err != nil {
		return nil, storeErr(err)
	}
	return &protocol.Ack{Cmd: protocol.RespLogoutSuccess}, nil
}

// MarkOffline 置为离线并清除在线状态，会话断开时也会调用
func (d *Dispatcher) MarkOffline(ctx context.Context, userID uint) error {
	if err := d.repo.UpdateUserStatus(ctx, userID, model.StatusOffline); err != nil {
		return err
	}
	if err := d.presence.Offline(ctx, userID); err != nil {
		d.log.Warn("清除在线状态失败", zap.Uint("user_id", userID), zap.Error(err))
	}
	return nil
}

// token 签发推送通道令牌，只对已登录会话开放
func (d *Dispatcher) token(p Principal) (protocol.Response, error) {
	if d.tokens == nil {
		return nil, errorx.New(errorx.CodeServerBusy, "推送通道未启用")
	}
	token, err := d.tokens.IssueToken(p.UserID, p.Username)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeServerBusy, errorx.ErrServerBusy.Msg)
	}
	return protocol.OKResult(protocol.RespTokenResult, token), nil
}

// ping 心跳，已登录会话顺带续期在线状态
func (d *Dispatcher) ping(ctx context.Context, p Principal) protocol.Response {
	if p.Authenticated() {
		if err := d.presence.Refresh(ctx, p.UserID, p.Username); err != nil {
			d.log.Warn("刷新在线状态失败", zap.Uint("user_id", p.UserID), zap.Error(err))
		}
	}
	return &protocol.Ack{Cmd: protocol.RespPong}
}
