package service

import (
	"context"
	"errors"

	"lanchat/internal/model"
	"lanchat/internal/protocol"
	"lanchat/internal/repository"
	"lanchat/pkg/errorx"
)

func (d *Dispatcher) getFriends(ctx context.Context, r *protocol.GetFriendsRequest) (protocol.Response, error) {
	friends, err := d.repo.ListFriends(ctx, r.UserID)
	if err != nil {
		return nil, storeErr(err)
	}

	users := make([]model.User, 0, len(friends))
	for i := range friends {
		users = append(users, friends[i].DisplayUser())
	}
	return &protocol.UserList{Cmd: protocol.RespFriendList, Users: users}, nil
}

func (d *Dispatcher) searchUsers(ctx context.Context, r *protocol.SearchUsersRequest) (protocol.Response, error) {
	users, err := d.repo.SearchUsersByNickname(ctx, r.UserID, r.Keyword, r.ExcludeFriends)
	if err != nil {
		return nil, storeErr(err)
	}
	return &protocol.UserList{Cmd: protocol.RespSearchResult, Users: users}, nil
}

// addFriend 重复添加（任意方向）返回已经是好友，存储层唯一冲突同样处理
func (d *Dispatcher) addFriend(ctx context.Context, r *protocol.AddFriendRequest) (protocol.Response, error) {
	if r.UserID == r.FriendID {
		return nil, errorx.ErrSelfFriend
	}
	remark, err := cleanRemark(r.RemarkName)
	if err != nil {
		return nil, err
	}
	if err := d.requireUser(ctx, r.UserID); err != nil {
		return nil, err
	}
	if err := d.requireUser(ctx, r.FriendID); err != nil {
		return nil, err
	}

	exists, err := d.repo.IsFriend(ctx, r.UserID, r.FriendID)
	if err != nil {
		return nil, storeErr(err)
	}
	if exists {
		return nil, errorx.ErrAlreadyFriends
	}

	if err := d.repo.InsertFriendship(ctx, r.UserID, r.FriendID, remark); err != nil {
		if errors.Is(err, repository.ErrAlreadyFriends) {
			return nil, errorx.ErrAlreadyFriends
		}
		return nil, storeErr(err)
	}
	return protocol.OKResult(protocol.RespAddFriendResult), nil
}

func (d *Dispatcher) removeFriend(ctx context.Context, r *protocol.RemoveFriendRequest) (protocol.Response, error) {
	if err := d.repo.DeleteFriendship(ctx, r.UserID, r.FriendID); err != nil {
		if isNotFound(err) {
			return nil, errorx.ErrNotFriends
		}
		return nil, storeErr(err)
	}
	return protocol.OKResult(protocol.RespRemoveFriendResult), nil
}
