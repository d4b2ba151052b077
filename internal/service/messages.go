package service

import (
	"context"

	"lanchat/internal/model"
	"lanchat/internal/protocol"
	"lanchat/pkg/errorx"
)

func (d *Dispatcher) getMessages(ctx context.Context, r *protocol.GetMessagesRequest) (protocol.Response, error) {
	messages, err := d.repo.ListMessages(ctx, r.UserID, r.PeerID, r.Limit)
	if err != nil {
		return nil, storeErr(err)
	}
	return &protocol.MessageList{Messages: messages}, nil
}

// saveMessage 发送时间由服务端指定，保存成功后通知推送通道
func (d *Dispatcher) saveMessage(ctx context.Context, r *protocol.SaveMessageRequest) (protocol.Response, error) {
	if err := validateMessage(r); err != nil {
		return nil, err
	}
	if err := d.requireUser(ctx, r.SenderID); err != nil {
		return nil, err
	}
	if err := d.requireUser(ctx, r.ReceiverID); err != nil {
		return nil, err
	}

	m := &model.Message{
		SenderID:    r.SenderID,
		ReceiverID:  r.ReceiverID,
		ContentType: r.ContentType,
		Content:     r.Content,
		SendTime:    d.now(),
	}
	if r.ContentType == model.ContentFile {
		m.FileName = r.FileName
		m.FileSize = r.FileSize
	}
	if err := d.repo.InsertMessage(ctx, m); err != nil {
		return nil, storeErr(err)
	}

	d.notifier.MessageSaved(ctx, m)
	return protocol.OKResult(protocol.RespMessageSaved), nil
}

func validateMessage(r *protocol.SaveMessageRequest) error {
	switch r.ContentType {
	case model.ContentText:
		if r.Content == "" {
			return errorx.InvalidParam("消息内容不能为空")
		}
	case model.ContentFile:
		if r.FileName == "" {
			return errorx.InvalidParam("文件名不能为空")
		}
		if r.FileSize < 0 {
			return errorx.InvalidParam("文件大小无效")
		}
	default:
		return errorx.InvalidParam("不支持的消息类型")
	}
	return nil
}

func (d *Dispatcher) markRead(ctx context.Context, r *protocol.MarkReadRequest) (protocol.Response, error) {
	if _, err := d.repo.MarkMessagesRead(ctx, r.UserID, r.PeerID); err != nil {
		return nil, storeErr(err)
	}
	return protocol.OKResult(protocol.RespMarkReadResult), nil
}

func (d *Dispatcher) getUnread(ctx context.Context, r *protocol.GetUnreadRequest) (protocol.Response, error) {
	n, err := d.repo.CountUnread(ctx, r.UserID, r.PeerID)
	if err != nil {
		return nil, storeErr(err)
	}
	return &protocol.UnreadCount{PeerID: r.PeerID, Count: n}, nil
}
