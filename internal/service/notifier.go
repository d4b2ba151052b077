package service

import (
	"context"

	"lanchat/internal/model"
)

// MultiNotifier 依次通知多个下游
type MultiNotifier []Notifier

func (m MultiNotifier) MessageSaved(ctx context.Context, msg *model.Message) {
	for _, n := range m {
		n.MessageSaved(ctx, msg)
	}
}

type nopNotifier struct{}

func (nopNotifier) MessageSaved(context.Context, *model.Message) {}

type nopPresence struct{}

func (nopPresence) Online(context.Context, uint, string) error  { return nil }
func (nopPresence) Refresh(context.Context, uint, string) error { return nil }
func (nopPresence) Offline(context.Context, uint) error         { return nil }
