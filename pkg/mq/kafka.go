package mq

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"lanchat/config"
	"lanchat/internal/model"
	"lanchat/pkg/response"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventMessageSaved 消息落库事件
const EventMessageSaved = "message_saved"

// 待发布事件队列长度，队列满时丢弃新事件
const queueSize = 1024

// Event 发布到 kafka 的事件
type Event struct {
	Type    string                `json:"type"`
	Message *response.MessageInfo `json:"message"`
}

// writer kafka.Writer 的最小子集
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher 把消息事件发布到 kafka，按接收者分区保证同一会话有序
// 事件先入队，由后台协程写出，broker 不可达不会拖慢请求
type Publisher struct {
	w       writer
	timeout time.Duration
	log     *zap.Logger

	mu     sync.RWMutex
	queue  chan kafka.Message
	closed bool
	done   chan struct{}
}

// NewPublisher 创建生产者
func NewPublisher(cfg config.KafkaConfig, log *zap.Logger) *Publisher {
	return newPublisher(&kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           cfg.Timeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}, cfg.Timeout, log)
}

func newPublisher(w writer, timeout time.Duration, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	p := &Publisher{
		w:       w,
		timeout: timeout,
		log:     log,
		queue:   make(chan kafka.Message, queueSize),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Publisher) run() {
	defer close(p.done)
	for m := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.w.WriteMessages(ctx, m)
		cancel()
		if err != nil {
			p.log.Error("发布消息事件失败", zap.ByteString("key", m.Key), zap.Error(err))
		}
	}
}

// MessageSaved 事件入队后立即返回，失败只记录日志
func (p *Publisher) MessageSaved(_ context.Context, msg *model.Message) {
	value, err := json.Marshal(Event{Type: EventMessageSaved, Message: response.FilterMessageInfo(msg)})
	if err != nil {
		p.log.Error("编码消息事件失败", zap.Error(err))
		return
	}
	m := kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(msg.ReceiverID), 10)),
		Value: value,
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- m:
	default:
		p.log.Warn("消息事件队列已满，丢弃事件", zap.Uint("message_id", msg.ID))
	}
}

// Close 写完已入队的事件后关闭生产者
func (p *Publisher) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	<-p.done
	return p.w.Close()
}
