// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"pdf-chat-go/internal/config"
	"pdf-chat-go/pkg/log"
	"pdf-chat-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// maxAttempts 是同一任务失败后允许的最多处理次数，达到后提交 offset 放弃。
const maxAttempts = 3

var retryBackoff = time.Second

// TaskProcessor 处理重处理任务，使消费者与具体业务解耦。
type TaskProcessor interface {
	ProcessTask(ctx context.Context, task tasks.ReprocessTask) error
}

// Producer 发送重处理任务。
type Producer struct {
	w *kafka.Writer
}

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers(cfg)...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{w: w}
}

// ProduceReprocessTask 发送一个重处理任务，以文档 ID 作为消息 key。
func (p *Producer) ProduceReprocessTask(ctx context.Context, task tasks.ReprocessTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", task.DocumentID)),
		Value: taskBytes,
	})
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.w.Close()
}

// AttemptCounter 记录任务的失败次数。
type AttemptCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string)
}

// RedisAttempts 使用 Redis 计数，多个消费者实例共享。
type RedisAttempts struct {
	RDB *redis.Client
}

// Incr 实现 AttemptCounter。
func (r RedisAttempts) Incr(ctx context.Context, key string) (int64, error) {
	n, err := r.RDB.Incr(ctx, key).Result()
	if err == nil {
		_ = r.RDB.Expire(ctx, key, 24*time.Hour).Err()
	}
	return n, err
}

// Reset 实现 AttemptCounter。
func (r RedisAttempts) Reset(ctx context.Context, key string) {
	_ = r.RDB.Del(ctx, key).Err()
}

// LocalAttempts 在进程内计数，没有 Redis 时使用。
type LocalAttempts struct {
	mu     sync.Mutex
	counts map[string]int64
}

// Incr 实现 AttemptCounter。
func (l *LocalAttempts) Incr(_ context.Context, key string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts == nil {
		l.counts = make(map[string]int64)
	}
	l.counts[key]++
	return l.counts[key], nil
}

// Reset 实现 AttemptCounter。
func (l *LocalAttempts) Reset(_ context.Context, key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.counts, key)
}

// messageReader 是消费者用到的 kafka.Reader 子集。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// StartConsumer 启动消费者，阻塞直到 ctx 结束。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor, attempts AttemptCounter) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)
	consume(ctx, r, processor, attempts)
}

func consume(ctx context.Context, r messageReader, processor TaskProcessor, attempts AttemptCounter) {
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Info("Kafka 消费者退出")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		var task tasks.ReprocessTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		log.Infof("开始处理重处理任务: DocumentID=%d, SessionID=%s", task.DocumentID, task.SessionID)
		attemptsKey := fmt.Sprintf("kafka:attempts:reprocess:%d", task.DocumentID)
		if !handle(ctx, processor, attempts, attemptsKey, task) {
			// ctx 已结束，不提交 offset。消费组 reader 不会重新拉取这条消息，
			// 它要等到分区重新分配或进程重启后才会再次投递
			continue
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}

// handle 处理任务，失败时按次数退避重试，成功或达到 maxAttempts 时返回 true 表示可以提交。
// 只有 ctx 结束时返回 false。
func handle(ctx context.Context, processor TaskProcessor, attempts AttemptCounter, key string, task tasks.ReprocessTask) bool {
	var tries int64
	for {
		err := processor.ProcessTask(ctx, task)
		if err == nil {
			log.Infof("重处理任务成功: DocumentID=%d", task.DocumentID)
			attempts.Reset(ctx, key)
			return true
		}
		log.Errorf("处理重处理任务失败: DocumentID=%d, Error: %v", task.DocumentID, err)

		tries++
		n, incErr := attempts.Incr(ctx, key)
		if incErr != nil {
			log.Warnf("记录重试次数失败, 改用本次消费的计数: key=%s, error: %v", key, incErr)
			n = tries
		}
		if n >= maxAttempts {
			log.Errorf("重处理任务多次失败(>=%d)，提交 offset 终止重试: DocumentID=%d", maxAttempts, task.DocumentID)
			attempts.Reset(ctx, key)
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(retryBackoff * time.Duration(n)):
		}
	}
}
