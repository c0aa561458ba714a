package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"merchantpay/internal/infrastructure/mq"

	"github.com/spf13/cobra"
)

func replayDLQCmd() *cobra.Command {
	var limit int
	var idle time.Duration
	var group string

	cmd := &cobra.Command{
		Use:   "replay-dlq",
		Short: "把死信消息重新投递到原 topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			producer := mq.InitKafka(&cfg.Kafka)
			publisher := mq.NewKafkaPublisher(producer)
			defer publisher.Close()

			consumer := mq.NewConsumer(
				mq.InitConsumerGroup(&cfg.Kafka, group),
				group,
				[]string{cfg.Kafka.Topic.DeadLetter},
				cfg.Kafka.ErrorBackoff,
			)
			defer consumer.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			r := newReplayer(publisher, limit, cancel)
			go r.stopWhenIdle(ctx, idle)

			if err := consumer.Run(ctx, r.Handle); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "已重放 %d 条死信\n", r.replayed.Load())
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "最多重放条数，0 表示不限")
	cmd.Flags().DurationVar(&idle, "idle", 10*time.Second, "无新消息多久后退出")
	cmd.Flags().StringVar(&group, "group", "opsctl-dlq-replay", "消费组")
	return cmd
}

var errReplayLimit = errors.New("已达到重放上限")

// replayer 消费死信 topic，还原原始消息后重新投递
type replayer struct {
	publisher mq.Publisher
	limit     int64
	done      func()
	replayed  atomic.Int64
	lastSeen  atomic.Int64
}

func newReplayer(publisher mq.Publisher, limit int, done func()) *replayer {
	r := &replayer{publisher: publisher, limit: int64(limit), done: done}
	r.lastSeen.Store(time.Now().UnixNano())
	return r
}

func (r *replayer) Handle(ctx context.Context, msg *mq.Message) error {
	r.lastSeen.Store(time.Now().UnixNano())

	if r.limit > 0 && r.replayed.Load() >= r.limit {
		r.done()
		// 不提交，留给下一次重放
		return errReplayLimit
	}

	dl, err := mq.DecodeDeadLetter(msg.Value)
	if err != nil {
		log.Printf("[Replay] 跳过无法解析的死信: offset=%d, err=%v", msg.Offset, err)
		return nil
	}

	if err := r.publisher.Send(ctx, dl.ReplayMessage()); err != nil {
		return fmt.Errorf("重放失败: %w", err)
	}

	n := r.replayed.Add(1)
	log.Printf("[Replay] 已重放: topic=%s, type=%s, reason=%s", dl.OriginalTopic, dl.EventType, dl.FailureReason)
	if r.limit > 0 && n >= r.limit {
		r.done()
	}
	return nil
}

func (r *replayer) stopWhenIdle(ctx context.Context, idle time.Duration) {
	if idle <= 0 {
		return
	}
	ticker := time.NewTicker(idle / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Since(time.Unix(0, r.lastSeen.Load())) >= idle {
				r.done()
				return
			}
		}
	}
}
