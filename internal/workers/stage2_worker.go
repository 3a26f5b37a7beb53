package workers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/labkha-cpu/ai-Apply/internal/services"
)

const (
	DefaultStage2Stream = "stage2:requests"
	DefaultStage2Group  = "stage2-workers"
)

// Enqueue adds a stage 2 request to the stream and returns its entry id.
func Enqueue(ctx context.Context, rdb redis.Cmdable, stream, candidateID string) (string, error) {
	if stream == "" {
		stream = DefaultStage2Stream
	}
	return rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"candidate_id": candidateID,
			"ts_unix":      strconv.FormatInt(time.Now().UTC().Unix(), 10),
		},
	}).Result()
}

// Stage2WorkerPool consumes stage 2 requests from a redis stream consumer
// group, so a request is handled by one instance even when several run.
type Stage2WorkerPool struct {
	Redis      *redis.Client
	Stage2     services.Stage2Service
	NumWorkers int

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
}

func (p *Stage2WorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Stage2 == nil {
		return errors.New("Stage2WorkerPool missing dependency: Redis/Stage2 must be set")
	}
	if p.Stream == "" {
		p.Stream = DefaultStage2Stream
	}
	if p.Group == "" {
		p.Group = DefaultStage2Group
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "c"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 4
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	return nil
}

func (p *Stage2WorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			p.Logger.WithError(err).WithField("consumer", consumer).Warn("stage 2 stream read failed")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				p.handleMsg(ctx, msg)
				_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

func (p *Stage2WorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) {
	candidateID := candidateOf(msg)
	log := p.Logger.WithFields(logrus.Fields{
		"redis_id":     msg.ID,
		"candidate_id": candidateID,
	})
	if candidateID == "" {
		log.Warn("stage 2 request without candidate_id dropped")
		return
	}

	// failures are already reported to subscribers as FAILED events
	if _, err := p.Stage2.Improve(ctx, candidateID); err != nil {
		log.WithError(err).Warn("stage 2 request failed")
		return
	}
	log.Info("stage 2 request accepted")
}

func candidateOf(msg redis.XMessage) string {
	v, ok := msg.Values["candidate_id"]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
