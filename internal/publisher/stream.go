// Package publisher pushes coalesced market batches onto a Redis stream
// for downstream consumers (dashboards, settlement tooling).
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"betflow/config"
	"betflow/logger"
	"betflow/models"
)

const defaultStream = "betflow.markets"

type StreamPublisher struct {
	client *redis.Client
	stream string
	log    *logger.Log
}

func NewStreamPublisher(cfg *config.Config) *StreamPublisher {
	stream := cfg.Publisher.Stream
	if stream == "" {
		stream = defaultStream
	}
	return &StreamPublisher{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Publisher.RedisAddr,
			Password: cfg.Publisher.RedisPass,
			DB:       cfg.Publisher.RedisDB,
		}),
		stream: stream,
		log:    logger.GetLogger(),
	}
}

// batchArgs builds the stream entry for one coalesced batch.
func (p *StreamPublisher) batchArgs(batch models.MarketBatch) (*redis.XAddArgs, error) {
	data, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("marshaling market batch: %w", err)
	}
	return &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"data":     string(data),
			"batch_id": batch.BatchID,
			"markets":  strconv.Itoa(len(batch.Markets)),
		},
	}, nil
}

// feedArgs builds the stream entry for the feed projection. The stream is
// trimmed to the latest entry since only the newest view is of any use.
func (p *StreamPublisher) feedArgs(view models.FeedView) (*redis.XAddArgs, error) {
	data, err := json.Marshal(view)
	if err != nil {
		return nil, fmt.Errorf("marshaling feed view: %w", err)
	}
	return &redis.XAddArgs{
		Stream: p.stream + ".feed",
		MaxLen: 1,
		Approx: true,
		Values: map[string]interface{}{
			"data":  string(data),
			"live":  strconv.Itoa(len(view.Live)),
			"total": strconv.Itoa(view.TotalItems),
		},
	}, nil
}

// PublishBatch appends one coalesced batch to the stream. Failures are
// surfaced to the caller; the batch is not retried — the next flush
// carries fresher data anyway.
func (p *StreamPublisher) PublishBatch(ctx context.Context, batch models.MarketBatch) error {
	args, err := p.batchArgs(batch)
	if err != nil {
		return err
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		p.log.WithComponent("publisher").WithError(err).Warn("failed to publish market batch")
		return err
	}
	logger.IncrementPublished(len(args.Values.(map[string]interface{})["data"].(string)))
	return nil
}

// PublishFeedView publishes the current match feed projection, replacing
// any previous value, so late subscribers can catch up without replay.
func (p *StreamPublisher) PublishFeedView(ctx context.Context, view models.FeedView) error {
	args, err := p.feedArgs(view)
	if err != nil {
		return err
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		p.log.WithComponent("publisher").WithError(err).Warn("failed to publish feed view")
		return err
	}
	logger.IncrementPublished(len(args.Values.(map[string]interface{})["data"].(string)))
	return nil
}

func (p *StreamPublisher) Close() error {
	return p.client.Close()
}
