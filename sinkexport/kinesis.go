package sinkexport

import (
	"context"
	"fmt"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
)

// KinesisEngine publishes and subscribes via AWS Kinesis, one stream per
// topic. Unlike Kafka/Redis/NATS, Kinesis has no native fan-out
// subscription primitive, so Subscribe polls each shard with
// GetRecords on a fixed interval, following the teacher's
// describe-stream-then-read-every-shard shape.
type KinesisEngine struct {
	region string

	mu      sync.Mutex
	started bool
	client  *kinesis.Client
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewKinesisEngine constructs a KinesisEngine. regions[0] (if present)
// overrides the SDK's default region resolution.
func NewKinesisEngine(regions []string) *KinesisEngine {
	e := &KinesisEngine{}
	if len(regions) > 0 {
		e.region = regions[0]
	}
	return e
}

// Start loads the AWS SDK default config and constructs the Kinesis client.
func (k *KinesisEngine) Start(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.started {
		return nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if k.region != "" {
		opts = append(opts, awsconfig.WithRegion(k.region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("sinkexport: load aws config: %w", err)
	}

	k.client = kinesis.NewFromConfig(cfg)
	_, k.cancel = context.WithCancel(ctx)
	k.started = true
	return nil
}

// Stop cancels all shard readers and waits for them to exit.
func (k *KinesisEngine) Stop(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.started {
		return nil
	}
	if k.cancel != nil {
		k.cancel()
	}
	k.wg.Wait()
	k.started = false
	return nil
}

// Publish writes payload as a single record to the stream named topic,
// partitioned by a fixed key since sink exports have no natural
// partitioning requirement (order across the whole export, not per-key
// order, is what downstream consumers need).
func (k *KinesisEngine) Publish(ctx context.Context, topic string, payload []byte) error {
	k.mu.Lock()
	if !k.started {
		k.mu.Unlock()
		return ErrEngineNotStarted
	}
	client := k.client
	k.mu.Unlock()

	partitionKey := "asynchronix-sinkexport"
	_, err := client.PutRecord(ctx, &kinesis.PutRecordInput{
		StreamName:   &topic,
		Data:         payload,
		PartitionKey: &partitionKey,
	})
	if err != nil {
		return fmt.Errorf("sinkexport: publish to kinesis: %w", err)
	}
	return nil
}

// Subscribe starts a background poller per shard of the stream named
// topic, delivering each record's raw Data to handler.
func (k *KinesisEngine) Subscribe(ctx context.Context, topic string, handler Handler) error {
	k.mu.Lock()
	if !k.started {
		k.mu.Unlock()
		return ErrEngineNotStarted
	}
	client := k.client
	k.mu.Unlock()

	resp, err := client.DescribeStream(ctx, &kinesis.DescribeStreamInput{StreamName: &topic})
	if err != nil {
		return fmt.Errorf("sinkexport: describe kinesis stream: %w", err)
	}

	for _, shard := range resp.StreamDescription.Shards {
		shardID := *shard.ShardId
		k.wg.Add(1)
		go k.readShard(ctx, topic, shardID, handler)
	}
	return nil
}

func (k *KinesisEngine) readShard(ctx context.Context, streamName, shardID string, handler Handler) {
	defer k.wg.Done()

	iterResp, err := k.client.GetShardIterator(ctx, &kinesis.GetShardIteratorInput{
		StreamName:        &streamName,
		ShardId:           &shardID,
		ShardIteratorType: types.ShardIteratorTypeLatest,
	})
	if err != nil {
		return
	}

	shardIterator := iterResp.ShardIterator
	for shardIterator != nil {
		select {
		case <-ctx.Done():
			return
		default:
		}

		resp, err := k.client.GetRecords(ctx, &kinesis.GetRecordsInput{ShardIterator: shardIterator})
		if err != nil {
			time.Sleep(time.Second)
			continue
		}

		for _, record := range resp.Records {
			_ = handler(ctx, record.Data)
		}

		shardIterator = resp.NextShardIterator
		time.Sleep(time.Second)
	}
}
