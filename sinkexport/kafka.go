package sinkexport

import (
	"context"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
)

// KafkaEngine publishes and subscribes via Apache Kafka, mirroring the
// teacher's KafkaEventBus producer/consumer-group wiring narrowed to the
// Engine interface's byte-payload contract.
type KafkaEngine struct {
	brokers []string
	groupID string

	mu            sync.Mutex
	started       bool
	producer      sarama.SyncProducer
	consumerGroup sarama.ConsumerGroup
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewKafkaEngine constructs a KafkaEngine targeting brokers under
// consumer group groupID.
func NewKafkaEngine(brokers []string, groupID string) *KafkaEngine {
	if groupID == "" {
		groupID = "asynchronix-sinkexport"
	}
	return &KafkaEngine{brokers: brokers, groupID: groupID}
}

// Start creates the Sarama producer and consumer group.
func (k *KafkaEngine) Start(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.started {
		return nil
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_6_0_0
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest

	producer, err := sarama.NewSyncProducer(k.brokers, cfg)
	if err != nil {
		return fmt.Errorf("sinkexport: create kafka producer: %w", err)
	}

	consumerGroup, err := sarama.NewConsumerGroup(k.brokers, k.groupID, cfg)
	if err != nil {
		producer.Close()
		return fmt.Errorf("sinkexport: create kafka consumer group: %w", err)
	}

	k.producer = producer
	k.consumerGroup = consumerGroup
	_, k.cancel = context.WithCancel(ctx)
	k.started = true
	return nil
}

// Stop closes the producer and consumer group.
func (k *KafkaEngine) Stop(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.started {
		return nil
	}
	if k.cancel != nil {
		k.cancel()
	}
	k.wg.Wait()

	if err := k.producer.Close(); err != nil {
		return fmt.Errorf("sinkexport: close kafka producer: %w", err)
	}
	if err := k.consumerGroup.Close(); err != nil {
		return fmt.Errorf("sinkexport: close kafka consumer group: %w", err)
	}
	k.started = false
	return nil
}

// Publish sends payload to topic.
func (k *KafkaEngine) Publish(ctx context.Context, topic string, payload []byte) error {
	k.mu.Lock()
	if !k.started {
		k.mu.Unlock()
		return ErrEngineNotStarted
	}
	producer := k.producer
	k.mu.Unlock()

	_, _, err := producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("sinkexport: publish to kafka: %w", err)
	}
	return nil
}

// kafkaConsumerHandler adapts a Handler to sarama.ConsumerGroupHandler.
type kafkaConsumerHandler struct {
	handler Handler
}

func (kafkaConsumerHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (kafkaConsumerHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h kafkaConsumerHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if err := h.handler(sess.Context(), msg.Value); err == nil {
			sess.MarkMessage(msg, "")
		}
	}
	return nil
}

// Subscribe starts a background consumer-group loop for topic.
func (k *KafkaEngine) Subscribe(ctx context.Context, topic string, handler Handler) error {
	k.mu.Lock()
	if !k.started {
		k.mu.Unlock()
		return ErrEngineNotStarted
	}
	consumerGroup := k.consumerGroup
	k.mu.Unlock()

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		for ctx.Err() == nil {
			if err := consumerGroup.Consume(ctx, []string{topic}, kafkaConsumerHandler{handler: handler}); err != nil {
				return
			}
		}
	}()
	return nil
}
