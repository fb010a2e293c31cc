package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/linkshelf/server/internal/observability"
)

const kafkaPollTimeout = 100 * time.Millisecond

// KafkaQueue publishes jobs to a topic and consumes them with a consumer
// group, so several worker processes share the load. Kafka has no delayed
// delivery; a job read before its due time is produced again at the tail.
type KafkaQueue struct {
	producer *kafka.Producer
	consumer *kafka.Consumer
	topic    string
	log      *observability.Logger
	mu       sync.Mutex
}

// NewKafkaQueue creates the producer and subscribes the consumer group
func NewKafkaQueue(brokers []string, topic string, log *observability.Logger) (*KafkaQueue, error) {
	servers := strings.Join(brokers, ",")

	producer, err := kafka.NewProducer(kafkaProducerConfig(servers))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	consumer, err := kafka.NewConsumer(kafkaConsumerConfig(servers))
	if err != nil {
		producer.Close()
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	if err := consumer.SubscribeTopics([]string{topic}, nil); err != nil {
		producer.Close()
		consumer.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	q := &KafkaQueue{
		producer: producer,
		consumer: consumer,
		topic:    topic,
		log:      log.Component("queue"),
	}
	go q.drainEvents()
	return q, nil
}

func kafkaProducerConfig(servers string) *kafka.ConfigMap {
	return &kafka.ConfigMap{
		"bootstrap.servers": servers,
		"acks":              "all",
	}
}

// Offsets are committed by Dequeue once a message has been claimed or
// re-produced, never on a timer.
func kafkaConsumerConfig(servers string) *kafka.ConfigMap {
	return &kafka.ConfigMap{
		"bootstrap.servers":  servers,
		"group.id":           "linkshelf-enrichment",
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false,
	}
}

// drainEvents logs producer errors until the producer is closed. Delivery
// reports go to the per-message channel in Enqueue.
func (q *KafkaQueue) drainEvents() {
	for e := range q.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				q.log.WithError(ev.TopicPartition.Error).Warn("Kafka delivery failed")
			}
		case kafka.Error:
			q.log.WithError(ev).WithField("code", ev.Code().String()).Warn("Kafka producer error")
		}
	}
}

func (q *KafkaQueue) Enqueue(ctx context.Context, job *EnrichItemDataJob) error {
	prepare(job)

	value, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	delivery := make(chan kafka.Event, 1)
	err = q.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &q.topic, Partition: kafka.PartitionAny},
		Key:            []byte(job.ItemDataID),
		Value:          value,
	}, delivery)
	if err != nil {
		return fmt.Errorf("failed to produce job: %w", err)
	}

	select {
	case e := <-delivery:
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			return fmt.Errorf("job delivery failed: %w", m.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *KafkaQueue) Dequeue(ctx context.Context) (*EnrichItemDataJob, error) {
	q.mu.Lock()
	msg, err := q.consumer.ReadMessage(kafkaPollTimeout)
	q.mu.Unlock()

	if err != nil {
		if kerr, ok := err.(kafka.Error); ok && kerr.Code() == kafka.ErrTimedOut {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read job: %w", err)
	}

	var job EnrichItemDataJob
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		q.log.WithError(err).Error("Dropping undecodable job")
		return nil, q.commit(msg)
	}

	if !job.Ready(time.Now()) {
		if err := q.Enqueue(ctx, &job); err != nil {
			return nil, fmt.Errorf("failed to requeue delayed job: %w", err)
		}
		return nil, q.commit(msg)
	}

	if err := q.commit(msg); err != nil {
		return nil, err
	}
	return &job, nil
}

// commit stores the offset of msg. An uncommitted message is redelivered
// after a restart or rebalance.
func (q *KafkaQueue) commit(msg *kafka.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, err := q.consumer.CommitMessage(msg); err != nil {
		return fmt.Errorf("failed to commit offset: %w", err)
	}
	return nil
}

func (q *KafkaQueue) Close() error {
	q.producer.Flush(5000)
	q.producer.Close()
	return q.consumer.Close()
}
