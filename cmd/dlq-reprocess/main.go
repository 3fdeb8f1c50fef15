// Command dlq-reprocess переотправляет события корзины из dead letter queue
// в исходный topic. По умолчанию работает в режиме dry-run: только проверяет
// события и печатает кандидатов.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

const clientID = "storefront-dlq-reprocess"

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
	// session и eventType сужают переотправку; пустое значение не фильтрует.
	session   string
	eventType kafka.EventType
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := parseConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}
	if err := run(context.Background(), cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func parseConfig(args []string, getenv func(string) string) (config, error) {
	cfg := config{}
	var brokers, eventType string

	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.StringVar(&brokers, "brokers", "", "comma-separated Kafka brokers (fallback: KAFKA_BROKERS)")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "dead letter topic to scan")
	fs.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicCartEvents, "topic for events without an original topic")
	fs.IntVar(&cfg.limit, "limit", 100, "max number of dead letters to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "republish events; default is dry-run")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "scan the newest dead letters of each partition")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", 2*time.Second, "stop a partition after this long without messages")
	fs.StringVar(&cfg.session, "session", "", "replay only events of this session id")
	fs.StringVar(&eventType, "event-type", "", "replay only events of this type (cart.updated or cart.mutation_failed)")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokers) == "" && getenv != nil {
		brokers = getenv("KAFKA_BROKERS")
	}
	for _, broker := range strings.Split(brokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			cfg.brokers = append(cfg.brokers, broker)
		}
	}
	cfg.session = strings.TrimSpace(cfg.session)
	cfg.eventType = kafka.EventType(strings.TrimSpace(eventType))

	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c config) validate() error {
	switch {
	case len(c.brokers) == 0:
		return fmt.Errorf("kafka brokers are required (-brokers or KAFKA_BROKERS)")
	case strings.TrimSpace(c.sourceTopic) == "":
		return fmt.Errorf("source-topic is required")
	case strings.TrimSpace(c.targetTopic) == "":
		return fmt.Errorf("target-topic is required")
	case c.sourceTopic == c.targetTopic:
		return fmt.Errorf("source-topic and target-topic must differ")
	case c.limit <= 0:
		return fmt.Errorf("limit must be > 0")
	case c.idleTimeout <= 0:
		return fmt.Errorf("idle-timeout must be > 0")
	}
	switch c.eventType {
	case "", kafka.EventTypeCartUpdated, kafka.EventTypeMutationFailed:
		return nil
	default:
		return fmt.Errorf("event-type %q is not a replayable cart event", c.eventType)
	}
}

// broker: offsets и чтение партиций DLQ.
type broker interface {
	Partitions(topic string) ([]int32, error)
	GetOffset(topic string, partition int32, time int64) (int64, error)
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type saramaBroker struct {
	client   sarama.Client
	consumer sarama.Consumer
}

func (b *saramaBroker) Partitions(topic string) ([]int32, error) {
	return b.client.Partitions(topic)
}

func (b *saramaBroker) GetOffset(topic string, partition int32, at int64) (int64, error) {
	return b.client.GetOffset(topic, partition, at)
}

func (b *saramaBroker) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	return b.consumer.ConsumePartition(topic, partition, offset)
}

func (b *saramaBroker) Close() error {
	consumerErr := b.consumer.Close()
	if err := b.client.Close(); err != nil {
		return err
	}
	return consumerErr
}

// connect открывает соединения с Kafka. Producer создаётся только для -execute.
var connect = func(cfg config) (broker, sarama.SyncProducer, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.ClientID = clientID
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("create kafka client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	b := &saramaBroker{client: client, consumer: consumer}
	if !cfg.execute {
		return b, nil, nil
	}

	producerConfig := sarama.NewConfig()
	producerConfig.ClientID = clientID
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Retry.Max = 5
	producerConfig.Producer.Return.Successes = true
	producerConfig.Producer.Idempotent = true
	producerConfig.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.brokers, producerConfig)
	if err != nil {
		_ = b.Close()
		return nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return b, producer, nil
}

func run(ctx context.Context, cfg config) error {
	b, producer, err := connect(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if producer != nil {
			_ = producer.Close()
		}
		_ = b.Close()
	}()

	r := newReplayer(cfg, b, producer, log.WithField("component", "dlq-reprocess"))
	stats, err := r.Run(ctx)
	if err != nil {
		return err
	}
	stats.log(r.logger, cfg.execute)
	return nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
