package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/IBM/sarama"
	json "github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// verdict: что сделано с одной записью DLQ.
type verdict int

const (
	verdictReplayed verdict = iota
	// verdictForeign: запись не является DeadLetterEvent.
	verdictForeign
	// verdictRejected: событие неизвестного типа или не проходит проверку.
	verdictRejected
	// verdictFiltered: не подходит под -session или -event-type.
	verdictFiltered
)

type replayStats struct {
	scanned  int
	replayed int
	foreign  int
	rejected int
	filtered int
	byType   map[kafka.EventType]int
}

func (s *replayStats) count(v verdict, eventType kafka.EventType) {
	s.scanned++
	switch v {
	case verdictReplayed:
		s.replayed++
		if s.byType == nil {
			s.byType = make(map[kafka.EventType]int)
		}
		s.byType[eventType]++
	case verdictForeign:
		s.foreign++
	case verdictRejected:
		s.rejected++
	case verdictFiltered:
		s.filtered++
	}
}

func (s replayStats) log(logger *log.Entry, execute bool) {
	mode := "dry-run"
	if execute {
		mode = "execute"
	}
	logger.WithFields(log.Fields{
		"mode":            mode,
		"scanned":         s.scanned,
		"replayed":        s.replayed,
		"cart_updated":    s.byType[kafka.EventTypeCartUpdated],
		"mutation_failed": s.byType[kafka.EventTypeMutationFailed],
		"foreign":         s.foreign,
		"rejected":        s.rejected,
		"filtered":        s.filtered,
	}).Info("dlq replay finished")
}

// replayCandidate: проверенное событие корзины, готовое к переотправке.
type replayCandidate struct {
	topic string
	event kafka.CartEvent
	value []byte
}

type sender interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
}

type replayer struct {
	cfg      config
	broker   broker
	producer sender
	logger   *log.Entry
	now      func() time.Time
}

func newReplayer(cfg config, b broker, producer sender, logger *log.Entry) *replayer {
	return &replayer{cfg: cfg, broker: b, producer: producer, logger: logger, now: time.Now}
}

// Run сканирует партиции DLQ по возрастанию номера, пока не исчерпан -limit.
func (r *replayer) Run(ctx context.Context) (replayStats, error) {
	var stats replayStats
	if r.cfg.execute && r.producer == nil {
		return stats, errors.New("producer is required in execute mode")
	}

	partitions, err := r.broker.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return stats, fmt.Errorf("list partitions of %s: %w", r.cfg.sourceTopic, err)
	}
	slices.Sort(partitions)
	r.logger.WithFields(log.Fields{
		"source_topic": r.cfg.sourceTopic,
		"partitions":   len(partitions),
		"limit":        r.cfg.limit,
		"execute":      r.cfg.execute,
		"session":      r.cfg.session,
		"event_type":   r.cfg.eventType,
	}).Info("starting dlq replay")

	for _, partition := range partitions {
		if stats.scanned >= r.cfg.limit {
			break
		}
		if err := r.scanPartition(ctx, partition, &stats); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// window возвращает диапазон [start, end) смещений для чтения.
func (r *replayer) window(partition int32, budget int) (int64, int64, error) {
	oldest, err := r.broker.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return 0, 0, fmt.Errorf("oldest offset of partition %d: %w", partition, err)
	}
	end, err := r.broker.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return 0, 0, fmt.Errorf("newest offset of partition %d: %w", partition, err)
	}
	start := oldest
	if r.cfg.fromNewest {
		start = max(oldest, end-int64(budget))
	}
	return start, end, nil
}

func (r *replayer) scanPartition(ctx context.Context, partition int32, stats *replayStats) error {
	budget := r.cfg.limit - stats.scanned
	start, end, err := r.window(partition, budget)
	if err != nil {
		return err
	}
	if start >= end {
		return nil
	}

	pc, err := r.broker.ConsumePartition(r.cfg.sourceTopic, partition, start)
	if err != nil {
		return fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()
	errs := pc.Errors()

	for scanned := 0; scanned < budget; {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle.C:
			r.logger.WithField("partition", partition).Debug("partition idle, moving on")
			return nil
		case consumerErr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if consumerErr != nil {
				return fmt.Errorf("partition %d: %w", partition, consumerErr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= end {
				return nil
			}
			idle.Reset(r.cfg.idleTimeout)

			v, eventType, err := r.handle(msg)
			if err != nil {
				return err
			}
			stats.count(v, eventType)
			scanned++
			if msg.Offset+1 >= end {
				return nil
			}
		}
	}
	return nil
}

func (r *replayer) handle(msg *sarama.ConsumerMessage) (verdict, kafka.EventType, error) {
	entry := r.logger.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})

	candidate, err := decodeDeadLetter(msg.Value, r.cfg.targetTopic)
	switch {
	case errors.Is(err, errNotDeadLetter):
		entry.Debug("skip foreign dlq record")
		return verdictForeign, "", nil
	case err != nil:
		entry.WithError(err).Warn("reject dlq record")
		return verdictRejected, "", nil
	}

	event := candidate.event
	if (r.cfg.session != "" && event.Key() != r.cfg.session) ||
		(r.cfg.eventType != "" && event.Type() != r.cfg.eventType) {
		return verdictFiltered, event.Type(), nil
	}

	entry = entry.WithFields(log.Fields{
		"target_topic": candidate.topic,
		"session":      event.Key(),
		"event_type":   event.Type(),
	})
	if !r.cfg.execute {
		entry.Info("dlq replay candidate")
		return verdictReplayed, event.Type(), nil
	}
	if _, _, err := r.producer.SendMessage(r.message(candidate)); err != nil {
		return verdictRejected, event.Type(), fmt.Errorf("republish %s for %s: %w", event.Type(), event.Key(), err)
	}
	entry.Info("dlq event republished")
	return verdictReplayed, event.Type(), nil
}

// message восстанавливает исходную запись: ключ берётся из события (session id),
// тип возвращается в заголовок x-event-type.
func (r *replayer) message(c replayCandidate) *sarama.ProducerMessage {
	return &sarama.ProducerMessage{
		Topic: c.topic,
		Key:   sarama.StringEncoder(c.event.Key()),
		Value: sarama.ByteEncoder(c.value),
		Headers: []sarama.RecordHeader{
			{Key: []byte(kafka.HeaderEventType), Value: []byte(c.event.Type())},
		},
		Timestamp: r.now().UTC(),
	}
}

var errNotDeadLetter = errors.New("record is not a dead letter event")

// decodeDeadLetter разбирает kafka.DeadLetterEvent и проверяет вложенное
// событие корзины. Ключ конверта должен совпадать с session id события.
func decodeDeadLetter(raw []byte, fallbackTopic string) (replayCandidate, error) {
	var envelope kafka.DeadLetterEvent
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.OriginalValue == "" {
		return replayCandidate{}, errNotDeadLetter
	}

	event, err := kafka.DecodeCartEvent(envelope.OriginalEventType, []byte(envelope.OriginalValue))
	if err != nil {
		return replayCandidate{}, err
	}
	if envelope.OriginalKey != "" && envelope.OriginalKey != event.Key() {
		return replayCandidate{}, fmt.Errorf("%w: key %q does not match session %q",
			kafka.ErrInvalidEvent, envelope.OriginalKey, event.Key())
	}

	topic := strings.TrimSpace(envelope.OriginalTopic)
	if topic == "" {
		topic = fallbackTopic
	}
	return replayCandidate{topic: topic, event: event, value: []byte(envelope.OriginalValue)}, nil
}
