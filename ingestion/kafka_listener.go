package ingestion

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/sirupsen/logrus"

	"github.com/iotlab/iothub-test-harness/connstr"
	"github.com/iotlab/iothub-test-harness/framework"
)

const (
	// Event Hubs exposes its Kafka endpoint on this port of the namespace host.
	kafkaPort = "9093"

	// The Kafka endpoint authenticates with SASL PLAIN using this fixed user name and the
	// whole connection string as the password.
	kafkaSASLUser = "$ConnectionString"

	// Application property the hub stamps on every device-to-cloud message.
	deviceIDHeader = "iothub-connection-device-id"

	// Every event hub has this group, and other applications usually read with it.
	sharedConsumerGroup = "$Default"

	defaultDialTimeout = 10 * time.Second
	defaultRetryDelay  = time.Second
	maxRetryDelay      = 30 * time.Second
)

// KafkaConfig configures a KafkaListener.
type KafkaConfig struct {
	// EventHubConnectionString is the Event Hubs connection string of the event hub that
	// receives the hub's device-to-cloud messages.
	EventHubConnectionString string

	// ConsumerGroup is optional. Without it every partition is read directly from the newest
	// offset and no offsets are committed. With it the listener joins that group and commits
	// what it reads, so it should be a group no other application uses.
	ConsumerGroup string

	// DialTimeout defaults to 10 seconds.
	DialTimeout time.Duration

	// RetryDelay is the first wait after a failed read; it doubles up to 30 seconds. The
	// default is one second.
	RetryDelay time.Duration
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	SetOffset(offset int64) error
	Close() error
}

// KafkaListener reads device events through the Kafka-compatible endpoint of Event Hubs.
type KafkaListener struct {
	config KafkaConfig
	logger *logrus.Entry

	// seams for tests
	partitionsOf func(ctx context.Context, dialer *kafka.Dialer, broker, topic string) ([]int, error)
	newReader    func(kafka.ReaderConfig) messageReader

	counts  map[string]int
	readers []messageReader
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lock    sync.Mutex
}

func NewKafkaListener(config KafkaConfig, logger *logrus.Entry) *KafkaListener {
	if config.DialTimeout == 0 {
		config.DialTimeout = defaultDialTimeout
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = defaultRetryDelay
	}
	if logger == nil {
		logger = framework.DefaultLogger()
	}
	return &KafkaListener{
		config:       config,
		logger:       logger,
		partitionsOf: topicPartitions,
		newReader:    func(c kafka.ReaderConfig) messageReader { return kafka.NewReader(c) },
		counts:       make(map[string]int),
	}
}

// Open connects to the events endpoint and starts reading in the background. It fails if the
// broker cannot be reached or the topic does not exist. The topic is the EntityPath of the
// Event Hubs connection string or, if that has none, the hub name from the service
// connection string.
func (l *KafkaListener) Open(ctx context.Context, serviceConnectionString string) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.readers != nil {
		return errors.New("event listener is already open")
	}

	service, err := connstr.ParseService(serviceConnectionString)
	if err != nil {
		return fmt.Errorf("invalid service connection string: %w", err)
	}
	eventHub, err := connstr.ParseEventHub(l.config.EventHubConnectionString)
	if err != nil {
		return fmt.Errorf("invalid event hub connection string: %w", err)
	}
	topic := eventHub.EntityPath
	if topic == "" {
		topic = service.HubName()
	}
	broker := net.JoinHostPort(eventHub.Namespace, kafkaPort)

	dialer := &kafka.Dialer{
		Timeout:   l.config.DialTimeout,
		DualStack: true,
		TLS:       &tls.Config{MinVersion: tls.VersionTLS12, ServerName: eventHub.Namespace},
		SASLMechanism: plain.Mechanism{
			Username: kafkaSASLUser,
			Password: eventHub.Raw,
		},
	}
	partitions, err := l.partitionsOf(ctx, dialer, broker, topic)
	if err != nil {
		return err
	}

	base := kafka.ReaderConfig{
		Brokers: []string{broker},
		Topic:   topic,
		Dialer:  dialer,
		MaxWait: time.Second,
	}
	readers, err := l.startReaders(base, partitions)
	if err != nil {
		return err
	}

	readCtx, cancel := context.WithCancel(context.Background())
	l.readers, l.cancel = readers, cancel
	for _, r := range readers {
		l.wg.Add(1)
		go l.readLoop(readCtx, r)
	}
	l.logger.WithField("topic", topic).Debugf("Listening for events on %s with %d reader(s)", broker, len(readers))
	return nil
}

func (l *KafkaListener) startReaders(base kafka.ReaderConfig, partitions []int) ([]messageReader, error) {
	if group := l.config.ConsumerGroup; group != "" {
		if group == sharedConsumerGroup {
			l.logger.Warnf("Reading events with consumer group %s commits offsets other consumers may depend on", group)
		}
		c := base
		c.GroupID = group
		c.StartOffset = kafka.LastOffset
		return []messageReader{l.newReader(c)}, nil
	}

	readers := make([]messageReader, 0, len(partitions))
	for _, p := range partitions {
		c := base
		c.Partition = p
		r := l.newReader(c)
		if err := r.SetOffset(kafka.LastOffset); err != nil {
			for _, started := range append(readers, r) {
				_ = started.Close()
			}
			return nil, fmt.Errorf("positioning reader for partition %d: %w", p, err)
		}
		readers = append(readers, r)
	}
	return readers, nil
}

func topicPartitions(ctx context.Context, dialer *kafka.Dialer, broker, topic string) ([]int, error) {
	conn, err := dialer.DialContext(ctx, "tcp", broker)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()
	partitions, err := conn.ReadPartitions(topic)
	if err != nil {
		return nil, fmt.Errorf("reading partitions of %s: %w", topic, err)
	}
	if len(partitions) == 0 {
		return nil, fmt.Errorf("event hub %s has no partitions", topic)
	}
	ids := make([]int, 0, len(partitions))
	for _, p := range partitions {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

// readLoop reads until ctx is cancelled. Read errors are retried with a growing delay.
func (l *KafkaListener) readLoop(ctx context.Context, reader messageReader) {
	defer l.wg.Done()
	delay := l.config.RetryDelay
	for {
		m, err := reader.ReadMessage(ctx)
		if err == nil {
			delay = l.config.RetryDelay
			l.handle(m)
			continue
		}
		if ctx.Err() != nil {
			return
		}
		l.logger.WithError(err).Warnf("Error reading events, retrying in %s", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}

// event is one device-to-cloud message read from the events endpoint.
type event struct {
	DeviceID     string
	Body         []byte
	Properties   map[string]string
	EnqueuedTime time.Time
	Partition    int
	Offset       int64
}

func (l *KafkaListener) handle(m kafka.Message) {
	e := event{
		Body:         m.Value,
		Properties:   make(map[string]string, len(m.Headers)),
		EnqueuedTime: m.Time,
		Partition:    m.Partition,
		Offset:       m.Offset,
	}
	for _, h := range m.Headers {
		e.Properties[h.Key] = string(h.Value)
	}
	e.DeviceID = e.Properties[deviceIDHeader]

	l.lock.Lock()
	l.counts[e.DeviceID]++
	l.lock.Unlock()

	l.logger.WithFields(logrus.Fields{
		framework.DeviceIDLogField: e.DeviceID,
		"partition":                e.Partition,
		"offset":                   e.Offset,
	}).Debugf("Received event: %s", string(e.Body))
}

func (l *KafkaListener) EventCount(deviceID string) int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.counts[deviceID]
}

// Close stops the background readers and waits for them to exit. It is safe to call more than
// once, or without a successful Open.
func (l *KafkaListener) Close() {
	l.lock.Lock()
	readers, cancel := l.readers, l.cancel
	l.readers, l.cancel = nil, nil
	l.lock.Unlock()
	if readers == nil {
		return
	}
	cancel()
	for _, r := range readers {
		if err := r.Close(); err != nil {
			l.logger.WithError(err).Debug("Error closing event reader")
		}
	}
	l.wg.Wait()
}
