// Package eventbus wires NSQ in as a best-effort job-lifecycle
// notification side-channel. It never gates or replaces claimNext's
// Postgres compare-and-swap — the only thing NSQ does here is let a
// worker shorten its next poll when another process just queued work,
// and let external observers watch job lifecycle events. Publish
// failures are logged and otherwise ignored.
package eventbus

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nsqio/go-nsq"
)

const (
	TopicJobQueued    = "ingestion.job.queued"
	TopicJobCompleted = "ingestion.job.completed"
	TopicJobFailed    = "ingestion.job.failed"
	TopicWake         = "ingestion.wake"
)

// Publisher is the narrow interface the rest of the module depends on,
// matching the teacher's EventPublisher shape in features/source.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// NSQPublisher wraps *nsq.Producer to satisfy Publisher.
type NSQPublisher struct {
	producer *nsq.Producer
}

func NewNSQPublisher(nsqdHost string) (*NSQPublisher, error) {
	producer, err := nsq.NewProducer(nsqdHost, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("create nsq producer: %w", err)
	}
	return &NSQPublisher{producer: producer}, nil
}

func (p *NSQPublisher) Publish(topic string, body []byte) error {
	return p.producer.Publish(topic, body)
}

func (p *NSQPublisher) Stop() {
	p.producer.Stop()
}

// PublishJobEvent is a best-effort notification; failures are logged,
// never propagated, since the durable job status in Postgres is always
// the source of truth.
func PublishJobEvent(pub Publisher, topic, jobID string) {
	if pub == nil {
		return
	}
	if err := pub.Publish(topic, []byte(jobID)); err != nil {
		slog.Warn("failed to publish job lifecycle event", "topic", topic, "job_id", jobID, "error", err)
	}
}

// PreCreateTopics hits nsqd's HTTP admin API to create topics ahead of
// consumer startup, mirroring the teacher's main.go fire-and-forget
// topic pre-creation (NSQ creates topics lazily on publish, but a
// consumer querying lookupd 404s until the topic exists).
func PreCreateTopics(nsqdHTTPHost string, topics ...string) {
	go func() {
		time.Sleep(2 * time.Second)
		for _, topic := range topics {
			url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTPHost, topic)
			resp, err := http.Post(url, "application/json", nil) // #nosec G107 -- URL built from internal NSQ config, not user input
			if err != nil {
				slog.Warn("failed to pre-create nsq topic", "topic", topic, "error", err)
				continue
			}
			resp.Body.Close()
		}
	}()
}

// WakeConsumer subscribes to TopicWake and invokes onWake for every
// message received; the worker uses this only to shorten its next poll,
// never to gate a claim.
type WakeConsumer struct {
	consumer *nsq.Consumer
}

func NewWakeConsumer(lookupdHost, channel string, onWake func()) (*WakeConsumer, error) {
	consumer, err := nsq.NewConsumer(TopicWake, channel, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("create wake consumer: %w", err)
	}
	consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
		onWake()
		return nil
	}))
	if err := consumer.ConnectToNSQLookupd(lookupdHost); err != nil {
		return nil, fmt.Errorf("connect wake consumer to lookupd: %w", err)
	}
	return &WakeConsumer{consumer: consumer}, nil
}

func (w *WakeConsumer) Stop() {
	w.consumer.Stop()
}
