// Package mqttlink is the wireless link over an MQTT broker.
//
// Inbound config blobs and time claims arrive on <prefix>/config and
// <prefix>/time; the handlers only copy them into the inbox and acknowledge.
// Status reports go out on <prefix>/status in "<code>:<message>" form.
package mqttlink

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"crocker/internal/errcode"
	"crocker/internal/inbox"
	"crocker/internal/link"
	appLog "crocker/internal/log"
)

const (
	DefaultTopicPrefix = "crocker"
	DefaultTimeout     = 5 * time.Second

	qos = 1
)

// Options configures a Link. Broker is required.
type Options struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	Timeout     time.Duration
	// MaxBlob is the largest config document accepted; larger ones are
	// refused before they reach the inbox.
	MaxBlob int
}

func (o *Options) normalize() {
	if o.ClientID == "" {
		o.ClientID = "crocker-" + uuid.NewString()
	}
	if o.TopicPrefix == "" {
		o.TopicPrefix = DefaultTopicPrefix
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxBlob <= 0 {
		o.MaxBlob = inbox.DefaultMaxBlob
	}
}

// Topics are the three channels of the link.
type Topics struct {
	Config string
	Time   string
	Status string
}

func topicsFor(prefix string) Topics {
	return Topics{
		Config: prefix + "/config",
		Time:   prefix + "/time",
		Status: prefix + "/status",
	}
}

// Link implements link.Sink.
type Link struct {
	client mqtt.Client
	queue  *inbox.Queue
	opts   Options
	topics Topics

	// paho may run the connect handler and message handlers on different
	// goroutines; pushMu keeps the inbox single-producer.
	pushMu    sync.Mutex
	connected atomic.Bool
}

var _ link.Sink = (*Link)(nil)

// New prepares a link that feeds q. Call Connect to start it.
func New(opts Options, q *inbox.Queue) (*Link, error) {
	if opts.Broker == "" {
		return nil, errcode.New(errcode.InvalidConfig, "mqttlink.new", "broker address is empty")
	}
	opts.normalize()
	l := &Link{queue: q, opts: opts, topics: topicsFor(opts.TopicPrefix)}

	co := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOrderMatters(true).
		SetConnectTimeout(opts.Timeout).
		SetOnConnectHandler(l.onConnect).
		SetConnectionLostHandler(l.onConnectionLost)
	l.client = mqtt.NewClient(co)
	return l, nil
}

// newWithClient wires a link around an existing client.
func newWithClient(c mqtt.Client, opts Options, q *inbox.Queue) *Link {
	opts.normalize()
	return &Link{client: c, queue: q, opts: opts, topics: topicsFor(opts.TopicPrefix)}
}

func (l *Link) Topics() Topics { return l.topics }

// Connect starts the client. With connect-retry on, the first attempt may
// keep retrying in the background; Connect returns once it succeeds, the
// context ends, or the timeout passes.
func (l *Link) Connect(ctx context.Context) error {
	appLog.Info("mqtt connecting", "broker", l.opts.Broker, "client_id", l.opts.ClientID)
	tok := l.client.Connect()
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			return errcode.Wrap(errcode.Error, "mqttlink.connect", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(l.opts.Timeout):
		appLog.Warn("mqtt broker not reachable yet; retrying in background", "broker", l.opts.Broker)
		return nil
	}
}

// Close disconnects, giving in-flight messages a short grace period.
func (l *Link) Close() {
	l.connected.Store(false)
	l.client.Disconnect(250)
}

func (l *Link) Connected() bool { return l.connected.Load() }

// Status publishes a status report without waiting for the broker.
// Delivery failures are logged once the token settles or times out.
func (l *Link) Status(code link.Status, msg string) error {
	return l.publish(link.Format(code, msg))
}

// RequestScheduleSync asks the host to resend today's schedule.
func (l *Link) RequestScheduleSync() error {
	return l.publish(link.ScheduleSyncRequest)
}

func (l *Link) publish(payload string) error {
	if !l.connected.Load() {
		return errcode.New(errcode.Error, "mqttlink.publish", "not connected")
	}
	tok := l.client.Publish(l.topics.Status, qos, false, payload)
	go l.settle(tok, payload)
	return nil
}

// settle logs the outcome of a publish that nobody waits on.
func (l *Link) settle(tok mqtt.Token, payload string) {
	t := time.NewTimer(l.opts.Timeout)
	defer t.Stop()
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			appLog.Warn("status publish failed", "payload", payload, "error", err)
		}
	case <-t.C:
		appLog.Warn("status publish timed out", "payload", payload, "timeout", l.opts.Timeout.String())
	}
}

// notify publishes from inside a paho callback.
func (l *Link) notify(code link.Status, msg string) {
	if err := l.publish(link.Format(code, msg)); err != nil {
		appLog.Debug("status not sent", "code", code, "msg", msg, "error", err)
	}
}

func (l *Link) onConnect(c mqtt.Client) {
	l.connected.Store(true)
	appLog.Info("mqtt connected", "broker", l.opts.Broker)

	for topic, h := range map[string]mqtt.MessageHandler{
		l.topics.Config: l.onConfig,
		l.topics.Time:   l.onTime,
	} {
		tok := c.Subscribe(topic, qos, h)
		if tok.WaitTimeout(l.opts.Timeout) && tok.Error() != nil {
			appLog.Error("mqtt subscribe failed", tok.Error(), "topic", topic)
		}
	}

	l.pushMu.Lock()
	err := l.queue.PushLinkUp()
	l.pushMu.Unlock()
	if err != nil {
		appLog.Warn("link-up not queued", "error", err)
	}
}

func (l *Link) onConnectionLost(_ mqtt.Client, err error) {
	l.connected.Store(false)
	appLog.Warn("mqtt connection lost", "error", err)
}

func (l *Link) onConfig(_ mqtt.Client, m mqtt.Message) {
	data := m.Payload()
	if len(data) > l.opts.MaxBlob {
		appLog.Warn("config refused", "bytes", len(data), "limit", l.opts.MaxBlob)
		l.notify(link.Error, "JSON too large")
		return
	}
	l.pushMu.Lock()
	err := l.queue.PushConfig(data)
	l.pushMu.Unlock()
	if l.rejected(err) {
		return
	}
	appLog.Debug("config queued", "bytes", len(data))
	l.notify(link.ProcessingConfig, "Config queued")
}

func (l *Link) onTime(_ mqtt.Client, m mqtt.Message) {
	l.pushMu.Lock()
	err := l.queue.PushTime(m.Payload())
	l.pushMu.Unlock()
	if l.rejected(err) {
		return
	}
	appLog.Debug("time claim queued", "payload", string(m.Payload()))
}

func (l *Link) rejected(err error) bool {
	if err == nil {
		return false
	}
	// The main loop reports drops from the queue's own counter.
	if errors.Is(err, inbox.ErrQueueFull) {
		appLog.Warn("inbox full; message dropped")
		return true
	}
	appLog.Error("inbox push failed", err)
	return true
}
