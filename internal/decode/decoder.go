// Package decode turns raw RabbitMQ messages carrying Rebus headers into
// records a person can read: headers flattened to strings, bodies unzipped,
// decoded with the right charset and indented when they hold JSON.
//
// Decoding never fails loudly. Body problems are reported inside the body
// text; a message that cannot be decoded at all comes back as nil.
package decode

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/epalmerini/snoop/internal/rebus"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// UnknownType is reported when a message carries no type header.
const UnknownType = "Unknown"

// Source labels reported to an Observer.
const (
	SourceDelivery = "delivery"
	SourceSnapshot = "snapshot"
)

// Header is one displayed header.
type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Message is a decoded message, ready for display.
type Message struct {
	ID             int64      `json:"id"`
	MessageID      string     `json:"message_id"`
	RoutingKey     string     `json:"routing_key"`
	Exchange       string     `json:"exchange,omitempty"`
	Headers        []Header   `json:"headers"`
	MessageType    string     `json:"message_type"`
	SourceQueue    string     `json:"source_queue"`
	SentTime       time.Time  `json:"sent_time"`
	VisibleTime    *time.Time `json:"visible_time,omitempty"`    // always nil on RabbitMQ
	ExpirationTime *time.Time `json:"expiration_time,omitempty"` // always nil on RabbitMQ
	Body           string     `json:"body"`
	ErrorDetails   string     `json:"error_details,omitempty"`
}

// Header returns the value of a displayed header.
func (m Message) Header(key string) (string, bool) {
	for _, h := range m.Headers {
		if h.Key == key {
			return h.Value, true
		}
	}
	return "", false
}

// Observer is notified of every decode. metrics.DecodeObserver implements it.
type Observer interface {
	Decoded(source string, elapsed time.Duration, bodyOK bool)
	Dropped(source string)
}

type nopObserver struct{}

func (nopObserver) Decoded(string, time.Duration, bool) {}
func (nopObserver) Dropped(string)                      {}

// Decoder decodes raw messages. It is safe for concurrent use.
type Decoder struct {
	proto       ProtoDecoder
	logger      *slog.Logger
	observer    Observer
	now         func() time.Time
	newID       func() string
	concurrency int
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithProtoDecoder enables protobuf rendering for protobuf content types.
func WithProtoDecoder(p ProtoDecoder) Option {
	return func(d *Decoder) { d.proto = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Decoder) { d.logger = l }
}

func WithObserver(o Observer) Option {
	return func(d *Decoder) { d.observer = o }
}

// WithClock replaces time.Now as the fallback sent time.
func WithClock(now func() time.Time) Option {
	return func(d *Decoder) { d.now = now }
}

// WithIDGenerator replaces the random id given to messages without a message id.
func WithIDGenerator(fn func() string) Option {
	return func(d *Decoder) { d.newID = fn }
}

// WithConcurrency bounds how many messages DecodeAll decodes at once.
func WithConcurrency(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		logger:      slog.New(slog.DiscardHandler),
		observer:    nopObserver{},
		now:         time.Now,
		newID:       func() string { return uuid.NewString() },
		concurrency: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode decodes one message. It returns nil when the message cannot be
// displayed at all; callers should skip it.
func (d *Decoder) Decode(raw RawMessage) (msg *Message) {
	source := sourceOf(raw)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Debug("dropping undecodable message", "source", source, "panic", r)
			d.observer.Dropped(source)
			msg = nil
		}
	}()

	if raw == nil {
		d.observer.Dropped(source)
		return nil
	}

	env, err := raw.envelope()
	if err != nil {
		d.logger.Debug("dropping undecodable message", "source", source, "error", err)
		d.observer.Dropped(source)
		return nil
	}

	messageID := env.props.MessageID
	if messageID == "" {
		messageID = d.newID()
	}

	headers := NormalizeHeaders(env.props)

	messageType := UnknownType
	if v, ok := headers[rebus.MessageType]; ok {
		messageType = firstTypeName(v)
	}

	sourceQueue, ok := headers[rebus.SourceQueue]
	if !ok {
		sourceQueue = env.routingKey
	}
	if sourceQueue == "" {
		sourceQueue = UnknownType
	}

	var body string
	if env.bodyErr != nil {
		body = errorPrefix + env.bodyErr.Error()
	} else {
		body = decodeBody(env.body, headers, bodyHints{
			proto:       d.proto,
			messageType: messageType,
			routingKey:  env.routingKey,
		})
	}

	m := &Message{
		ID:           displayID(messageID),
		MessageID:    messageID,
		RoutingKey:   env.routingKey,
		Exchange:     env.exchange,
		Headers:      headerList(headers),
		MessageType:  messageType,
		SourceQueue:  sourceQueue,
		SentTime:     d.sentTime(headers),
		Body:         body,
		ErrorDetails: headers[rebus.ErrorDetails],
	}

	d.observer.Decoded(source, time.Since(start), !strings.HasPrefix(body, errorPrefix))
	return m
}

// DecodeAll decodes a batch concurrently. The result keeps input order and
// omits messages that could not be decoded. Cancelling ctx stops scheduling
// further work; what was decoded so far is returned.
func (d *Decoder) DecodeAll(ctx context.Context, raws []RawMessage) []Message {
	results := make([]*Message, len(raws))

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, raw := range raws {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() == nil {
				results[i] = d.Decode(raw)
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Message, 0, len(raws))
	for _, m := range results {
		if m != nil {
			out = append(out, *m)
		}
	}
	return out
}

// Deliveries adapts a slice of deliveries for DecodeAll.
func Deliveries(ds []Delivery) []RawMessage {
	raws := make([]RawMessage, len(ds))
	for i := range ds {
		raws[i] = &ds[i]
	}
	return raws
}

// Snapshots adapts a slice of snapshots for DecodeAll.
func Snapshots(ss []Snapshot) []RawMessage {
	raws := make([]RawMessage, len(ss))
	for i := range ss {
		raws[i] = &ss[i]
	}
	return raws
}

func sourceOf(raw RawMessage) string {
	if _, ok := raw.(*Snapshot); ok {
		return SourceSnapshot
	}
	return SourceDelivery
}

// firstTypeName keeps the first entry of an assembly-qualified type list,
// e.g. "Orders.OrderPlaced, Orders" -> "Orders.OrderPlaced".
func firstTypeName(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}

// displayID hashes the message id into a numeric key. Collisions are possible
// and harmless; MessageID is the real identity.
func displayID(messageID string) int64 {
	return int64(xxhash.Sum64String(messageID))
}

// headerList returns the displayed headers sorted by key, without the error details.
func headerList(h Headers) []Header {
	list := make([]Header, 0, len(h))
	for k, v := range h {
		if k == rebus.ErrorDetails {
			continue
		}
		list = append(list, Header{Key: k, Value: v})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })
	return list
}
