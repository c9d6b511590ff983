// Package inspect ties the broker clients to the decoder. It is the surface
// the CLI drives: list queues, load and decode a queue's messages, purge, and
// move dead-lettered messages back to where they came from.
package inspect

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/epalmerini/snoop/internal/decode"
	"github.com/epalmerini/snoop/internal/rabbitmq"
	"github.com/epalmerini/snoop/internal/rebus"
)

const DefaultMaxMessages = 100

// ErrQueueEmpty is returned when a return is requested from an empty queue.
var ErrQueueEmpty = errors.New("queue is empty")

// Management is the subset of the management API the service uses.
type Management interface {
	Overview(ctx context.Context) (*rabbitmq.Overview, error)
	GetQueues(ctx context.Context, vhost string) ([]rabbitmq.Queue, error)
	GetMessages(ctx context.Context, vhost, queue string, opts rabbitmq.GetOptions) ([]decode.Snapshot, error)
	PurgeQueue(ctx context.Context, vhost, queue string) error
	Publish(ctx context.Context, vhost, exchange string, msg rabbitmq.PublishRequest) (bool, error)
}

// Peeker pulls messages over AMQP without removing them.
type Peeker interface {
	Peek(ctx context.Context, queue string, limit int) ([]decode.Delivery, error)
}

type Service struct {
	mgmt        Management
	decoder     *decode.Decoder
	logger      *slog.Logger
	vhost       string
	maxMessages int
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithVHost(vhost string) Option {
	return func(s *Service) { s.vhost = vhost }
}

// WithMaxMessages caps how many messages a reload fetches.
func WithMaxMessages(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxMessages = n
		}
	}
}

func New(mgmt Management, dec *decode.Decoder, opts ...Option) *Service {
	s := &Service{
		mgmt:        mgmt,
		decoder:     dec,
		logger:      slog.New(slog.DiscardHandler),
		vhost:       "/",
		maxMessages: DefaultMaxMessages,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.decoder == nil {
		s.decoder = decode.NewDecoder(decode.WithLogger(s.logger))
	}
	return s
}

// CheckConnection makes one authenticated call to the management API.
func (s *Service) CheckConnection(ctx context.Context) (*rabbitmq.Overview, error) {
	ov, err := s.mgmt.Overview(ctx)
	if err != nil {
		s.logger.Error("connection test failed", "error", err)
		return nil, fmt.Errorf("connection test: %w", err)
	}
	return ov, nil
}

// ListQueues returns the vhost's queues sorted by name. On failure the list
// is empty, never nil.
func (s *Service) ListQueues(ctx context.Context) ([]rabbitmq.Queue, error) {
	queues, err := s.mgmt.GetQueues(ctx, s.vhost)
	if err != nil {
		s.logger.Error("listing queues failed", "vhost", s.vhost, "error", err)
		return []rabbitmq.Queue{}, fmt.Errorf("list queues: %w", err)
	}
	slices.SortFunc(queues, func(a, b rabbitmq.Queue) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return queues, nil
}

// LoadMessages fetches up to the configured maximum from the head of a queue
// without consuming them and decodes the batch. Messages that cannot be
// decoded are left out.
func (s *Service) LoadMessages(ctx context.Context, queue string) ([]decode.Message, error) {
	snaps, err := s.mgmt.GetMessages(ctx, s.vhost, queue, rabbitmq.GetOptions{
		Count:   s.maxMessages,
		AckMode: rabbitmq.AckRequeue,
	})
	if err != nil {
		s.logger.Error("loading messages failed", "queue", queue, "error", err)
		return []decode.Message{}, fmt.Errorf("load %s: %w", queue, err)
	}

	msgs := s.decoder.DecodeAll(ctx, decode.Snapshots(snaps))
	s.logger.Debug("loaded messages", "queue", queue, "fetched", len(snaps), "decoded", len(msgs))
	return msgs, nil
}

// PeekMessages reads up to limit messages over AMQP and requeues them.
func (s *Service) PeekMessages(ctx context.Context, p Peeker, queue string, limit int) ([]decode.Message, error) {
	if limit <= 0 {
		limit = s.maxMessages
	}
	deliveries, err := p.Peek(ctx, queue, limit)
	if err != nil {
		s.logger.Error("peek failed", "queue", queue, "error", err)
		return []decode.Message{}, fmt.Errorf("peek %s: %w", queue, err)
	}
	return s.decoder.DecodeAll(ctx, decode.Deliveries(deliveries)), nil
}

func (s *Service) Purge(ctx context.Context, queue string) error {
	if err := s.mgmt.PurgeQueue(ctx, s.vhost, queue); err != nil {
		s.logger.Error("purge failed", "queue", queue, "error", err)
		return fmt.Errorf("purge %s: %w", queue, err)
	}
	s.logger.Info("purged queue", "queue", queue)
	return nil
}

// Returned describes a message moved off an error queue.
type Returned struct {
	MessageID   string `json:"message_id"`
	MessageType string `json:"message_type"`
	From        string `json:"from"`
	To          string `json:"to"`
}

// ReturnToSource takes the head message off errorQueue and publishes it to
// target, or to the queue named in its source-queue header when target is
// empty. If the message cannot be delivered it is put back on errorQueue.
func (s *Service) ReturnToSource(ctx context.Context, errorQueue, target string) (*Returned, error) {
	snaps, err := s.mgmt.GetMessages(ctx, s.vhost, errorQueue, rabbitmq.GetOptions{
		Count:   1,
		AckMode: rabbitmq.AckNoRequeue,
	})
	if err != nil {
		s.logger.Error("fetching message to return failed", "queue", errorQueue, "error", err)
		return nil, fmt.Errorf("return from %s: %w", errorQueue, err)
	}
	if len(snaps) == 0 {
		return nil, ErrQueueEmpty
	}
	snap := snaps[0]

	ret := &Returned{From: errorQueue, To: target}
	if msg := s.decoder.Decode(&snap); msg != nil {
		ret.MessageID = msg.MessageID
		ret.MessageType = msg.MessageType
		if ret.To == "" {
			ret.To, _ = msg.Header(rebus.SourceQueue)
		}
	}

	var moveErr error
	switch ret.To {
	case "":
		moveErr = fmt.Errorf("message %s has no %s header", ret.MessageID, rebus.SourceQueue)
	case errorQueue:
		moveErr = fmt.Errorf("message %s already belongs to %s", ret.MessageID, errorQueue)
	default:
		moveErr = s.publish(ctx, ret.To, snap)
	}

	if moveErr != nil {
		if err := s.publish(ctx, errorQueue, snap); err != nil {
			s.logger.Error("message could not be put back", "queue", errorQueue, "message_id", ret.MessageID, "error", err)
			return nil, errors.Join(moveErr, fmt.Errorf("put back on %s: %w", errorQueue, err))
		}
		return nil, moveErr
	}

	s.logger.Info("returned message", "message_id", ret.MessageID, "from", errorQueue, "to", ret.To)
	return ret, nil
}

// ReturnAll returns messages from errorQueue until it is empty, a return
// fails, or the configured maximum has been moved.
func (s *Service) ReturnAll(ctx context.Context, errorQueue, target string) ([]Returned, error) {
	var moved []Returned
	for len(moved) < s.maxMessages {
		if err := ctx.Err(); err != nil {
			return moved, err
		}
		ret, err := s.ReturnToSource(ctx, errorQueue, target)
		if errors.Is(err, ErrQueueEmpty) {
			return moved, nil
		}
		if err != nil {
			return moved, err
		}
		moved = append(moved, *ret)
	}
	return moved, nil
}

// publish sends a snapshot's payload and properties to queue through the
// default exchange. An unroutable message is an error.
func (s *Service) publish(ctx context.Context, queue string, snap decode.Snapshot) error {
	routed, err := s.mgmt.Publish(ctx, s.vhost, "", rabbitmq.PublishRequest{
		RoutingKey:      queue,
		Payload:         snap.Payload,
		PayloadEncoding: payloadEncoding(snap),
		Properties:      snap.Properties,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	if !routed {
		return fmt.Errorf("publish to %s: message was not routed", queue)
	}
	return nil
}

func payloadEncoding(snap decode.Snapshot) string {
	if snap.PayloadEncoding == "" {
		return "base64"
	}
	return snap.PayloadEncoding
}
