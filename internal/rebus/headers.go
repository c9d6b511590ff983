// Package rebus holds the header keys the Rebus service bus writes on every
// message it sends through RabbitMQ. The values are part of the wire contract
// and must match exactly.
package rebus

const (
	MessageType     = "rbs2-msg-type"
	SourceQueue     = "rbs2-source-queue"
	SentTime        = "rbs2-sent-time"
	ErrorDetails    = "rbs2-error-details"
	ContentType     = "rbs2-content-type"
	ContentEncoding = "rbs2-content-encoding"
	MessageID       = "rbs2-msg-id"
	CorrelationID   = "rbs2-corr-id"
)

// Transport-level keys the normalizer derives from AMQP basic properties.
const (
	TransportMessageID     = "message-id"
	TransportCorrelationID = "correlation-id"
	TransportTimestamp     = "timestamp"

	// Plain aliases some publishers use instead of the rbs2- keys.
	PlainContentType     = "content-type"
	PlainContentEncoding = "content-encoding"
)
