package cli

import "github.com/epalmerini/snoop/internal/decode"

// Headers RabbitMQ adds when it dead-letters a message.
const (
	firstDeathReason   = "x-first-death-reason"
	firstDeathQueue    = "x-first-death-queue"
	firstDeathExchange = "x-first-death-exchange"
)

type deadLetter struct {
	Reason   string
	Queue    string
	Exchange string
}

// deadLetterInfo reports where and why the broker dead-lettered a message.
// Rebus error queues are filled by Rebus itself, so most of their messages
// carry no such headers.
func deadLetterInfo(m decode.Message) (deadLetter, bool) {
	var dl deadLetter
	dl.Reason, _ = m.Header(firstDeathReason)
	dl.Queue, _ = m.Header(firstDeathQueue)
	dl.Exchange, _ = m.Header(firstDeathExchange)
	return dl, dl.Reason != "" || dl.Queue != ""
}

func (dl deadLetter) String() string {
	s := dl.Reason
	if s == "" {
		s = "dead-lettered"
	}
	if dl.Queue != "" {
		s += " in " + dl.Queue
	}
	if dl.Exchange != "" {
		s += " (exchange " + dl.Exchange + ")"
	}
	return s
}
