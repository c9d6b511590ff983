package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/epalmerini/snoop/internal/db"
	"github.com/epalmerini/snoop/internal/decode"
	"github.com/epalmerini/snoop/internal/rabbitmq"
)

const sentLayout = "2006-01-02 15:04:05.000 -07:00"

var (
	primaryColor   = lipgloss.Color("#FF6B6B")
	secondaryColor = lipgloss.Color("#4ECDC4")
	accentColor    = lipgloss.Color("#FFE66D")
	mutedColor     = lipgloss.Color("#6C757D")
	successColor   = lipgloss.Color("#2ECC71")
	errorColor     = lipgloss.Color("#E74C3C")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	typeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor)

	routingKeyStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Italic(true)

	fieldNameStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	successStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	headerCellStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerCellStyle
			}
			return cellStyle
		})
}

func renderQueues(w io.Writer, queues []rabbitmq.Queue) {
	if len(queues) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No queues"))
		return
	}
	t := newTable("QUEUE", "MESSAGES", "READY", "UNACKED", "CONSUMERS")
	for _, q := range queues {
		t.Row(q.Name, strconv.Itoa(q.Messages), strconv.Itoa(q.Ready), strconv.Itoa(q.Unacked), strconv.Itoa(q.Consumers))
	}
	fmt.Fprintln(w, t.Render())
}

func renderSessions(w io.Writer, sessions []db.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No capture sessions"))
		return
	}
	t := newTable("ID", "SOURCE", "STARTED", "DURATION", "MESSAGES")
	for _, s := range sessions {
		duration := "running"
		if s.EndedAt != nil {
			duration = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		t.Row(
			strconv.FormatInt(s.ID, 10),
			sessionSource(s),
			s.StartedAt.Local().Format(time.DateTime),
			duration,
			strconv.FormatInt(s.MessageCount, 10),
		)
	}
	fmt.Fprintln(w, t.Render())
}

func sessionSource(s db.Session) string {
	switch {
	case s.QueueName != "":
		return "queue " + s.QueueName
	case s.Exchange != "":
		return "exchange " + s.Exchange + " (" + s.RoutingKey + ")"
	default:
		return "-"
	}
}

// renderMessage prints one decoded message as a labelled block.
func renderMessage(w io.Writer, n int, m decode.Message) {
	fmt.Fprintf(w, "%s %s  %s\n",
		titleStyle.Render(fmt.Sprintf("#%d", n)),
		typeStyle.Render(m.MessageType),
		routingKeyStyle.Render(m.RoutingKey),
	)

	field := func(name, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(w, "  %s %s\n", fieldNameStyle.Render(name+":"), value)
	}
	field("Message ID", m.MessageID)
	field("Source Queue", m.SourceQueue)
	field("Exchange", m.Exchange)
	field("Sent", m.SentTime.Format(sentLayout))
	if dl, ok := deadLetterInfo(m); ok {
		field("Dead-lettered", errorStyle.Render(dl.String()))
	}

	if len(m.Headers) > 0 {
		fmt.Fprintf(w, "  %s\n", fieldNameStyle.Render("Headers:"))
		for _, h := range m.Headers {
			fmt.Fprintf(w, "    %s %s\n", mutedStyle.Render(h.Key+":"), h.Value)
		}
	}

	if m.ErrorDetails != "" {
		fmt.Fprintf(w, "  %s\n", fieldNameStyle.Render("Error Details:"))
		fmt.Fprintln(w, indent(errorStyle.Render(m.ErrorDetails), "    "))
	}

	fmt.Fprintf(w, "  %s\n", fieldNameStyle.Render("Body:"))
	fmt.Fprintln(w, indent(m.Body, "    "))
	fmt.Fprintln(w)
}

func renderMessages(w io.Writer, msgs []decode.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No messages"))
		return
	}
	for i, m := range msgs {
		renderMessage(w, i+1, m)
	}
}

func renderCaptures(w io.Writer, msgs []db.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No captured messages"))
		return
	}
	for _, m := range msgs {
		fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("session %d, captured %s", m.SessionID, m.CapturedAt.Local().Format(time.DateTime))))
		renderMessage(w, int(m.ID), m.Message)
	}
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
