package decode

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/epalmerini/snoop/internal/rebus"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

const (
	// EmptyBody is the text shown for a message without payload.
	EmptyBody = "Empty message body"

	errorPrefix = "Error decoding message body: "

	defaultContentType = "application/json"
)

// ProtoDecoder renders protobuf payloads as field maps.
// *proto.Decoder implements it.
type ProtoDecoder interface {
	DecodeAs(data []byte, typeName string) (map[string]any, error)
	DecodeWithHint(data []byte, routingKey string) (map[string]any, error)
}

// DecodeBody turns a payload into display text using the content type and
// content encoding found in h. It never fails: problems are reported inline.
func DecodeBody(body []byte, h Headers) string {
	return decodeBody(body, h, bodyHints{})
}

// bodyHints carry what the protobuf renderer needs to pick a message type.
type bodyHints struct {
	proto       ProtoDecoder
	messageType string
	routingKey  string
}

func decodeBody(body []byte, h Headers, hints bodyHints) string {
	text, err := decodeBodyText(body, h, hints)
	if err != nil {
		return errorPrefix + err.Error()
	}
	return text
}

func decodeBodyText(body []byte, h Headers, hints bodyHints) (string, error) {
	if len(body) == 0 {
		return EmptyBody, nil
	}

	if enc, ok := h.Lookup(rebus.ContentEncoding, rebus.PlainContentEncoding); ok && strings.EqualFold(enc, "gzip") {
		unzipped, err := gunzip(body)
		if err != nil {
			return "", err
		}
		body = unzipped
	}

	contentType, ok := h.Lookup(rebus.ContentType, rebus.PlainContentType)
	if !ok {
		contentType = defaultContentType
	}

	enc, err := resolveEncoding(contentType)
	if err != nil {
		return "", err
	}

	if hints.proto != nil && isProtobuf(contentType) {
		if rendered, ok := renderProto(body, hints); ok {
			return rendered, nil
		}
	}

	text, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", err
	}

	return FormatPayload(string(text)), nil
}

func gunzip(b []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// contentTypeParams parses the key=value parameters of a content type.
// Keys are case-insensitive; tokens that are not exactly key=value are skipped.
func contentTypeParams(contentType string) (map[string]string, error) {
	params := make(map[string]string)
	for _, token := range strings.Split(contentType, ";") {
		parts := strings.Split(token, "=")
		if len(parts) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(parts[0]))
		if _, dup := params[key]; dup {
			return nil, fmt.Errorf("duplicate content type parameter %q", key)
		}
		params[key] = strings.TrimSpace(parts[1])
	}
	return params, nil
}

func resolveEncoding(contentType string) (encoding.Encoding, error) {
	params, err := contentTypeParams(contentType)
	if err != nil {
		return nil, err
	}

	name, ok := params["charset"]
	if !ok {
		return unicode.UTF8, nil
	}
	name = strings.Trim(name, `"`)

	if enc, err := htmlindex.Get(name); err == nil {
		return enc, nil
	}
	if enc, err := ianaindex.IANA.Encoding(name); err == nil && enc != nil {
		return enc, nil
	}
	return nil, fmt.Errorf("unsupported charset %q", name)
}

func isProtobuf(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.Contains(strings.ToLower(mediaType), "protobuf")
}

func renderProto(body []byte, hints bodyHints) (string, bool) {
	var (
		fields map[string]any
		err    error
	)
	if name := shortTypeName(hints.messageType); name != "" {
		fields, err = hints.proto.DecodeAs(body, name)
	}
	if fields == nil || err != nil {
		fields, err = hints.proto.DecodeWithHint(body, hints.routingKey)
	}
	if err != nil {
		return "", false
	}

	out, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return "", false
	}
	return string(out), true
}

// shortTypeName reduces "Orders.Messages.OrderPlaced" to "OrderPlaced".
func shortTypeName(messageType string) string {
	if messageType == "" || messageType == UnknownType {
		return ""
	}
	if i := strings.LastIndexAny(messageType, ".+"); i >= 0 {
		return messageType[i+1:]
	}
	return messageType
}
