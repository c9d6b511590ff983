// Package proto renders protobuf message bodies using descriptors parsed
// from a directory of .proto files.
package proto

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/jhump/protoreflect/dynamic"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Decoder decodes protobuf payloads against the message types it loaded.
// It is read-only after construction and safe for concurrent use.
type Decoder struct {
	messageTypes map[string]*desc.MessageDescriptor
	allMessages  []*desc.MessageDescriptor
	warnings     []string
}

// NewDecoder parses every .proto file below protoPath. Files that fail to
// parse are skipped and reported through Warnings.
func NewDecoder(protoPath string) (*Decoder, error) {
	var protoFiles []string
	err := filepath.WalkDir(protoPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".proto") {
			return nil
		}
		rel, err := filepath.Rel(protoPath, path)
		if err != nil {
			rel = path
		}
		protoFiles = append(protoFiles, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk proto path: %w", err)
	}
	if len(protoFiles) == 0 {
		return nil, fmt.Errorf("no .proto files found in %s", protoPath)
	}

	parser := protoparse.Parser{
		ImportPaths:           []string{protoPath},
		IncludeSourceCodeInfo: true,
	}

	d := &Decoder{messageTypes: make(map[string]*desc.MessageDescriptor)}
	for _, pf := range protoFiles {
		fds, err := parser.ParseFiles(pf)
		if err != nil {
			d.warnings = append(d.warnings, fmt.Sprintf("%s: %v", pf, err))
			continue
		}
		for _, fd := range fds {
			for _, md := range fd.GetMessageTypes() {
				d.add(md)
			}
		}
	}

	if len(d.allMessages) == 0 {
		return nil, fmt.Errorf("no message types loaded from %s", protoPath)
	}
	return d, nil
}

func (d *Decoder) add(md *desc.MessageDescriptor) {
	if _, seen := d.messageTypes[md.GetFullyQualifiedName()]; seen {
		return
	}
	d.messageTypes[md.GetName()] = md
	d.messageTypes[md.GetFullyQualifiedName()] = md
	d.allMessages = append(d.allMessages, md)
}

// Warnings lists the files that could not be parsed.
func (d *Decoder) Warnings() []string {
	return d.warnings
}

// ListTypes returns the known message names, short and fully qualified, sorted.
func (d *Decoder) ListTypes() []string {
	types := make([]string, 0, len(d.messageTypes))
	for name := range d.messageTypes {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

// DecodeAs decodes data as the named message type. The name may be short
// ("OrderPlaced") or fully qualified ("shop.v1.OrderPlaced"), any case.
func (d *Decoder) DecodeAs(data []byte, typeName string) (map[string]any, error) {
	md := d.lookup(typeName)
	if md == nil {
		return nil, fmt.Errorf("unknown message type: %s", typeName)
	}

	msg := dynamic.NewMessage(md)
	if err := msg.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", typeName, err)
	}

	result := messageToMap(msg)
	result["__type"] = md.GetName()
	return result, nil
}

func (d *Decoder) lookup(typeName string) *desc.MessageDescriptor {
	if md, ok := d.messageTypes[typeName]; ok {
		return md
	}
	for name, md := range d.messageTypes {
		if strings.EqualFold(name, typeName) {
			return md
		}
	}
	return nil
}

// DecodeWithHint tries every known type and keeps the one that populates the
// most fields, strongly preferring the type named by the routing key.
func (d *Decoder) DecodeWithHint(data []byte, routingKey string) (map[string]any, error) {
	if d == nil || len(d.allMessages) == 0 {
		return nil, fmt.Errorf("no message types loaded")
	}

	typeHint := routingKeyToTypeHint(routingKey)

	var (
		bestMatch *dynamic.Message
		bestName  string
		bestScore int
	)
	for _, md := range d.allMessages {
		msg := dynamic.NewMessage(md)
		if err := msg.Unmarshal(data); err != nil {
			continue
		}

		score := countPopulatedFields(msg)
		if typeHint != "" && strings.EqualFold(md.GetName(), typeHint) {
			score += 1000
		}
		if score > bestScore {
			bestScore = score
			bestMatch = msg
			bestName = md.GetName()
		}
	}

	if bestMatch == nil {
		return nil, fmt.Errorf("could not decode with any known message type")
	}

	result := messageToMap(bestMatch)
	result["__type"] = bestName
	return result, nil
}

var titleCase = cases.Title(language.Und)

// routingKeyToTypeHint converts a routing key to the message type it most
// likely carries: "editorial.it.country.updated" -> "CountryUpdated".
func routingKeyToTypeHint(routingKey string) string {
	parts := strings.Split(routingKey, ".")
	if len(parts) < 2 {
		return ""
	}

	entity := parts[len(parts)-2]
	action := parts[len(parts)-1]

	// snake_case entities: "administrative_area" -> "AdministrativeArea"
	entity = strings.ReplaceAll(titleCase.String(strings.ReplaceAll(entity, "_", " ")), " ", "")
	action = titleCase.String(action)

	return entity + action
}

func countPopulatedFields(msg *dynamic.Message) int {
	count := 0
	for _, fd := range msg.GetKnownFields() {
		if msg.HasField(fd) {
			count++
		}
	}
	return count
}

func messageToMap(msg *dynamic.Message) map[string]any {
	result := make(map[string]any)
	for _, fd := range msg.GetKnownFields() {
		if !msg.HasField(fd) {
			continue
		}
		result[fd.GetName()] = convertValue(msg.GetField(fd))
	}
	return result
}

func convertValue(val any) any {
	switch v := val.(type) {
	case *dynamic.Message:
		return messageToMap(v)
	case []byte:
		if isPrintable(v) {
			return string(v)
		}
		return fmt.Sprintf("0x%x", v)
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = convertValue(item)
		}
		return result
	case map[any]any:
		result := make(map[string]any, len(v))
		for k, item := range v {
			result[fmt.Sprint(k)] = convertValue(item)
		}
		return result
	default:
		return v
	}
}

func isPrintable(data []byte) bool {
	if !utf8.Valid(data) {
		return false
	}
	for _, b := range data {
		if b < 32 && b != '\n' && b != '\r' && b != '\t' {
			return false
		}
	}
	return true
}
