package proto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRoutingKeyToTypeHint(t *testing.T) {
	tests := []struct {
		name       string
		routingKey string
		want       string
	}{
		{
			name:       "standard two-part entity.action",
			routingKey: "editorial.it.country.updated",
			want:       "CountryUpdated",
		},
		{
			name:       "simple two segments",
			routingKey: "user.created",
			want:       "UserCreated",
		},
		{
			name:       "snake_case entity",
			routingKey: "admin.administrative_area.deleted",
			want:       "AdministrativeAreaDeleted",
		},
		{
			name:       "single segment returns empty",
			routingKey: "created",
			want:       "",
		},
		{
			name:       "empty string returns empty",
			routingKey: "",
			want:       "",
		},
		{
			name:       "many segments uses last two",
			routingKey: "a.b.c.d.order.shipped",
			want:       "OrderShipped",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := routingKeyToTypeHint(tt.routingKey)
			if got != tt.want {
				t.Errorf("routingKeyToTypeHint(%q) = %q, want %q", tt.routingKey, got, tt.want)
			}
		})
	}
}

func TestNewDecoder_LoadsMessages(t *testing.T) {
	dir := t.TempDir()
	writeProto(t, dir, "orders.proto", `syntax = "proto3";
package shop.v1;

message OrderPlaced {
  string id = 1;
  int64 quantity = 2;
  bytes blob = 3;
}

message CountryUpdated {
  string code = 1;
}
`)
	writeProto(t, dir, "broken.proto", `this is not protobuf`)

	d, err := NewDecoder(dir)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}

	if len(d.Warnings()) != 1 || !strings.Contains(d.Warnings()[0], "broken.proto") {
		t.Errorf("Warnings() = %v, want one entry for broken.proto", d.Warnings())
	}

	want := []string{"CountryUpdated", "OrderPlaced", "shop.v1.CountryUpdated", "shop.v1.OrderPlaced"}
	got := d.ListTypes()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("ListTypes() = %v, want %v", got, want)
	}
}

func TestNewDecoder_NoProtoFiles(t *testing.T) {
	if _, err := NewDecoder(t.TempDir()); err == nil {
		t.Error("expected error for a directory without .proto files")
	}
}

func TestDecoder_DecodeAs(t *testing.T) {
	dir := t.TempDir()
	writeProto(t, dir, "orders.proto", `syntax = "proto3";
package shop.v1;

message OrderPlaced {
  string id = 1;
  int64 quantity = 2;
}
`)
	d, err := NewDecoder(dir)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}

	// field 1 (string) = "o-1", field 2 (varint) = 3
	data := []byte{0x0a, 0x03, 'o', '-', '1', 0x10, 0x03}

	for _, name := range []string{"OrderPlaced", "shop.v1.OrderPlaced", "orderplaced"} {
		got, err := d.DecodeAs(data, name)
		if err != nil {
			t.Fatalf("DecodeAs(%q): %v", name, err)
		}
		if got["id"] != "o-1" {
			t.Errorf("DecodeAs(%q) id = %v, want o-1", name, got["id"])
		}
		if got["quantity"] != int64(3) {
			t.Errorf("DecodeAs(%q) quantity = %v, want 3", name, got["quantity"])
		}
		if got["__type"] != "OrderPlaced" {
			t.Errorf("DecodeAs(%q) __type = %v, want OrderPlaced", name, got["__type"])
		}
	}

	if _, err := d.DecodeAs(data, "Missing"); err == nil {
		t.Error("expected error for an unknown type")
	}

	got, err := d.DecodeWithHint(data, "shop.order.placed")
	if err != nil {
		t.Fatalf("DecodeWithHint: %v", err)
	}
	if got["id"] != "o-1" {
		t.Errorf("DecodeWithHint id = %v, want o-1", got["id"])
	}
}

func TestConvertValue_Bytes(t *testing.T) {
	if got := convertValue([]byte("text")); got != "text" {
		t.Errorf("convertValue(text) = %v", got)
	}
	if got := convertValue([]byte{0x00, 0xff}); got != "0x00ff" {
		t.Errorf("convertValue(binary) = %v, want 0x00ff", got)
	}
}

func writeProto(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
