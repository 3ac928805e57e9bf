package jsoncodec

import (
	"bytes"
	"strings"
	"testing"
)

type stageRecord struct {
	Stage string `json:"stage"`
	Count int    `json:"count"`
}

func TestMarshalAndUnmarshal(t *testing.T) {
	in := stageRecord{Stage: "say_hello", Count: 3}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var out stageRecord
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if out != in {
		t.Fatalf("expected round trip to match, got %#v", out)
	}

	indented, err := MarshalIndent(in, "", "  ")
	if err != nil {
		t.Fatalf("marshal indent failed: %v", err)
	}
	if !strings.Contains(string(indented), "\n  \"stage\"") {
		t.Fatalf("expected indented output, got %s", string(indented))
	}
}

func TestMarshalString(t *testing.T) {
	got, err := MarshalString(map[string]any{"name": "world"})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if got != `{"name":"world"}` {
		t.Fatalf("unexpected json %s", got)
	}

	if _, err := MarshalString(make(chan int)); err == nil {
		t.Fatal("expected channels to be rejected")
	}
}

func TestEncodeAndDecode(t *testing.T) {
	buf := &bytes.Buffer{}
	payload := stageRecord{Stage: "print", Count: 7}

	if err := Encode(buf, payload); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var decoded stageRecord
	if err := Decode(buf, &decoded); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded != payload {
		t.Fatalf("expected decoded payload to match, got %#v", decoded)
	}
}
