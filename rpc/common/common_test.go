package common

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestConnID(t *testing.T) {
	id := MakeConnID(3, 7)
	if id.Generation() != 3 || id.Index() != 7 {
		t.Errorf("Expected 3:7, got %s", id)
	}
	if ListenerID.Generation() != 0 || ListenerID.Index() != 0 {
		t.Errorf("The listener id must be 0:0")
	}
}

func TestExtensionBits(t *testing.T) {
	var env Envelope
	env.SetVersion(5)
	env.SetTransactionID(0xabcdef)
	env.Extension |= ExtCompressed

	if env.Version() != 5 {
		t.Errorf("Expected version 5, got %d", env.Version())
	}
	if env.TransactionID() != 0xabcdef {
		t.Errorf("Expected transaction 0xabcdef, got %#x", env.TransactionID())
	}
	if env.Encrypted() || !env.Compressed() {
		t.Errorf("Unexpected flags in %#x", env.Extension)
	}

	// values wider than their field are truncated, neighbours stay untouched
	env.SetVersion(0xff)
	if env.Version() != 0x3f || env.TransactionID() != 0xabcdef || !env.Compressed() {
		t.Errorf("SetVersion leaked into other fields: %#x", env.Extension)
	}
}

func TestEventKindJSON(t *testing.T) {
	msg := NewExceptionalMessage(MakeConnID(1, 2), EventQueueFull)
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(b), `"event":"queue-full"`) {
		t.Errorf("Event not encoded by name: %s", b)
	}

	var decoded Message
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Event != EventQueueFull || decoded.Conn != msg.Conn || decoded.IsNormal() {
		t.Errorf("Expected %s, got %s", msg, decoded)
	}

	var k EventKind
	if err := json.Unmarshal([]byte(`"nonsense"`), &k); err == nil {
		t.Errorf("Expected an error for an unknown event name")
	}
}

func TestEventKindClosure(t *testing.T) {
	for _, k := range []EventKind{EventPeerClosed, EventConnectionClosing} {
		if !k.IsClosure() {
			t.Errorf("%s should be a closure", k)
		}
	}
	for _, k := range []EventKind{EventNewConnection, EventBusy, EventQueueFull, EventServerException, EventUnknownID} {
		if k.IsClosure() {
			t.Errorf("%s should not be a closure", k)
		}
	}
}

func TestServerConfigDefaults(t *testing.T) {
	c := ServerConfig{Transport: ServerTransportConfig{Endpoint: "127.0.0.1:0"}}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if c.MaxConnections != DefaultMaxConnections || c.Engine.MaxMessageSize != maxWireBodySize ||
		c.Engine.PollTimeout != DefaultPollTimeout || c.Engine.BatchSize != DefaultBatchSize {
		t.Errorf("Defaults not applied: %s", c.String())
	}

	bad := []ServerConfig{
		{},
		{Transport: ServerTransportConfig{Endpoint: "x"}, MaxConnections: -1},
		{Transport: ServerTransportConfig{Endpoint: "x"}, Engine: EngineConf{MaxMessageSize: maxWireBodySize + 1}},
		{Transport: ServerTransportConfig{Endpoint: "x"}, Engine: EngineConf{MaxQueueDepth: -1}},
	}
	for i, c := range bad {
		if err := c.Validate(); err == nil {
			t.Errorf("Config %d should be rejected", i)
		}
	}
}

func TestClientConfigValidate(t *testing.T) {
	c := ClientConfig{Transport: ClientTransportConfig{Endpoints: []string{"a:1"}}}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if c.ReconnectInterval != DefaultReconnectInterval || c.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("Defaults not applied: %s", c.String())
	}

	empty := ClientConfig{Transport: ClientTransportConfig{Endpoints: []string{"a:1", " "}}}
	if err := empty.Validate(); err == nil {
		t.Errorf("Empty endpoints should be rejected")
	}
}

func TestParseLogLevel(t *testing.T) {
	for _, level := range []string{"debug", "INFO", "", "warn", "warning", "error"} {
		if _, err := ParseLogLevel(level); err != nil {
			t.Errorf("Level %q should parse: %v", level, err)
		}
	}
	if _, err := ParseLogLevel("loud"); err == nil {
		t.Errorf("Expected an error for an unknown level")
	}
}
