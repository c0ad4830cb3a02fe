package util

import (
	"bytes"
	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/viper"
	"strings"
	"testing"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		if len(line) > Wrap {
			t.Errorf("Line exceeds %d characters: %q", Wrap, line)
		}
	}
	if WrapString("") != "" {
		t.Errorf("Wrapping an empty string should return an empty string")
	}
}

func TestGetClientConfigEndpoints(t *testing.T) {
	viper.Set("endpoints", " localhost:1, localhost:2,,")
	defer viper.Set("endpoints", nil)

	conf := GetClientConfig()
	if len(conf.Transport.Endpoints) != 2 {
		t.Fatalf("Expected 2 endpoints, got %v", conf.Transport.Endpoints)
	}
	if conf.Transport.Endpoints[0] != "localhost:1" || conf.Transport.Endpoints[1] != "localhost:2" {
		t.Errorf("Endpoints not trimmed: %v", conf.Transport.Endpoints)
	}
}

func TestNewTransportRejectsUnknown(t *testing.T) {
	viper.Set("transport", "carrier-pigeon")
	defer viper.Set("transport", nil)

	if _, err := NewClientTransport(*GetClientConfig()); err == nil {
		t.Errorf("Expected an error for an unknown transport")
	}
}

func TestWriteMetrics(t *testing.T) {
	set := metrics.NewSet()
	set.NewCounter(`dtcp_test_total{service="listen"}`).Inc()

	var buf bytes.Buffer
	WriteMetrics(&buf, set)
	if !strings.Contains(buf.String(), `dtcp_test_total{service="listen"} 1`) {
		t.Errorf("Counter missing from output:\n%s", buf.String())
	}
}
