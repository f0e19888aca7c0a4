package mqtt

import (
	"strings"
	"testing"

	"github.com/tiltlogic/tiltlogic-core/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "localhost",
			Port:     1883,
			ClientID: "tiltlogic-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     10,
		},
	}
}

func TestBuildClientOptionsPlain(t *testing.T) {
	opts := buildClientOptions(testConfig())

	if len(opts.Servers) != 1 {
		t.Fatalf("expected 1 broker, got %d", len(opts.Servers))
	}
	if got := opts.Servers[0].String(); got != "tcp://localhost:1883" {
		t.Errorf("broker URL = %q, want tcp://localhost:1883", got)
	}
	if opts.ClientID != "tiltlogic-test" {
		t.Errorf("client ID = %q, want tiltlogic-test", opts.ClientID)
	}
	if !opts.AutoReconnect {
		t.Error("auto-reconnect should be enabled")
	}
}

func TestBuildClientOptionsTLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Auth.Username = "pin"
	cfg.Auth.Password = "ball"

	opts := buildClientOptions(cfg)

	if got := opts.Servers[0].String(); !strings.HasPrefix(got, "ssl://") {
		t.Errorf("broker URL = %q, want ssl:// scheme", got)
	}
	if opts.Username != "pin" {
		t.Errorf("username = %q, want pin", opts.Username)
	}
	if opts.TLSConfig == nil {
		t.Fatal("TLS config should be set when TLS is enabled")
	}
}

func TestIsConnectedBeforeConnect(t *testing.T) {
	c := NewClient(testConfig())
	if c.IsConnected() {
		t.Error("new client should not report connected")
	}
}
