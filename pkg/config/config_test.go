package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Kafka.Topics.Inntekter != "aap.inntekter.v1" {
		t.Errorf("topic = %q", cfg.Kafka.Topics.Inntekter)
	}
	if cfg.Inntektskomponent.Filter != "ArbeidsavklaringspengerA-inntekt" {
		t.Errorf("filter = %q", cfg.Inntektskomponent.Filter)
	}
	if cfg.HTTPClient.Retry.MaxAttempts != 4 {
		t.Errorf("max attempts = %d", cfg.HTTPClient.Retry.MaxAttempts)
	}
	if cfg.Redis.Enabled || cfg.Postgres.Enabled {
		t.Error("redis and postgres must be disabled by default")
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
kafka:
  brokers: ["broker-1:9092", "broker-2:9092"]
  threads: 3
popp:
  baseUrl: http://popp.test
  rateLimitRps: 2.5
httpClient:
  requestTimeout: 2s
logging:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "broker-2:9092" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Kafka.Threads != 3 {
		t.Errorf("threads = %d", cfg.Kafka.Threads)
	}
	if cfg.Popp.BaseURL != "http://popp.test" || cfg.Popp.RateLimitRPS != 2.5 {
		t.Errorf("popp = %+v", cfg.Popp)
	}
	if cfg.HTTPClient.RequestTimeout != 2*time.Second {
		t.Errorf("request timeout = %v", cfg.HTTPClient.RequestTimeout)
	}
	// Values absent from the file keep their defaults.
	if cfg.Kafka.ConsumerGroup != "aap-inntekt" {
		t.Errorf("consumer group = %q", cfg.Kafka.ConsumerGroup)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "a:1,b:2")
	t.Setenv("AZURE_APP_CLIENT_ID", "client")
	t.Setenv("POPP_SCOPE", "api://popp/.default")
	t.Setenv("DATABASE_URL", "postgres://u:p@db/inntekt")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if strings.Join(cfg.Kafka.Brokers, ",") != "a:1,b:2" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Azure.ClientID != "client" {
		t.Errorf("client id = %q", cfg.Azure.ClientID)
	}
	if cfg.Popp.Scope != "api://popp/.default" {
		t.Errorf("popp scope = %q", cfg.Popp.Scope)
	}
	if !cfg.Postgres.Enabled || cfg.Postgres.DSN() != "postgres://u:p@db/inntekt" {
		t.Errorf("postgres = %+v", cfg.Postgres)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "redis:6379" {
		t.Errorf("redis = %+v", cfg.Redis)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "kafka: [unterminated")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "azure.tokenEndpoint") {
		t.Fatalf("expected missing token endpoint, got %v", err)
	}

	cfg.Azure.TokenEndpoint = "http://azure.test/token"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	cfg.Kafka.Brokers = nil
	cfg.Kafka.Threads = 0
	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"kafka.brokers", "kafka.threads"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestKafkaTLSEnabled(t *testing.T) {
	tls := KafkaTLSConfig{CertificatePath: "cert", PrivateKeyPath: "key"}
	if tls.Enabled() {
		t.Error("TLS enabled without CA path")
	}
	tls.CAPath = "ca"
	if !tls.Enabled() {
		t.Error("TLS should be enabled")
	}
}
