package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP listener configuration.
type Server struct {
	Addr        string
	MetricsAddr string
	LogLevel    string
	IngestPath  string
}

// Auth holds the token verification key material. Exactly one of PublicKey or
// PublicKeyFile is expected; PublicKey wins when both are set.
type Auth struct {
	PublicKey     string
	PublicKeyFile string
}

// Admission configures the fixed-window write budget shared by every relayed message.
type Admission struct {
	Limit  int
	Window time.Duration
}

// Relay configures the queue worker and its sink.
type Relay struct {
	Key            string
	Delay          time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Buffer         int
	SinkURL        string
	SinkTimeout    time.Duration
}

// Kafka selects the Kafka-backed relay queue when Brokers is non-empty.
type Kafka struct {
	Brokers []string
	Topic   string
	Group   string
}

// RedisConfig selects the Redis-backed admission window when URL is non-empty.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Forward configures the dynamic forwarder.
type Forward struct {
	Scheme  string
	Timeout time.Duration
}

type Config struct {
	Server    Server
	Auth      Auth
	Admission Admission
	Relay     Relay
	Kafka     Kafka
	Redis     RedisConfig
	Forward   Forward
}

// Default returns the configuration used when no environment overrides are present.
func Default() Config {
	return Config{
		Server: Server{
			Addr:        ":8080",
			MetricsAddr: ":9090",
			LogLevel:    "info",
			IngestPath:  "/temperature-measurements/v1/dummy",
		},
		Admission: Admission{
			Limit:  75,
			Window: time.Minute,
		},
		Relay: Relay{
			Key:            "Camel",
			Delay:          5 * time.Second,
			MaxAttempts:    5,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     10 * time.Second,
			Buffer:         1024,
			SinkTimeout:    10 * time.Second,
		},
		Kafka: Kafka{
			Topic: "weather-data-topic",
			Group: "ingressgw",
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Forward: Forward{
			Scheme:  "http",
			Timeout: 30 * time.Second,
		},
	}
}

// FromEnv builds a Config from environment variables so main stays lean.
// Malformed numeric or duration values are reported rather than silently defaulted.
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	p := parser{lookup: lookup}

	p.stringVar("ADDR", &cfg.Server.Addr)
	p.stringVar("METRICS_ADDR", &cfg.Server.MetricsAddr)
	p.stringVar("LOG_LEVEL", &cfg.Server.LogLevel)
	p.stringVar("INGEST_PATH", &cfg.Server.IngestPath)

	p.stringVar("JWT_PUBLIC_KEY", &cfg.Auth.PublicKey)
	p.stringVar("JWT_PUBLIC_KEY_FILE", &cfg.Auth.PublicKeyFile)

	p.intVar("ADMISSION_LIMIT", &cfg.Admission.Limit)
	p.durationVar("ADMISSION_WINDOW", &cfg.Admission.Window)

	p.stringVar("RELAY_KEY", &cfg.Relay.Key)
	p.durationVar("RELAY_DELAY", &cfg.Relay.Delay)
	p.intVar("RELAY_MAX_ATTEMPTS", &cfg.Relay.MaxAttempts)
	p.durationVar("RELAY_INITIAL_BACKOFF", &cfg.Relay.InitialBackoff)
	p.durationVar("RELAY_MAX_BACKOFF", &cfg.Relay.MaxBackoff)
	p.intVar("RELAY_BUFFER", &cfg.Relay.Buffer)
	p.stringVar("SINK_URL", &cfg.Relay.SinkURL)
	p.durationVar("SINK_TIMEOUT", &cfg.Relay.SinkTimeout)

	if v, ok := lookup("KAFKA_BROKERS"); ok && strings.TrimSpace(v) != "" {
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, b)
			}
		}
	}
	p.stringVar("KAFKA_TOPIC", &cfg.Kafka.Topic)
	p.stringVar("KAFKA_GROUP", &cfg.Kafka.Group)

	p.stringVar("REDIS_URL", &cfg.Redis.URL)

	p.stringVar("FORWARD_SCHEME", &cfg.Forward.Scheme)
	p.durationVar("FORWARD_TIMEOUT", &cfg.Forward.Timeout)

	if len(p.errs) > 0 {
		return Config{}, errors.Join(p.errs...)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Auth.PublicKey == "" && c.Auth.PublicKeyFile == "" {
		errs = append(errs, errors.New("one of JWT_PUBLIC_KEY or JWT_PUBLIC_KEY_FILE is required"))
	}
	if !strings.HasPrefix(c.Server.IngestPath, "/") {
		errs = append(errs, fmt.Errorf("INGEST_PATH must start with '/', got %q", c.Server.IngestPath))
	}
	if c.Admission.Limit <= 0 {
		errs = append(errs, fmt.Errorf("ADMISSION_LIMIT must be positive, got %d", c.Admission.Limit))
	}
	if c.Admission.Window <= 0 {
		errs = append(errs, fmt.Errorf("ADMISSION_WINDOW must be positive, got %s", c.Admission.Window))
	}
	if c.Relay.Key == "" {
		errs = append(errs, errors.New("RELAY_KEY must not be empty"))
	}
	if c.Relay.Delay < 0 {
		errs = append(errs, fmt.Errorf("RELAY_DELAY must not be negative, got %s", c.Relay.Delay))
	}
	if c.Relay.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("RELAY_MAX_ATTEMPTS must be at least 1, got %d", c.Relay.MaxAttempts))
	}
	if c.Relay.InitialBackoff <= 0 || c.Relay.MaxBackoff < c.Relay.InitialBackoff {
		errs = append(errs, fmt.Errorf("RELAY_INITIAL_BACKOFF (%s) must be positive and not exceed RELAY_MAX_BACKOFF (%s)",
			c.Relay.InitialBackoff, c.Relay.MaxBackoff))
	}
	if c.Relay.Buffer < 1 {
		errs = append(errs, fmt.Errorf("RELAY_BUFFER must be at least 1, got %d", c.Relay.Buffer))
	}
	if c.Relay.SinkURL == "" {
		errs = append(errs, errors.New("SINK_URL is required"))
	} else if u, err := url.Parse(c.Relay.SinkURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("SINK_URL must be an absolute URL, got %q", c.Relay.SinkURL))
	}
	if c.Relay.SinkTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SINK_TIMEOUT must be positive, got %s", c.Relay.SinkTimeout))
	}
	if len(c.Kafka.Brokers) > 0 && (c.Kafka.Topic == "" || c.Kafka.Group == "") {
		errs = append(errs, errors.New("KAFKA_TOPIC and KAFKA_GROUP are required when KAFKA_BROKERS is set"))
	}
	if c.Forward.Scheme != "http" && c.Forward.Scheme != "https" {
		errs = append(errs, fmt.Errorf("FORWARD_SCHEME must be http or https, got %q", c.Forward.Scheme))
	}
	if c.Forward.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("FORWARD_TIMEOUT must be positive, got %s", c.Forward.Timeout))
	}
	return errors.Join(errs...)
}

// PublicKeyMaterial returns the configured key, reading the file variant when needed.
func (a Auth) PublicKeyMaterial() (string, error) {
	if a.PublicKey != "" {
		return a.PublicKey, nil
	}
	raw, err := os.ReadFile(a.PublicKeyFile)
	if err != nil {
		return "", fmt.Errorf("read JWT_PUBLIC_KEY_FILE: %w", err)
	}
	return string(raw), nil
}

type parser struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (p *parser) stringVar(key string, dst *string) {
	if v, ok := p.lookup(key); ok && v != "" {
		*dst = v
	}
}

func (p *parser) intVar(key string, dst *int) {
	v, ok := p.lookup(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func (p *parser) durationVar(key string, dst *time.Duration) {
	v, ok := p.lookup(key)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = d
}
