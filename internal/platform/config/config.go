package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile           = ".env"
	defaultPort              = "8080"
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultCurrency          = "INR"
	defaultFreeThresholdPaise = int64(49900)
	defaultFlatShippingPaise = int64(9900)
	defaultIdempotencyHeader = "Idempotency-Key"
	defaultIdempotencyTTL    = 24 * time.Hour

	secretRefPrefix = "secret://"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firestore   FirestoreConfig
	PubSub      PubSubConfig
	Razorpay    RazorpayConfig
	Shipping    ShippingConfig
	Idempotency IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PubSubConfig stores event topic parameters.
type PubSubConfig struct {
	ProjectID       string
	OrderEventTopic string
}

// RazorpayConfig collects gateway credentials. KeySecret may be supplied as a
// secret:// reference resolved through the SecretResolver at load time.
type RazorpayConfig struct {
	KeyID     string
	KeySecret string
}

// ShippingConfig holds the storefront's flat-fee shipping policy in paise.
type ShippingConfig struct {
	Currency          string
	FreeThresholdPaise int64
	FlatFeePaise       int64
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header string
	TTL    time.Duration
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secrets      SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap supplies explicit values taking precedence over file and OS env.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading the process environment (used in tests).
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver installs the resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secrets = resolver
	}
}

// Load reads configuration with dotenv < OS env < explicit map precedence,
// resolves secret references, and validates required fields.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	values, err := mergedValues(options)
	if err != nil {
		return Config{}, err
	}
	get := func(key string) string { return strings.TrimSpace(values[key]) }

	cfg := Config{
		Server: ServerConfig{
			Port:         fallback(get("PORT"), defaultPort),
			ReadTimeout:  durationValue(get("SERVER_READ_TIMEOUT"), defaultReadTimeout),
			WriteTimeout: durationValue(get("SERVER_WRITE_TIMEOUT"), defaultWriteTimeout),
			IdleTimeout:  durationValue(get("SERVER_IDLE_TIMEOUT"), defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    get("FIRESTORE_PROJECT_ID"),
			EmulatorHost: get("FIRESTORE_EMULATOR_HOST"),
		},
		PubSub: PubSubConfig{
			ProjectID:       fallback(get("PUBSUB_PROJECT_ID"), get("FIRESTORE_PROJECT_ID")),
			OrderEventTopic: fallback(get("ORDER_EVENT_TOPIC"), "order-events"),
		},
		Razorpay: RazorpayConfig{
			KeyID:     get("RAZORPAY_KEY_ID"),
			KeySecret: get("RAZORPAY_KEY_SECRET"),
		},
		Shipping: ShippingConfig{
			Currency:           fallback(get("SHIPPING_CURRENCY"), defaultCurrency),
			FreeThresholdPaise: int64Value(get("SHIPPING_FREE_THRESHOLD_PAISE"), defaultFreeThresholdPaise),
			FlatFeePaise:       int64Value(get("SHIPPING_FLAT_FEE_PAISE"), defaultFlatShippingPaise),
		},
		Idempotency: IdempotencyConfig{
			Header: fallback(get("IDEMPOTENCY_HEADER"), defaultIdempotencyHeader),
			TTL:    durationValue(get("IDEMPOTENCY_TTL"), defaultIdempotencyTTL),
		},
	}

	if strings.HasPrefix(cfg.Razorpay.KeySecret, secretRefPrefix) {
		if options.secrets == nil {
			return Config{}, errors.New("config: secret resolver required for RAZORPAY_KEY_SECRET reference")
		}
		resolved, err := options.secrets.ResolveSecret(ctx, cfg.Razorpay.KeySecret)
		if err != nil {
			return Config{}, fmt.Errorf("config: resolve razorpay secret: %w", err)
		}
		cfg.Razorpay.KeySecret = strings.TrimSpace(resolved)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var missing []string
	if c.Firestore.ProjectID == "" && c.Firestore.EmulatorHost == "" {
		missing = append(missing, "FIRESTORE_PROJECT_ID")
	}
	if c.Shipping.FreeThresholdPaise < 0 {
		missing = append(missing, "SHIPPING_FREE_THRESHOLD_PAISE")
	}
	if c.Shipping.FlatFeePaise < 0 {
		missing = append(missing, "SHIPPING_FLAT_FEE_PAISE")
	}
	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func mergedValues(options loaderOptions) (map[string]string, error) {
	values := make(map[string]string)

	fileValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	for k, v := range fileValues {
		values[k] = v
	}

	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
				continue
			}
			values[strings.TrimSpace(parts[0])] = parts[1]
		}
	}

	for k, v := range options.envMap {
		values[k] = v
	}
	return values, nil
}

// loadDotEnv reads KEY=VALUE lines, ignoring blanks and # comments. A missing
// file is not an error; local overrides are optional.
func loadDotEnv(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: open env file %s: %w", path, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		if key != "" {
			values[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read env file %s: %w", path, err)
	}
	return values, nil
}

func fallback(value, def string) string {
	if value != "" {
		return value
	}
	return def
}

func durationValue(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}

func int64Value(value string, def int64) int64 {
	if value == "" {
		return def
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	return def
}
