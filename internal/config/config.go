package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Voice   VoiceConfig
	Webhook WebhookConfig
	Poller  PollerConfig
	Tasks   TasksConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// VoiceConfig points at the external voice-call provider.
type VoiceConfig struct {
	BaseURL string
	APIKey  string

	// PlaceTimeout bounds one outbound placement request.
	PlaceTimeout time.Duration
	// StatusTimeout bounds one status query from the polling worker.
	StatusTimeout time.Duration
}

// WebhookConfig covers inbound provider callbacks.
type WebhookConfig struct {
	// SigningSecret is the shared HMAC secret for provider signatures.
	SigningSecret string
}

// PollerConfig tunes the polling fallback worker. Duration env vars are
// optional; zero values fall back to the worker's defaults.
type PollerConfig struct {
	ScanInterval     time.Duration
	BatchSize        int
	InitialPollDelay time.Duration

	// BackoffSteps is a comma-separated duration list (POLL_BACKOFF_STEPS),
	// e.g. "45s,90s,3m,5m".
	BackoffSteps []time.Duration
	MaxBackoff   time.Duration

	DeadLetterAfter time.Duration
}

// TasksConfig tunes the call task scheduler and executor.
type TasksConfig struct {
	ScanInterval  time.Duration
	BatchSize     int
	FollowUpDelay time.Duration
	MaxAttempts   int

	// WorkspaceCallCap limits concurrent placed calls per workspace.
	// Zero disables the cap.
	WorkspaceCallCap int
	CallCapTTL       time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	c.Voice.BaseURL = strings.TrimSpace(os.Getenv("VOICE_BASE_URL"))
	c.Voice.APIKey = os.Getenv("VOICE_API_KEY")
	c.Voice.PlaceTimeout = mustDuration("VOICE_PLACE_TIMEOUT")
	c.Voice.StatusTimeout = mustDuration("VOICE_STATUS_TIMEOUT")

	c.Webhook.SigningSecret = os.Getenv("WEBHOOK_SIGNING_SECRET")

	c.Poller.ScanInterval = mustDuration("POLL_SCAN_INTERVAL")
	c.Poller.BatchSize = optionalInt("POLL_BATCH_SIZE")
	c.Poller.InitialPollDelay = mustDuration("POLL_INITIAL_DELAY")
	{
		steps, err := durationList("POLL_BACKOFF_STEPS")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Poller.BackoffSteps = steps
	}
	c.Poller.MaxBackoff = mustDuration("POLL_MAX_BACKOFF")
	c.Poller.DeadLetterAfter = mustDuration("POLL_DEAD_LETTER_AFTER")

	c.Tasks.ScanInterval = mustDuration("TASK_SCAN_INTERVAL")
	c.Tasks.BatchSize = optionalInt("TASK_BATCH_SIZE")
	c.Tasks.FollowUpDelay = mustDuration("TASK_FOLLOW_UP_DELAY")
	c.Tasks.MaxAttempts = optionalInt("TASK_MAX_ATTEMPTS")
	c.Tasks.WorkspaceCallCap = optionalInt("TASK_WORKSPACE_CALL_CAP")
	c.Tasks.CallCapTTL = mustDuration("TASK_CALL_CAP_TTL")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate takes a pointer receiver so the defaults it applies (sslmode,
// token TTLs) stick.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			// Allowed values are enforced below.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}

	if c.Auth.AccessTokenTTL <= 0 {
		// Default: short-lived access tokens.
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		// Default: longer-lived refresh tokens.
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Voice.BaseURL == "" {
		errs = append(errs, errors.New("VOICE_BASE_URL is required"))
	}
	if c.Voice.APIKey == "" {
		errs = append(errs, errors.New("VOICE_API_KEY is required"))
	}

	if c.Webhook.SigningSecret == "" {
		errs = append(errs, errors.New("WEBHOOK_SIGNING_SECRET is required"))
	}

	for i, step := range c.Poller.BackoffSteps {
		if step <= 0 {
			errs = append(errs, fmt.Errorf("POLL_BACKOFF_STEPS entry %d must be positive", i+1))
		}
	}
	if c.Tasks.WorkspaceCallCap < 0 {
		errs = append(errs, errors.New("TASK_WORKSPACE_CALL_CAP must not be negative"))
	}
	if c.Tasks.MaxAttempts < 0 {
		errs = append(errs, errors.New("TASK_MAX_ATTEMPTS must not be negative"))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

// optionalInt returns 0 for missing or malformed values; callers treat 0 as
// "use the default".
func optionalInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func durationList(key string) ([]time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil, nil
	}
	parts := strings.Split(v, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		d, err := time.ParseDuration(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("%s must be a comma-separated duration list, got %q", key, v)
		}
		out = append(out, d)
	}
	return out, nil
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
