package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the intake processes.
// All values come from env (or an env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Twilio TwilioConfig
	LLM    LLMConfig
	Speech SpeechConfig
	Intake IntakeConfig
}

type AppConfig struct {
	Env  string
	Port int

	// WorkerEnabled runs the job pool inside the API process.
	WorkerEnabled bool

	// CORSOrigins lists staff dashboard origins allowed to call /v1. Empty disables CORS.
	CORSOrigins []string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string

	// FromNumber is the sender used for outbound replies, e.g. "whatsapp:+60111111111".
	FromNumber string

	// WebhookBaseURL is the public URL Twilio signs; signature checks are skipped when empty.
	WebhookBaseURL string
}

type LLMConfig struct {
	BaseURL        string
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	Timeout        time.Duration
}

type SpeechConfig struct {
	// Enabled turns on Google Cloud Speech transcription of voice notes.
	Enabled         bool
	CredentialsFile string
	LanguageCode    string
}

// IntakeConfig carries the conversation engine tunables.
type IntakeConfig struct {
	ThrottleWindow    time.Duration
	ThrottleSoftLimit int
	ThrottleHardLimit int
	ThrottleBlockFor  time.Duration

	SessionTimeout time.Duration
	LockLease      time.Duration

	WorkerConcurrency  int
	WorkerPollInterval time.Duration

	SimilarityThreshold     float64
	ClassifierMinConfidence float64
	DefaultDiagnosisFee     int64
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
	c.App.WorkerEnabled = optionalBool("WORKER_ENABLED", true)
	c.App.CORSOrigins = optionalList("CORS_ALLOWED_ORIGINS")

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
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.FromNumber = strings.TrimSpace(os.Getenv("TWILIO_FROM_NUMBER"))
	c.Twilio.WebhookBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("TWILIO_WEBHOOK_BASE_URL")), "/")

	c.LLM.BaseURL = strings.TrimSpace(os.Getenv("LLM_BASE_URL"))
	c.LLM.APIKey = os.Getenv("LLM_API_KEY")
	c.LLM.ChatModel = strings.TrimSpace(os.Getenv("LLM_CHAT_MODEL"))
	c.LLM.EmbeddingModel = strings.TrimSpace(os.Getenv("LLM_EMBEDDING_MODEL"))
	c.LLM.Timeout = mustDuration("LLM_TIMEOUT")

	c.Speech.Enabled = optionalBool("SPEECH_ENABLED", false)
	c.Speech.CredentialsFile = strings.TrimSpace(os.Getenv("SPEECH_CREDENTIALS_FILE"))
	c.Speech.LanguageCode = strings.TrimSpace(os.Getenv("SPEECH_LANGUAGE_CODE"))

	// Intake tunables are optional; defaults applied in Validate().
	c.Intake.ThrottleWindow = mustDuration("INTAKE_THROTTLE_WINDOW")
	c.Intake.ThrottleSoftLimit = optionalInt("INTAKE_THROTTLE_SOFT_LIMIT")
	c.Intake.ThrottleHardLimit = optionalInt("INTAKE_THROTTLE_HARD_LIMIT")
	c.Intake.ThrottleBlockFor = mustDuration("INTAKE_THROTTLE_BLOCK_FOR")
	c.Intake.SessionTimeout = mustDuration("INTAKE_SESSION_TIMEOUT")
	c.Intake.LockLease = mustDuration("INTAKE_LOCK_LEASE")
	c.Intake.WorkerConcurrency = optionalInt("INTAKE_WORKER_CONCURRENCY")
	c.Intake.WorkerPollInterval = mustDuration("INTAKE_WORKER_POLL_INTERVAL")
	c.Intake.SimilarityThreshold = optionalFloat("INTAKE_SIMILARITY_THRESHOLD")
	c.Intake.ClassifierMinConfidence = optionalFloat("INTAKE_CLASSIFIER_MIN_CONFIDENCE")
	c.Intake.DefaultDiagnosisFee = int64(optionalInt("INTAKE_DIAGNOSIS_FEE"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults in place.
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
		if c.Twilio.AuthToken == "" {
			errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if c.LLM.ChatModel == "" {
		c.LLM.ChatModel = "gpt-4o-mini"
	}
	if c.LLM.EmbeddingModel == "" {
		c.LLM.EmbeddingModel = "text-embedding-3-small"
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 15 * time.Second
	}

	if c.Speech.LanguageCode == "" {
		c.Speech.LanguageCode = "en-US"
	}

	errs = append(errs, c.Intake.applyDefaults()...)

	return joinErrors(errs)
}

func (ic *IntakeConfig) applyDefaults() []error {
	var errs []error
	if ic.ThrottleWindow <= 0 {
		ic.ThrottleWindow = 60 * time.Second
	}
	if ic.ThrottleSoftLimit <= 0 {
		ic.ThrottleSoftLimit = 5
	}
	if ic.ThrottleHardLimit <= 0 {
		ic.ThrottleHardLimit = 8
	}
	if ic.ThrottleSoftLimit >= ic.ThrottleHardLimit {
		errs = append(errs, fmt.Errorf("INTAKE_THROTTLE_SOFT_LIMIT (%d) must be below INTAKE_THROTTLE_HARD_LIMIT (%d)", ic.ThrottleSoftLimit, ic.ThrottleHardLimit))
	}
	if ic.ThrottleBlockFor <= 0 {
		ic.ThrottleBlockFor = 5 * time.Minute
	}
	if ic.SessionTimeout <= 0 {
		ic.SessionTimeout = 24 * time.Hour
	}
	if ic.LockLease <= 0 {
		ic.LockLease = 30 * time.Second
	}
	if ic.WorkerConcurrency <= 0 {
		ic.WorkerConcurrency = 4
	}
	if ic.WorkerPollInterval <= 0 {
		ic.WorkerPollInterval = time.Second
	}
	if ic.SimilarityThreshold <= 0 {
		ic.SimilarityThreshold = 0.85
	}
	if ic.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("INTAKE_SIMILARITY_THRESHOLD must be within (0,1], got %v", ic.SimilarityThreshold))
	}
	if ic.ClassifierMinConfidence <= 0 {
		ic.ClassifierMinConfidence = 0.7
	}
	if ic.DefaultDiagnosisFee <= 0 {
		ic.DefaultDiagnosisFee = 30
	}
	return errs
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

func optionalFloat(key string) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

func optionalList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func optionalBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
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
