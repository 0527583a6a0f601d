package configuration

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/taskpulse/pkg/logging"
)

const Production = "production"

var singleton = sync.OnceValue(func() *Configuration {
	c, err := Load([]string{".env", ".env.local"})
	if err != nil {
		panic(err)
	}
	return c
})

// LoadEnv loads the given env files, looking in the working directory first and
// then in the nearest parent directory that holds a go.mod.
func LoadEnv(envFiles []string) (int, error) {
	existingFiles := make([]string, 0, len(envFiles))
	moduleRoot := findModuleRoot()
	for _, file := range envFiles {
		if fs.FileExists(file) {
			existingFiles = append(existingFiles, file)
			continue
		}
		if moduleRoot == "" || filepath.IsAbs(file) {
			continue
		}
		candidate := filepath.Join(moduleRoot, file)
		if fs.FileExists(candidate) {
			existingFiles = append(existingFiles, candidate)
		}
	}

	if len(existingFiles) == 0 {
		return 0, nil
	}

	return len(existingFiles), godotenv.Load(existingFiles...)
}

func findModuleRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if fs.FileExists(filepath.Join(dir, "go.mod")) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

type TaskAPIOptions struct {
	URL     string        `env:"TASK_API_URL" envDefault:"http://localhost:8000"`
	Token   string        `env:"TASK_API_TOKEN"`
	Timeout time.Duration `env:"TASK_API_TIMEOUT" envDefault:"30s"`
}

type PollingOptions struct {
	Interval       time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	FetchTimeout   time.Duration `env:"POLL_FETCH_TIMEOUT" envDefault:"10s"`
	MaxConcurrency int           `env:"POLL_MAX_CONCURRENCY" envDefault:"8"`
}

func (p *PollingOptions) Validate() error {
	if p.Interval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", p.Interval)
	}
	if p.FetchTimeout <= 0 {
		return fmt.Errorf("POLL_FETCH_TIMEOUT must be positive, got %s", p.FetchTimeout)
	}
	if p.MaxConcurrency < 1 {
		return fmt.Errorf("POLL_MAX_CONCURRENCY must be at least 1, got %d", p.MaxConcurrency)
	}
	return nil
}

type LokiOptions struct {
	AppName string `env:"LOKI_APP_NAME" envDefault:"taskpulse"`
	LogPath string `env:"LOG_PATH"`
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"taskpulse"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"true"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

// RateLimitOptions throttle outbound calls to the task service.
type RateLimitOptions struct {
	Enabled  bool   `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RPS      int    `env:"RATE_LIMIT_RPS" envDefault:"50"`
	Storage  string `env:"RATE_LIMIT_STORAGE" envDefault:"memory"` // memory or redis
	RedisURL string `env:"RATE_LIMIT_REDIS_URL"`
}

// Validate checks the rate limit configuration for errors
func (r *RateLimitOptions) Validate() error {
	if r.RPS < 0 {
		return fmt.Errorf("rate limit RPS must be non-negative, got %d", r.RPS)
	}
	if r.RPS > 1000000 {
		return fmt.Errorf("rate limit RPS too high, maximum is 1,000,000, got %d", r.RPS)
	}
	if r.Storage != "memory" && r.Storage != "redis" {
		return fmt.Errorf("rate limit Storage must be 'memory' or 'redis', got '%s'", r.Storage)
	}
	if r.Storage == "redis" && r.RedisURL == "" {
		return fmt.Errorf("rate limit RedisURL is required when Storage is 'redis'")
	}
	return nil
}

type Configuration struct {
	TaskAPI       TaskAPIOptions
	Polling       PollingOptions
	Loki          LokiOptions
	OpenTelemetry OpenTelemetryOptions
	Prometheus    PrometheusOptions
	RateLimit     RateLimitOptions

	// Employees whose report_to_id equals this value are treated as top-level.
	AdminSentinelEmpID string `env:"ADMIN_SENTINEL_EMPID" envDefault:"ADMIN"`
	// Person.ID of the user whose timers are tracked.
	ViewerID int64 `env:"VIEWER_ID" envDefault:"0"`

	ServerPort       int    `env:"PORT" envDefault:"3300"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress    string `env:"-"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	CORSOrigins      string `env:"CORS_ORIGINS" envDefault:"http://localhost:3000"`
	// Outbound and inbound requests carry this header; a uuidv4 is generated when absent.
	RequestIDHeader string `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`

	logFile io.Closer
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	return logging.ParseLevel(c.LogLevel)
}

func (c *Configuration) AllowedOrigins() []string {
	out := make([]string, 0, 2)
	for _, part := range strings.Split(c.CORSOrigins, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func Use() *Configuration {
	return singleton()
}

// Load builds a fresh configuration from the given env files and the process environment.
func Load(envFiles []string) (*Configuration, error) {
	c := &Configuration{}
	if err := c.load(envFiles); err != nil {
		c.Unload()
		return nil, err
	}
	return c, nil
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 && len(envFiles) > 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate limit configuration error: %w", err)
	}
	if err := c.Polling.Validate(); err != nil {
		return fmt.Errorf("polling configuration error: %w", err)
	}
	c.AdminSentinelEmpID = strings.TrimSpace(c.AdminSentinelEmpID)

	if strings.TrimSpace(c.Loki.LogPath) != "" {
		f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.Loki.LogPath)
		if err != nil {
			return err
		}
		c.logFile = f
		c.logger = logger
	} else {
		c.logger = logging.ConsoleLogger(c.LogrusLogLevel())
	}

	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
