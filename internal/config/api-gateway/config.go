package api_gateway_config

import (
	"time"

	"github.com/NordCoder/Tokengate/internal/identity/google"
	"github.com/NordCoder/Tokengate/internal/obs"
	"github.com/NordCoder/Tokengate/internal/outbox"
	pg "github.com/NordCoder/Tokengate/internal/repository/postgres"
	"github.com/NordCoder/Tokengate/internal/services/api-gateway/auth"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

func (oc *OTEL) AsOTELConfig() *obs.OTELConfig {
	return &obs.OTELConfig{
		Enable:      oc.Enable,
		Endpoint:    oc.OTLPEndpoint,
		ServiceName: oc.ServiceName,
		SampleRatio: oc.SampleRatio,
	}
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func (lc *Log) AsLoggerConfig(app App) *obs.LogConfig {
	return &obs.LogConfig{
		Level:  lc.Level,
		Pretty: lc.Pretty,
		App:    "tokengate/" + app.Name,
		Env:    app.Env,
		Ver:    app.Version,
	}
}

type Auth struct {
	JWTSecret    string        `mapstructure:"jwt_secret"`
	TTL          time.Duration `mapstructure:"ttl"`
	SubjectClaim string        `mapstructure:"subject_claim"`
	FutureLeeway time.Duration `mapstructure:"future_leeway"`
}

type Storage struct {
	// Driver is "postgres" or "memory".
	Driver string `mapstructure:"driver"`
}

type Kafka struct {
	Enable     bool     `mapstructure:"enable"`
	Brokers    []string `mapstructure:"brokers"`
	Topic      string   `mapstructure:"topic"`
	Partitions int      `mapstructure:"partitions"`
}

type Config struct {
	App       App                  `mapstructure:"app"`
	Server    Server               `mapstructure:"server"`
	Storage   Storage              `mapstructure:"storage"`
	DB        pg.Config            `mapstructure:"db"`
	Kafka     Kafka                `mapstructure:"kafka"`
	Outbox    outbox.Config        `mapstructure:"outbox"`
	Identity  google.Config        `mapstructure:"identity"`
	OTEL      OTEL                 `mapstructure:"otel"`
	Log       Log                  `mapstructure:"log"`
	Auth      Auth                 `mapstructure:"auth"`
	RateLimit auth.RateLimitConfig `mapstructure:"ratelimit"`
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
