package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration

	// StructuredPayload reports whether the store accepts raw provider
	// payloads as a JSON column. Resolved here once; repositories never
	// inspect the database vendor themselves.
	StructuredPayload bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	Group    string
	Consumer string
}

type QueueConfig struct {
	ClaimInterval time.Duration
}

type MirrorConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

type ProviderConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

type ClarifaiConfig struct {
	ProviderConfig `mapstructure:",squash"`
	Locales        []string
}

type CraftarConfig struct {
	Endpoint      string
	TokenEndpoint string
	APIKey        string
	Timeout       time.Duration
	TokenTTL      time.Duration
}

type ProvidersConfig struct {
	Vision    ProviderConfig
	Cognitive ProviderConfig
	Craftar   CraftarConfig
	Clarifai  ClarifaiConfig
}

type AnalysisConfig struct {
	StatusTTL         time.Duration
	ByteCacheTTL      time.Duration
	FetchTimeout      time.Duration
	ReanalyzeInterval time.Duration
}

type NotifyPolicy string

const (
	// NotifyPerProvider fires a push for every provider whose merge
	// succeeds, matching the historical behavior.
	NotifyPerProvider NotifyPolicy = "per_provider"
	// NotifyPerJob dedupes triggers so one dispatch sends at most one push.
	NotifyPerJob NotifyPolicy = "per_job"
)

type NotifyConfig struct {
	Endpoint string
	AppID    string
	AuthKey  string
	Timeout  time.Duration
	Policy   NotifyPolicy
}

type AppConfig struct {
	Environment      string
	AllowCORSOrigins []string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Queue            QueueConfig
	Mirror           MirrorConfig
	Providers        ProvidersConfig
	Analysis         AnalysisConfig
	Notify           NotifyConfig
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("ANYSNAP")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("allowcorsorigins", []string{"*"})

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")
	v.SetDefault("postgres.structuredpayload", true)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "analysis:jobs")
	v.SetDefault("redis.group", "analysis-workers")
	v.SetDefault("redis.consumer", "worker-1")

	v.SetDefault("queue.claiminterval", "10s")

	v.SetDefault("mirror.bucket", "anysnap-results")
	v.SetDefault("mirror.usessl", false)
	v.SetDefault("mirror.region", "us-east-1")

	v.SetDefault("providers.vision.endpoint", "https://vision.googleapis.com/v1/images:annotate")
	v.SetDefault("providers.vision.timeout", "15s")
	v.SetDefault("providers.cognitive.endpoint", "https://api.projectoxford.ai/vision/v1.0/analyze")
	v.SetDefault("providers.cognitive.timeout", "15s")
	v.SetDefault("providers.craftar.endpoint", "https://search.craftar.net/v1/search")
	v.SetDefault("providers.craftar.timeout", "20s")
	v.SetDefault("providers.craftar.tokenttl", "1h")
	v.SetDefault("providers.clarifai.endpoint", "https://api.clarifai.com/v2/models/general-image-recognition/outputs")
	v.SetDefault("providers.clarifai.timeout", "15s")
	v.SetDefault("providers.clarifai.locales", []string{"en"})

	v.SetDefault("analysis.statusttl", "5m")
	v.SetDefault("analysis.bytecachettl", "2m")
	v.SetDefault("analysis.fetchtimeout", "10s")
	v.SetDefault("analysis.reanalyzeinterval", "168h")

	v.SetDefault("notify.endpoint", "https://onesignal.com/api/v1/notifications")
	v.SetDefault("notify.timeout", "10s")
	v.SetDefault("notify.policy", string(NotifyPerProvider))
}
