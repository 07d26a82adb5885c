package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 汇总整个 drive 服务的配置
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	MySQL         MySQLConfig         `mapstructure:"mysql"`
	Redis         RedisConfig         `mapstructure:"redis"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	AliyunOSS     AliyunOSSConfig     `mapstructure:"aliyun_oss"`
	S3            S3Config            `mapstructure:"s3"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Drive         DriveConfig         `mapstructure:"drive"`
	Log           LogConfig           `mapstructure:"log"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

type MySQLConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

type AliyunOSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"` // 例如: oss-cn-hangzhou.aliyuncs.com
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// JWTConfig 只用于校验外部签发的 token
type JWTConfig struct {
	SecretKey string `mapstructure:"secret_key"`
	Issuer    string `mapstructure:"issuer"`
}

// StorageConfig 选择 blob 后端以及所有 blob I/O 的超时/重试策略
type StorageConfig struct {
	Type          string        `mapstructure:"type"` // local, minio, aliyun_oss, s3
	LocalBasePath string        `mapstructure:"local_base_path"`
	TempDir       string        `mapstructure:"temp_dir"`
	OpTimeout     time.Duration `mapstructure:"op_timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
}

type DriveConfig struct {
	DefaultAllocatedBytes int64         `mapstructure:"default_allocated_bytes"`
	MaxTreeDepth          int           `mapstructure:"max_tree_depth"`
	ArchiveWorkers        int64         `mapstructure:"archive_workers"`
	ListingCacheTTL       time.Duration `mapstructure:"listing_cache_ttl"`
}

type LogConfig struct {
	OutputPath string `mapstructure:"output_path"`
	ErrorPath  string `mapstructure:"error_path"`
	Level      string `mapstructure:"level"`
}

type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

var AppConfig *Config // 全局应用配置实例

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.max_open_conns", 100)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("jwt.issuer", "go-drive")
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_base_path", "./storage/private")
	v.SetDefault("storage.temp_dir", "./storage/tmp")
	v.SetDefault("storage.op_timeout", 30*time.Second)
	v.SetDefault("storage.retry_attempts", 3)
	v.SetDefault("storage.retry_backoff", 200*time.Millisecond)
	v.SetDefault("drive.default_allocated_bytes", int64(5)<<30) // 5GB
	v.SetDefault("drive.max_tree_depth", 10000)
	v.SetDefault("drive.archive_workers", 2)
	v.SetDefault("drive.listing_cache_ttl", 5*time.Minute)
	v.SetDefault("log.output_path", "logs/app.log")
	v.SetDefault("log.error_path", "logs/error.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("elasticsearch.enabled", false)
	v.SetDefault("elasticsearch.index", "drive-nodes")
}

// LoadConfig 加载配置: 默认值 < 配置文件 < 环境变量
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/go-drive/")

	// 例如 GO_DRIVE_STORAGE_TYPE 对应 storage.type
	v.SetEnvPrefix("GO_DRIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		log.Println("Warning: config file not found, using environment variables and defaults.")
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	AppConfig = cfg
	return cfg, nil
}

// Validate 检查会导致引擎行为错误的配置
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "local", "minio", "aliyun_oss", "s3":
	default:
		return errors.New("config: unknown storage.type " + c.Storage.Type)
	}
	if c.Drive.MaxTreeDepth <= 0 {
		return errors.New("config: drive.max_tree_depth must be positive")
	}
	if c.Drive.ArchiveWorkers <= 0 {
		return errors.New("config: drive.archive_workers must be positive")
	}
	if c.Storage.RetryAttempts < 1 {
		return errors.New("config: storage.retry_attempts must be at least 1")
	}
	return nil
}
