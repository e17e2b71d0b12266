package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	Server   ServerConfig
	S3       S3Config
	Telegram TelegramConfig
	App      AppConfig
	Proxy    ProxyConfig
}

type ServerConfig struct {
	Host string
	Port string
}

type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
	Region          string
	PublicBaseURL   string
}

type TelegramConfig struct {
	APIURL   string
	BotToken string
	ChatID   string
	Timeout  time.Duration
}

type AppConfig struct {
	SQLitePath        string
	MaxUploadSize     int64
	CompressThreshold int64
	CompressMaxWidth  int
	CompressQuality   int
	SendInterval      time.Duration
	HistoryLimit      int
}

type ProxyConfig struct {
	AllowedHosts []string
	MaxBytes     int64
	Timeout      time.Duration
}

func Load(log *zap.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found")
	}

	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("S3_ENDPOINT", "")
	viper.SetDefault("S3_ACCESS_KEY_ID", "")
	viper.SetDefault("S3_SECRET_ACCESS_KEY", "")
	viper.SetDefault("S3_USE_SSL", true)
	viper.SetDefault("S3_BUCKET_NAME", "images")
	viper.SetDefault("S3_REGION", "us-east-1")
	viper.SetDefault("S3_PUBLIC_BASE_URL", "")
	viper.SetDefault("TELEGRAM_API_URL", "https://api.telegram.org")
	viper.SetDefault("TELEGRAM_BOT_TOKEN", "")
	viper.SetDefault("TELEGRAM_CHAT_ID", "")
	viper.SetDefault("TELEGRAM_TIMEOUT", "10s")
	viper.SetDefault("SQLITE_PATH", "./data/supaimage.db")
	viper.SetDefault("APP_MAX_UPLOAD_SIZE", 10*1024*1024) // 10MB
	viper.SetDefault("APP_COMPRESS_THRESHOLD", 70*1024)   // 70KiB
	viper.SetDefault("APP_COMPRESS_MAX_WIDTH", 1280)
	viper.SetDefault("APP_COMPRESS_QUALITY", 60)
	viper.SetDefault("APP_SEND_INTERVAL", "1s")
	viper.SetDefault("APP_HISTORY_LIMIT", 50)
	viper.SetDefault("PROXY_ALLOWED_HOSTS", []string{})
	viper.SetDefault("PROXY_MAX_BYTES", 10*1024*1024)
	viper.SetDefault("PROXY_TIMEOUT", "15s")

	viper.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("SERVER_HOST"),
			Port: viper.GetString("SERVER_PORT"),
		},
		S3: S3Config{
			Endpoint:        viper.GetString("S3_ENDPOINT"),
			AccessKeyID:     viper.GetString("S3_ACCESS_KEY_ID"),
			SecretAccessKey: viper.GetString("S3_SECRET_ACCESS_KEY"),
			UseSSL:          viper.GetBool("S3_USE_SSL"),
			BucketName:      viper.GetString("S3_BUCKET_NAME"),
			Region:          viper.GetString("S3_REGION"),
			PublicBaseURL:   viper.GetString("S3_PUBLIC_BASE_URL"),
		},
		Telegram: TelegramConfig{
			APIURL:   viper.GetString("TELEGRAM_API_URL"),
			BotToken: viper.GetString("TELEGRAM_BOT_TOKEN"),
			ChatID:   viper.GetString("TELEGRAM_CHAT_ID"),
			Timeout:  viper.GetDuration("TELEGRAM_TIMEOUT"),
		},
		App: AppConfig{
			SQLitePath:        viper.GetString("SQLITE_PATH"),
			MaxUploadSize:     viper.GetInt64("APP_MAX_UPLOAD_SIZE"),
			CompressThreshold: viper.GetInt64("APP_COMPRESS_THRESHOLD"),
			CompressMaxWidth:  viper.GetInt("APP_COMPRESS_MAX_WIDTH"),
			CompressQuality:   viper.GetInt("APP_COMPRESS_QUALITY"),
			SendInterval:      viper.GetDuration("APP_SEND_INTERVAL"),
			HistoryLimit:      viper.GetInt("APP_HISTORY_LIMIT"),
		},
		Proxy: ProxyConfig{
			AllowedHosts: viper.GetStringSlice("PROXY_ALLOWED_HOSTS"),
			MaxBytes:     viper.GetInt64("PROXY_MAX_BYTES"),
			Timeout:      viper.GetDuration("PROXY_TIMEOUT"),
		},
	}

	if dir := filepath.Dir(cfg.App.SQLitePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
		}
	}

	return cfg, nil
}
