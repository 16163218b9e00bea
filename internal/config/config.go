package config

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v2"
)

// Config 应用程序配置结构
type Config struct {
	Database Database `yaml:"database" validate:"required"`
	Telegram Telegram `yaml:"telegram"`
	API      API      `yaml:"api" validate:"required"`
	App      App      `yaml:"app" validate:"required"`
}

// Database 数据库配置
type Database struct {
	Driver          string        `yaml:"driver" validate:"required,oneof=mysql sqlite"`
	Host            string        `yaml:"host" validate:"required_if=Driver mysql"`
	Port            int           `yaml:"port" validate:"required_if=Driver mysql,max=65535"`
	Username        string        `yaml:"username" validate:"required_if=Driver mysql"`
	Database        string        `yaml:"database" validate:"required_if=Driver mysql"`
	Password        string        `yaml:"password"`
	Path            string        `yaml:"path" validate:"required_if=Driver sqlite"`
	MaxOpenConns    int           `yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// Telegram Bot配置
type Telegram struct {
	Enabled bool          `yaml:"enabled"`
	Token   string        `yaml:"token" validate:"required_if=Enabled true"`
	Timeout time.Duration `yaml:"timeout"`
	ChatIDs []int64       `yaml:"chat_ids"`
}

// API 开奖结果接口配置
type API struct {
	URL           string        `yaml:"url" validate:"required,url"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryCount    int           `yaml:"retry_count" validate:"gte=0"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	RatePerSecond float64       `yaml:"rate_per_second" validate:"gte=0"`
}

// App 应用程序配置
type App struct {
	LogLevel    string        `yaml:"log_level" validate:"loglevel"`
	LogFormat   string        `yaml:"log_format" validate:"omitempty,oneof=text json"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	Schedule    string        `yaml:"schedule" validate:"cron"`
	Timezone    string        `yaml:"timezone"`
	MetricsAddr string        `yaml:"metrics_addr"`
	HistoryLog  bool          `yaml:"history_log"`
	ImportLimit int           `yaml:"import_limit" validate:"gte=0"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	// .env 文件可选
	_ = godotenv.Load()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse 解析YAML配置，展开 ${VAR} 环境变量并应用默认值
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = time.Hour
	}
	if c.Telegram.Timeout == 0 {
		c.Telegram.Timeout = 60 * time.Second
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = 10 * time.Second
	}
	if c.API.RetryDelay == 0 {
		c.API.RetryDelay = 2 * time.Second
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.LogFormat == "" {
		c.App.LogFormat = "text"
	}
	if c.App.CacheTTL == 0 {
		c.App.CacheTTL = 10 * time.Minute
	}
	// 开奖日 16:00 (曼谷时间) 之后拉取结果
	if c.App.Schedule == "" {
		c.App.Schedule = "30 16 1,16 * *"
	}
	if c.App.Timezone == "" {
		c.App.Timezone = "Asia/Bangkok"
	}
	if c.App.ImportLimit == 0 {
		c.App.ImportLimit = 500
	}
}

// Validate 校验配置
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.RegisterValidation("loglevel", validateLogLevel); err != nil {
		return fmt.Errorf("failed to register loglevel validation: %w", err)
	}
	if err := v.RegisterValidation("cron", validateCron); err != nil {
		return fmt.Errorf("failed to register cron validation: %w", err)
	}

	if err := v.Struct(cfg); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			return formatValidationErrors(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}

	if _, err := time.LoadLocation(cfg.App.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.App.Timezone, err)
	}
	return nil
}

// Location 返回开奖时区
func (a *App) Location() *time.Location {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetDSN 获取数据库连接字符串
func (d *Database) GetDSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.Username, d.Password, d.Host, d.Port, d.Database)
}

func validateLogLevel(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func validateCron(fl validator.FieldLevel) bool {
	_, err := cron.ParseStandard(fl.Field().String())
	return err == nil
}

func formatValidationErrors(errs validator.ValidationErrors) error {
	msg := "config validation failed:"
	for _, e := range errs {
		msg += fmt.Sprintf(" %s (%s=%s);", e.Namespace(), e.Tag(), e.Param())
	}
	return fmt.Errorf("%s", msg)
}
