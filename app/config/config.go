package config

import (
	"fmt"
	"log"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Overseerr OverseerrConfig `mapstructure:"overseerr"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Bot       BotConfig       `mapstructure:"bot"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`      // json 或 text
	Output     string `mapstructure:"output"`      // stdout 或 file
	MaxSize    int    `mapstructure:"max_size"`    // 兆字节
	MaxBackups int    `mapstructure:"max_backups"` // 备份数量
	MaxAge     int    `mapstructure:"max_age"`     // 天数
	Compress   bool   `mapstructure:"compress"`    // 是否压缩旧文件
}

type OverseerrConfig struct {
	URL    string `mapstructure:"url"`     // 可带或不带 /api/v1 后缀
	APIKey string `mapstructure:"api_key"`
}

type TelegramConfig struct {
	Token       string `mapstructure:"token"`
	PollTimeout int    `mapstructure:"poll_timeout"` // getUpdates 长轮询秒数
}

// BotConfig 机器人运行配置，按请求读取，不使用全局可变模式枚举
type BotConfig struct {
	Mode            string  `mapstructure:"mode"` // normal、api 或 shared
	GroupMode       bool    `mapstructure:"group_mode"`
	PrimaryChatID   int64   `mapstructure:"primary_chat_id"`
	PrimaryThreadID int     `mapstructure:"primary_thread_id"`
	PasswordHash    string  `mapstructure:"password_hash"` // bcrypt 哈希，空则关闭口令授权
	Admins          []int64 `mapstructure:"admins"`
}

type MonitorConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"` // cron 表达式
}

func Load() *Config {
	setDefaults()

	// 读取配置
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("未找到配置文件，使用默认配置")
		} else {
			log.Fatalf("读取配置文件出错: %v", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("无法解码配置: %v", err)
	}

	// 验证配置
	if err := validateConfig(&config); err != nil {
		log.Fatalf("配置验证失败: %v", err)
	}

	return &config
}

// setDefaults 设置默认配置
func setDefaults() {
	viper.SetDefault("server.port", "5000")

	// 日志默认配置
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	// Telegram 默认配置
	viper.SetDefault("telegram.poll_timeout", 30)

	// 机器人默认配置
	viper.SetDefault("bot.mode", "api")
	viper.SetDefault("bot.group_mode", false)

	// 状态监控默认配置
	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.schedule", "@every 5m")
}

// validateConfig 验证配置的有效性
func validateConfig(config *Config) error {
	if config.Telegram.Token == "" {
		return fmt.Errorf("telegram token 未设置")
	}
	if config.Overseerr.URL == "" {
		return fmt.Errorf("overseerr url 未设置")
	}
	switch config.Bot.Mode {
	case "normal", "api", "shared":
	default:
		return fmt.Errorf("无效的运行模式: %s", config.Bot.Mode)
	}
	if config.Bot.Mode == "api" && config.Overseerr.APIKey == "" {
		return fmt.Errorf("api 模式需要设置 overseerr api_key")
	}
	return nil
}
