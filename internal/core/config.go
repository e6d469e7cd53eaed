package core

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"github.com/studiobloom/Reflow/internal/models"
)

// AppConfig 应用程序配置
type AppConfig struct {
	Export  ExportSection  `mapstructure:"export"`
	Logging LoggingConfig  `mapstructure:"logging"`
	Output  OutputSection  `mapstructure:"output"`
}

// ExportSection 配置文件中的导出段
type ExportSection struct {
	Workers            int     `mapstructure:"workers"`
	Delay              float64 `mapstructure:"delay"`
	Timeout            int     `mapstructure:"timeout"`
	MaxDepth           int     `mapstructure:"max_depth"`
	FollowCollections  bool    `mapstructure:"follow_collections"`
	RewriteStylesheets bool    `mapstructure:"rewrite_stylesheets"`
	ZipOutput          bool    `mapstructure:"zip_output"`
	RespectRobots      bool    `mapstructure:"respect_robots"`
	UserAgent          string  `mapstructure:"user_agent"`
	MergePolicy        string  `mapstructure:"merge_policy"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// OutputSection 输出配置
type OutputSection struct {
	BaseDir          string `mapstructure:"base_dir"`
	DomainSeparation bool   `mapstructure:"domain_separation"`
}

// LoadConfig 加载配置文件
// configPath为空时搜索默认位置: ./configs、当前目录、~/.reflow
// 配置文件不存在不是错误,回退到默认值
func LoadConfig(configPath string) (*AppConfig, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		v.AddConfigPath("./configs")
		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".reflow"))
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, &models.ConfigError{FilePath: v.ConfigFileUsed(), Cause: err}
		}
		// 配置文件不存在,使用默认值
	}

	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, &models.ConfigError{
			FilePath: v.ConfigFileUsed(),
			Cause:    fmt.Errorf("解析配置文件失败: %w", err),
		}
	}

	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 导出配置默认值
	v.SetDefault("export.workers", 5)
	v.SetDefault("export.delay", 0.2)
	v.SetDefault("export.timeout", 30)
	v.SetDefault("export.max_depth", 0)
	v.SetDefault("export.follow_collections", true)
	v.SetDefault("export.rewrite_stylesheets", true)
	v.SetDefault("export.zip_output", true)
	v.SetDefault("export.respect_robots", false)
	v.SetDefault("export.merge_policy", string(models.MergeMostComplete))

	// 日志配置默认值
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	// 输出配置默认值
	v.SetDefault("output.base_dir", "output")
	v.SetDefault("output.domain_separation", true)
}

// ExportConfig 从配置段构建导出配置
func (c *AppConfig) ExportConfig() models.ExportConfig {
	cfg := models.DefaultExportConfig()
	if c.Export.Workers > 0 {
		cfg.Workers = c.Export.Workers
	}
	if c.Export.Delay >= 0 {
		cfg.Delay = c.Export.Delay
	}
	if c.Export.Timeout > 0 {
		cfg.Timeout = c.Export.Timeout
	}
	cfg.MaxDepth = c.Export.MaxDepth
	cfg.FollowCollections = c.Export.FollowCollections
	cfg.RewriteStylesheets = c.Export.RewriteStylesheets
	cfg.ZipOutput = c.Export.ZipOutput
	cfg.RespectRobots = c.Export.RespectRobots
	cfg.UserAgent = c.Export.UserAgent
	if c.Export.MergePolicy != "" {
		cfg.MergePolicy = models.MergePolicy(c.Export.MergePolicy)
	}
	return cfg
}
