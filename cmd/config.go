package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jbatonnet/Rboard/internal/config"
	"github.com/jbatonnet/Rboard/types"
)

// GlobalAppConfig holds the global application configuration instance.
var GlobalAppConfig types.AppConfig

// configErr is the error InitConfig met, returned to the commands that need
// a configuration.
var configErr error

// validate is a single instance of Validate, it caches struct info
var validate = validator.New()

// validateAppConfig performs validation on the AppConfig struct.
func validateAppConfig(cfg *types.AppConfig) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// InitConfig reads in config file and ENV variables if set.
func InitConfig() {
	// It's okay if .env file doesn't exist.
	_ = godotenv.Load()

	viper.SetEnvPrefix(config.EnvPrefix)                   // e.g., RBOARD_SERVER_PORT
	viper.AutomaticEnv()                                   // Read in environment variables that match
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // Replace dots with underscores in env var names

	for key, value := range config.Defaults() {
		viper.SetDefault(key, value)
	}

	cfgFileFlag := viper.GetString("config")
	if cfgFileFlag != "" {
		viper.SetConfigFile(cfgFileFlag)
	} else {
		viper.SetConfigName(config.ConfigName)
		viper.AddConfigPath(".")
		if dir, err := config.GetGlobalConfigDir(); err == nil {
			viper.AddConfigPath(dir)
		}
	}

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	} else {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFileFlag != "" {
			configErr = fmt.Errorf("read config file %s: %w", viper.ConfigFileUsed(), err)
			return
		}
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "No config file found. Using defaults and environment variables.")
		}
	}

	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		configErr = err
		return
	}
	GlobalAppConfig = cfg
}

// loadConfig unmarshals and validates the configuration held by v. The
// reports directory is relative to the config file, the archives directory
// relative to the reports directory.
func loadConfig(v *viper.Viper) (types.AppConfig, error) {
	var cfg types.AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}

	base := ""
	if used := v.ConfigFileUsed(); used != "" {
		base = filepath.Dir(used)
	}
	cfg.Rboard.ReportsDirectory = config.ResolveDir(base, cfg.Rboard.ReportsDirectory)
	cfg.Rboard.ArchivesDirectory = config.ResolveDir(cfg.Rboard.ReportsDirectory, cfg.Rboard.ArchivesDirectory)
	if cfg.Server.AssetsDir != "" {
		cfg.Server.AssetsDir = config.ResolveDir(base, cfg.Server.AssetsDir)
	}

	if err := validateAppConfig(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// reloadConfig re-reads the configuration file.
func reloadConfig() (types.AppConfig, error) {
	if err := viper.ReadInConfig(); err != nil {
		return types.AppConfig{}, fmt.Errorf("read config file: %w", err)
	}
	return loadConfig(viper.GetViper())
}

// GetConfig returns the loaded configuration, or the error met loading it.
func GetConfig() (*types.AppConfig, error) {
	if configErr != nil {
		return nil, configErr
	}
	return &GlobalAppConfig, nil
}
