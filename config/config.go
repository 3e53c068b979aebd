package config

import (
	"log"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string `mapstructure:"PORT"`
	SQLiteDB      string `mapstructure:"SQLITE_DB"`
	SessionSecret string `mapstructure:"SESSION_SECRET"`
	MediaDir      string `mapstructure:"MEDIA_DIR"`
	CacheDir      string `mapstructure:"CACHE_DIR"`
	Env           string `mapstructure:"ENV"`
}

func Load() *Config {
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("Config file not found; using environment variables and defaults")
		} else {
			log.Fatalf("Error reading config file: %s", err)
		}
	}

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("SQLITE_DB", "inkpress.db")
	viper.SetDefault("MEDIA_DIR", "media")
	viper.SetDefault("CACHE_DIR", "cache")
	viper.SetDefault("ENV", "development")

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatalf("Unable to decode config into struct, %v", err)
	}

	return &cfg
}
