/**
 * @description
 * This file handles configuration management for the Needix backend.
 * It loads settings from environment variables, providing defaults for the
 * dispatch schedule and tolerances.
 */
package config

import (
	"errors"

	"github.com/spf13/viper"
)

// Config holds all configuration for the API server and the scheduler.
type Config struct {
	DatabaseURL      string `mapstructure:"DATABASE_URL"`
	RedisURL         string `mapstructure:"REDIS_URL"`
	RabbitMQURL      string `mapstructure:"RABBITMQ_URL"`
	ServerPort       string `mapstructure:"SERVER_PORT"`
	JWTSecret        string `mapstructure:"JWT_SECRET"`
	VAPIDPublicKey   string `mapstructure:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey  string `mapstructure:"VAPID_PRIVATE_KEY"`
	VAPIDSubject     string `mapstructure:"VAPID_SUBJECT"`
	DispatchSchedule string `mapstructure:"DISPATCH_SCHEDULE"`
	ToleranceMinutes int    `mapstructure:"DISPATCH_TOLERANCE_MINUTES"`
	TransactionLimit int    `mapstructure:"DETECT_TRANSACTION_LIMIT"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("DISPATCH_SCHEDULE", "*/5 * * * *")       // Every 5 minutes.
	viper.SetDefault("DISPATCH_TOLERANCE_MINUTES", 5)          // "Due now" window.
	viper.SetDefault("DETECT_TRANSACTION_LIMIT", 200)          // Most recent txns per user.
	viper.SetDefault("VAPID_SUBJECT", "mailto:ops@needix.app") // VAPID contact.
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("VAPID_PUBLIC_KEY")
	_ = viper.BindEnv("VAPID_PRIVATE_KEY")
	_ = viper.BindEnv("VAPID_SUBJECT")
	_ = viper.BindEnv("DISPATCH_SCHEDULE")
	_ = viper.BindEnv("DISPATCH_TOLERANCE_MINUTES")
	_ = viper.BindEnv("DETECT_TRANSACTION_LIMIT")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	// VAPID keys come as a pair; one without the other is a misconfiguration.
	if (config.VAPIDPublicKey == "") != (config.VAPIDPrivateKey == "") {
		return nil, errors.New("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must both be set")
	}

	return &config, nil
}
