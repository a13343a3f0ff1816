// Command phoneauth-otpd runs the standalone OTP dispatch service used
// by the server-dispatch provider path. It issues codes on POST
// /send-otp and verifies them on POST /verify-otp, backed by Redis.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/stayhq/phoneauth/serverdispatch"
)

type serverCfg struct {
	Addr                string `mapstructure:"addr"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
}

type redisCfg struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type otpCfg struct {
	Digits             int    `mapstructure:"digits"`
	CodeTTLMinutes     int    `mapstructure:"code_ttl_minutes"`
	MaxAttempts        int    `mapstructure:"max_attempts"`
	DefaultCountryCode string `mapstructure:"default_country_code"`
}

type smsCfg struct {
	// WebhookURL receives {"phone_number","message"} posts. Empty means
	// codes are logged instead of delivered, for development setups.
	WebhookURL string `mapstructure:"webhook_url"`
	APIKey     string `mapstructure:"api_key"`
}

type config struct {
	Server serverCfg `mapstructure:"server"`
	Redis  redisCfg  `mapstructure:"redis"`
	OTP    otpCfg    `mapstructure:"otp"`
	SMS    smsCfg    `mapstructure:"sms"`
}

func loadConfig(path string) (*config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvPrefix("OTPD")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8087"
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 15
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 15
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "127.0.0.1:6379"
	}
	return &cfg, nil
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	configPath := "otpd.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("config load failed")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable")
	}

	store, err := serverdispatch.NewStore(redisClient, serverdispatch.StoreConfig{
		Prefix:      cfg.Redis.Prefix,
		CodeTTL:     time.Duration(cfg.OTP.CodeTTLMinutes) * time.Minute,
		MaxAttempts: cfg.OTP.MaxAttempts,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}

	sender := newSender(cfg.SMS, log)

	svc, err := serverdispatch.NewServer(store, sender, serverdispatch.ServerConfig{
		OTPDigits:          cfg.OTP.Digits,
		DefaultCountryCode: cfg.OTP.DefaultCountryCode,
		Logger:             log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("service init failed")
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      svc.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("otp dispatch service listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-done
	log.Info().Msg("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown incomplete")
	}
}

// newSender picks webhook delivery when configured, log delivery
// otherwise.
func newSender(cfg smsCfg, log zerolog.Logger) serverdispatch.Sender {
	if cfg.WebhookURL == "" {
		return logSender{log: log}
	}
	client := resty.New().SetBaseURL(cfg.WebhookURL)
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return webhookSender{client: client}
}

type logSender struct {
	log zerolog.Logger
}

func (s logSender) Send(_ context.Context, phoneNumber, code string) error {
	s.log.Info().Str("phone", phoneNumber).Str("code", code).Msg("sms (log delivery)")
	return nil
}

type webhookSender struct {
	client *resty.Client
}

func (s webhookSender) Send(ctx context.Context, phoneNumber, code string) error {
	res, err := s.client.NewRequest().
		SetContext(ctx).
		SetBody(map[string]string{
			"phone_number": phoneNumber,
			"message":      fmt.Sprintf("Your verification code is %s", code),
		}).
		Post("")
	if err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("sms webhook status %d", res.StatusCode())
	}
	return nil
}
