package config

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// Server settings
	ServerAddr     string
	AllowedOrigins []string

	// Database
	DatabasePath string
	StoreTimeout time.Duration

	// Moderation
	AdminIDs []int

	// Feed settings
	MaxContentLength int
	PostsPerPage     int
	MaxPageSize      int
	TopUsersLimit    int
	UserPostsLimit   int

	// Notification retention sweep
	NotificationRetention time.Duration
	NotificationSweep     string
}

var defaults = map[string]interface{}{
	"SERVER_ADDR":            ":8080",
	"ALLOWED_ORIGINS":        "",
	"DATABASE_PATH":          "./data/feed.db",
	"STORE_TIMEOUT":          "5s",
	"ADMIN_IDS":              "",
	"MAX_CONTENT_LENGTH":     500,
	"POSTS_PER_PAGE":         10,
	"MAX_PAGE_SIZE":          100,
	"TOP_USERS_LIMIT":        10,
	"USER_POSTS_LIMIT":       10,
	"NOTIFICATION_RETENTION": "720h",
	"NOTIFICATION_SWEEP":     "@hourly",
}

// Load reads configuration from the environment, after loading an optional
// .env file from the working directory
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found, using environment only")
	}
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()
	return v
}

// FromViper builds a Config from an already populated viper instance
func FromViper(v *viper.Viper) (*Config, error) {
	admins, err := parseIDs(v.GetString("ADMIN_IDS"))
	if err != nil {
		return nil, fmt.Errorf("ADMIN_IDS: %w", err)
	}

	storeTimeout, err := duration(v, "STORE_TIMEOUT")
	if err != nil {
		return nil, err
	}
	retention, err := duration(v, "NOTIFICATION_RETENTION")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerAddr:     v.GetString("SERVER_ADDR"),
		AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),

		DatabasePath: v.GetString("DATABASE_PATH"),
		StoreTimeout: storeTimeout,

		AdminIDs: admins,

		MaxContentLength: v.GetInt("MAX_CONTENT_LENGTH"),
		PostsPerPage:     v.GetInt("POSTS_PER_PAGE"),
		MaxPageSize:      v.GetInt("MAX_PAGE_SIZE"),
		TopUsersLimit:    v.GetInt("TOP_USERS_LIMIT"),
		UserPostsLimit:   v.GetInt("USER_POSTS_LIMIT"),

		NotificationRetention: retention,
		NotificationSweep:     v.GetString("NOTIFICATION_SWEEP"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot run with
func (c *Config) Validate() error {
	switch {
	case c.ServerAddr == "":
		return fmt.Errorf("SERVER_ADDR must not be empty")
	case c.DatabasePath == "":
		return fmt.Errorf("DATABASE_PATH must not be empty")
	case c.StoreTimeout <= 0:
		return fmt.Errorf("STORE_TIMEOUT must be positive")
	case c.NotificationRetention <= 0:
		return fmt.Errorf("NOTIFICATION_RETENTION must be positive")
	case c.MaxContentLength <= 0:
		return fmt.Errorf("MAX_CONTENT_LENGTH must be positive")
	case c.PostsPerPage <= 0 || c.MaxPageSize < c.PostsPerPage:
		return fmt.Errorf("POSTS_PER_PAGE must be positive and not exceed MAX_PAGE_SIZE")
	}
	return nil
}

// duration parses key strictly; viper's GetDuration turns a typo like
// "30d" into zero
func duration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, raw)
	}
	return d, nil
}

func parseIDs(raw string) ([]int, error) {
	var ids []int
	for _, part := range splitList(raw) {
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
