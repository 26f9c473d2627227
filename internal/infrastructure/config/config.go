package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/poyrazK/batchdns/internal/core/domain"
	"github.com/poyrazK/batchdns/internal/core/services"
)

// Config is the full server configuration: process-level settings plus the
// validation pipeline settings snapshot.
type Config struct {
	ListenAddr        string
	DatabaseURL       string
	RedisAddr         string
	RedisPassword     string
	DefaultBackendID  string
	SchedulerInterval time.Duration
	Settings          *services.Settings
}

// Load reads batchdns.yaml (working directory or /etc/batchdns) and the
// BATCHDNS_* environment, environment winning.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("batchdns")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/batchdns")
	v.SetEnvPrefix("BATCHDNS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("default_backend_id", "default")
	v.SetDefault("scheduler_interval", "30s")
	v.SetDefault("batch.max_changes", 20)
	v.SetDefault("batch.allow_manual_review", true)
	v.SetDefault("batch.scheduling_enabled", true)
	v.SetDefault("batch.default_ttl", 7200)
	v.SetDefault("batch.ttl_policy", string(services.TTLPolicyDefault))
	v.SetDefault("batch.shared_approved_types", []string{"A", "AAAA", "CNAME", "TXT", "PTR"})

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	settings, err := buildSettings(v)
	if err != nil {
		return nil, err
	}
	return &Config{
		ListenAddr:        v.GetString("listen_addr"),
		DatabaseURL:       v.GetString("database_url"),
		RedisAddr:         v.GetString("redis_addr"),
		RedisPassword:     v.GetString("redis_password"),
		DefaultBackendID:  v.GetString("default_backend_id"),
		SchedulerInterval: v.GetDuration("scheduler_interval"),
		Settings:          settings,
	}, nil
}

func buildSettings(v *viper.Viper) (*services.Settings, error) {
	s := services.DefaultSettings()
	s.MaxBatchChanges = v.GetInt("batch.max_changes")
	s.AllowManualReview = v.GetBool("batch.allow_manual_review")
	s.SchedulingEnabled = v.GetBool("batch.scheduling_enabled")
	s.DefaultTTL = v.GetInt("batch.default_ttl")
	s.TTLPolicy = services.TTLPolicy(v.GetString("batch.ttl_policy"))
	if s.TTLPolicy != services.TTLPolicyDefault && s.TTLPolicy != services.TTLPolicyInherit {
		return nil, fmt.Errorf("invalid batch.ttl_policy %q", s.TTLPolicy)
	}

	s.SharedApprovedTypes = nil
	for _, t := range v.GetStringSlice("batch.shared_approved_types") {
		rt := domain.RecordType(strings.ToUpper(t))
		if !domain.KnownType(rt) {
			return nil, fmt.Errorf("unknown record type %q in batch.shared_approved_types", t)
		}
		s.SharedApprovedTypes = append(s.SharedApprovedTypes, rt)
	}

	var err error
	if s.HighValueDomains, err = compilePatterns(v.GetStringSlice("batch.high_value_domains")); err != nil {
		return nil, fmt.Errorf("batch.high_value_domains: %w", err)
	}
	if s.ManualReviewDomains, err = compilePatterns(v.GetStringSlice("batch.manual_review_domains")); err != nil {
		return nil, fmt.Errorf("batch.manual_review_domains: %w", err)
	}
	if s.ApprovedNameServers, err = compilePatterns(v.GetStringSlice("batch.approved_name_servers")); err != nil {
		return nil, fmt.Errorf("batch.approved_name_servers: %w", err)
	}

	s.ManualReviewZones = make(map[string]bool)
	for _, zone := range v.GetStringSlice("batch.manual_review_zones") {
		s.ManualReviewZones[strings.ToLower(domain.EnsureTrailingDot(zone))] = true
	}
	s.AllowedEmailDomains = v.GetStringSlice("zones.allowed_email_domains")

	if err := v.UnmarshalKey("batch.global_acls", &s.GlobalACLs); err != nil {
		return nil, fmt.Errorf("batch.global_acls: %w", err)
	}
	return s, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	var compiled []*regexp.Regexp
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}
