package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Discord  DiscordConfig  `json:"discord"`
	Resolver ResolverConfig `json:"resolver"`
	Search   SearchConfig   `json:"search"`
	Audio    AudioConfig    `json:"audio"`
	Playback PlaybackConfig `json:"playback"`
	Server   ServerConfig   `json:"server"`
	Logging  LoggingConfig  `json:"logging"`
	Features FeatureConfig  `json:"features"`
}

// DiscordConfig holds Discord-specific configuration
type DiscordConfig struct {
	Token string `json:"-"`
	// GuildID scopes command registration to one guild; empty registers globally.
	GuildID       string `json:"guild_id"`
	RemoveOnClose bool   `json:"remove_commands_on_close"`
}

// ResolverConfig selects and tunes the stream resolver backend
type ResolverConfig struct {
	Backend        string        `json:"backend"`
	PipedInstance  string        `json:"piped_instance"`
	PipedRateLimit float64       `json:"piped_rate_limit"`
	PipedBurst     int           `json:"piped_burst"`
	YtdlpFormat    string        `json:"ytdlp_format"`
	RequestTimeout time.Duration `json:"request_timeout"`
	UserAgent      string        `json:"user_agent"`
}

// SearchConfig configures free-text lookups
type SearchConfig struct {
	APIKey  string        `json:"-"`
	Timeout time.Duration `json:"timeout"`
}

// AudioConfig holds dca encoder settings
type AudioConfig struct {
	Bitrate          int  `json:"bitrate"`
	Volume           int  `json:"volume"`
	FrameRate        int  `json:"frame_rate"`
	FrameDuration    int  `json:"frame_duration"`
	CompressionLevel int  `json:"compression_level"`
	PacketLoss       int  `json:"packet_loss"`
	BufferedFrames   int  `json:"buffered_frames"`
	EnableVBR        bool `json:"enable_vbr"`
}

// PlaybackConfig holds session timing
type PlaybackConfig struct {
	StreamTTL        time.Duration `json:"stream_ttl"`
	ConnectTimeout   time.Duration `json:"connect_timeout"`
	ReconnectTimeout time.Duration `json:"reconnect_timeout"`
	ResolveTimeout   time.Duration `json:"resolve_timeout"`
	StopTimeout      time.Duration `json:"stop_timeout"`
}

// ServerConfig holds the health server settings
type ServerConfig struct {
	Port string `json:"port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level            string `json:"level"`
	OutputFile       string `json:"output_file"`
	MaxFileSizeMB    int    `json:"max_file_size_mb"`
	MaxBackups       int    `json:"max_backups"`
	MaxAgeDays       int    `json:"max_age_days"`
	EnableConsole    bool   `json:"enable_console"`
	EnableFile       bool   `json:"enable_file"`
	EnableJSON       bool   `json:"enable_json"`
	EnableStackTrace bool   `json:"enable_stack_trace"`
}

// FeatureConfig holds feature flags
type FeatureConfig struct {
	EnableMetrics      bool `json:"enable_metrics"`
	EnableHealthServer bool `json:"enable_health_server"`
	CheckDependencies  bool `json:"check_dependencies"`
}

// Resolver backend names accepted by RESOLVER_BACKEND.
const (
	BackendPiped   = "piped"
	BackendYtdlp   = "ytdlp"
	BackendYouTube = "youtube"
)

var validBackends = []string{BackendPiped, BackendYtdlp, BackendYouTube}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Resolver: ResolverConfig{
			Backend:        BackendPiped,
			PipedInstance:  "https://piped.video",
			PipedRateLimit: 5,
			PipedBurst:     10,
			YtdlpFormat:    "bestaudio[ext=webm][acodec=opus]/bestaudio",
			RequestTimeout: 15 * time.Second,
			UserAgent:      "Mozilla/5.0 (DiscordMusicBot)",
		},
		Search: SearchConfig{
			Timeout: 10 * time.Second,
		},
		Audio: AudioConfig{
			Bitrate:          96,
			Volume:           256,
			FrameRate:        48000,
			FrameDuration:    20,
			CompressionLevel: 10,
			PacketLoss:       1,
			BufferedFrames:   100,
			EnableVBR:        true,
		},
		Playback: PlaybackConfig{
			StreamTTL:        5 * time.Minute,
			ConnectTimeout:   10 * time.Second,
			ReconnectTimeout: 5 * time.Second,
			ResolveTimeout:   30 * time.Second,
			StopTimeout:      5 * time.Second,
		},
		Server: ServerConfig{
			Port: "3000",
		},
		Logging: LoggingConfig{
			Level:            "INFO",
			OutputFile:       "logs/bot.log",
			MaxFileSizeMB:    100,
			MaxBackups:       5,
			MaxAgeDays:       30,
			EnableConsole:    true,
			EnableFile:       false,
			EnableStackTrace: true,
		},
		Features: FeatureConfig{
			EnableMetrics:      true,
			EnableHealthServer: true,
			CheckDependencies:  true,
		},
	}
}

// ReadConfig reads .env (when present) and the process environment without
// validating. Tooling commands that never connect to Discord use it.
func ReadConfig() (*Config, error) {
	// A missing .env is normal in containers.
	_ = godotenv.Load()

	config := DefaultConfig()
	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadConfig reads and validates the configuration
func LoadConfig() (*Config, error) {
	config, err := ReadConfig()
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

func (c *Config) applyEnv() error {
	var problems []string

	// BOT_TOKEN is accepted for older deployments.
	c.Discord.Token = firstEnv("DISCORD_TOKEN", "BOT_TOKEN")
	c.Discord.GuildID = os.Getenv("GUILD_ID")
	if v := os.Getenv("REMOVE_COMMANDS"); v == "true" {
		c.Discord.RemoveOnClose = true
	}

	if v := os.Getenv("RESOLVER_BACKEND"); v != "" {
		c.Resolver.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("PIPED_INSTANCE"); v != "" {
		c.Resolver.PipedInstance = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("YTDLP_FORMAT"); v != "" {
		c.Resolver.YtdlpFormat = v
	}
	if v := os.Getenv("PIPED_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			problems = append(problems, fmt.Sprintf("PIPED_RATE_LIMIT: %v", err))
		} else {
			c.Resolver.PipedRateLimit = f
		}
	}

	c.Search.APIKey = os.Getenv("YT_TOKEN")

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"STREAM_TTL", &c.Playback.StreamTTL},
		{"CONNECT_TIMEOUT", &c.Playback.ConnectTimeout},
		{"RECONNECT_TIMEOUT", &c.Playback.ReconnectTimeout},
		{"RESOLVE_TIMEOUT", &c.Playback.ResolveTimeout},
	}
	for _, d := range durations {
		v := os.Getenv(d.env)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", d.env, err))
			continue
		}
		*d.dst = parsed
	}

	ints := []struct {
		env string
		dst *int
	}{
		{"AUDIO_BITRATE", &c.Audio.Bitrate},
		{"AUDIO_VOLUME", &c.Audio.Volume},
	}
	for _, i := range ints {
		v := os.Getenv(i.env)
		if v == "" {
			continue
		}
		parsed, err := strconv.Atoi(v)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", i.env, err))
			continue
		}
		*i.dst = parsed
	}

	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}

	if os.Getenv("DEBUG") == "true" {
		c.Logging.Level = "DEBUG"
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToUpper(v)
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		c.Logging.OutputFile = v
		c.Logging.EnableFile = true
	}
	if os.Getenv("LOG_JSON") == "true" {
		c.Logging.EnableJSON = true
	}

	if os.Getenv("ENABLE_METRICS") == "false" {
		c.Features.EnableMetrics = false
	}
	if os.Getenv("ENABLE_HEALTH_SERVER") == "false" {
		c.Features.EnableHealthServer = false
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errors []string

	if c.Discord.Token == "" {
		errors = append(errors, "Discord token (DISCORD_TOKEN) is required")
	}

	if !slices.Contains(validBackends, c.Resolver.Backend) {
		errors = append(errors, fmt.Sprintf("resolver backend must be one of: %s", strings.Join(validBackends, ", ")))
	}
	if c.Resolver.Backend == BackendPiped && !strings.HasPrefix(c.Resolver.PipedInstance, "http") {
		errors = append(errors, "PIPED_INSTANCE must be an http(s) URL")
	}
	if c.Resolver.PipedRateLimit <= 0 {
		errors = append(errors, "piped rate limit must be greater than 0")
	}

	if c.Audio.Bitrate < 8 || c.Audio.Bitrate > 512 {
		errors = append(errors, "audio bitrate must be between 8 and 512 kbps")
	}
	if c.Audio.Volume < 0 || c.Audio.Volume > 1024 {
		errors = append(errors, "audio volume must be between 0 and 1024")
	}

	if c.Playback.StreamTTL <= 0 {
		errors = append(errors, "stream TTL must be greater than 0")
	}
	if c.Playback.ConnectTimeout <= 0 || c.Playback.ReconnectTimeout <= 0 {
		errors = append(errors, "connect and reconnect timeouts must be greater than 0")
	}

	if port, err := strconv.Atoi(c.Server.Port); err != nil || port <= 0 || port > 65535 {
		errors = append(errors, "PORT must be a valid TCP port")
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !slices.Contains(validLogLevels, c.Logging.Level) {
		errors = append(errors, fmt.Sprintf("log level must be one of: %s", strings.Join(validLogLevels, ", ")))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errors, "; "))
	}
	return nil
}

// GetRedactedToken returns a redacted version of the token for logging
func (c *Config) GetRedactedToken() string {
	if len(c.Discord.Token) < 8 {
		return "***"
	}
	return c.Discord.Token[:8] + "***"
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
