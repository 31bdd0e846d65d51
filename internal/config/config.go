package config

import (
	"flag"
	"os"
	"time"
)

// ServerConfig holds configuration for the server binary.
type ServerConfig struct {
	Addr       string
	LogLevel   string
	LogFile    string
	UploadsDir string
	NamesFile  string
	StaticDir  string

	PinTTL              time.Duration // session PIN lifetime
	GraceWindow         time.Duration // host redirect grace window
	GraceCap            time.Duration // maximum total grace window
	ResponseWindow      time.Duration // offer response deadline
	DisconnectGrace     time.Duration // reconnect window before a peer is purged
	SweepInterval       time.Duration // placement sweep period
	NameCleanupInterval time.Duration // orphaned device-name purge period

	MaxConcurrentDownloads int // per receiver
	RecentTransfersCap     int
}

// ParseServerConfig parses server configuration from flags and environment
// variables. Flags take precedence over environment variables.
func ParseServerConfig() ServerConfig {
	return parseServerConfigWithFlagSet(flag.CommandLine, os.Args[1:])
}

// parseServerConfigWithFlagSet is an internal helper for testing with isolated flag sets.
func parseServerConfigWithFlagSet(fs *flag.FlagSet, args []string) ServerConfig {
	cfg := ServerConfig{
		Addr:                   ":4000",
		LogLevel:               "info",
		UploadsDir:             "uploads",
		NamesFile:              "device_names.json",
		StaticDir:              "public",
		PinTTL:                 5 * time.Minute,
		GraceWindow:            30 * time.Second,
		GraceCap:               2 * time.Minute,
		ResponseWindow:         30 * time.Second,
		DisconnectGrace:        10 * time.Second,
		SweepInterval:          7 * time.Second,
		NameCleanupInterval:    5 * time.Minute,
		MaxConcurrentDownloads: 3,
		RecentTransfersCap:     100,
	}

	// Read from environment first
	if addr := os.Getenv("BEAMDROP_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if logLevel := os.Getenv("BEAMDROP_LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFile := os.Getenv("BEAMDROP_LOG_FILE"); logFile != "" {
		cfg.LogFile = logFile
	}
	if dir := os.Getenv("BEAMDROP_UPLOADS_DIR"); dir != "" {
		cfg.UploadsDir = dir
	}
	if file := os.Getenv("BEAMDROP_NAMES_FILE"); file != "" {
		cfg.NamesFile = file
	}
	if dir := os.Getenv("BEAMDROP_STATIC_DIR"); dir != "" {
		cfg.StaticDir = dir
	}

	// Flags override environment
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "server address")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "log file path (empty = console only)")
	fs.StringVar(&cfg.UploadsDir, "uploads-dir", cfg.UploadsDir, "directory for in-flight file storage")
	fs.StringVar(&cfg.NamesFile, "names-file", cfg.NamesFile, "device name persistence file")
	fs.StringVar(&cfg.StaticDir, "static-dir", cfg.StaticDir, "directory with the web UI pages (empty disables)")
	fs.DurationVar(&cfg.PinTTL, "pin-ttl", cfg.PinTTL, "session PIN lifetime")
	fs.DurationVar(&cfg.GraceWindow, "grace-window", cfg.GraceWindow, "host redirect grace window")
	fs.DurationVar(&cfg.GraceCap, "grace-cap", cfg.GraceCap, "maximum total grace window")
	fs.DurationVar(&cfg.ResponseWindow, "response-window", cfg.ResponseWindow, "offer response deadline")
	fs.DurationVar(&cfg.DisconnectGrace, "disconnect-grace", cfg.DisconnectGrace, "reconnect window before a disconnected peer is purged")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "placement sweep period")
	fs.DurationVar(&cfg.NameCleanupInterval, "name-cleanup-interval", cfg.NameCleanupInterval, "orphaned device-name purge period")
	fs.IntVar(&cfg.MaxConcurrentDownloads, "max-downloads", cfg.MaxConcurrentDownloads, "max concurrent downloads per receiver")
	fs.IntVar(&cfg.RecentTransfersCap, "recent-cap", cfg.RecentTransfersCap, "max retained recent transfer entries")
	fs.Parse(args)

	if cfg.MaxConcurrentDownloads < 1 {
		cfg.MaxConcurrentDownloads = 1
	}
	if cfg.RecentTransfersCap < 1 {
		cfg.RecentTransfersCap = 1
	}

	return cfg
}
