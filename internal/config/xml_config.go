// Package config provides XML-based configuration for the transfer server and the
// uploader client.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/plc-visualizer/uploader/internal/catalog"
	"github.com/plc-visualizer/uploader/internal/realtime"
	"github.com/plc-visualizer/uploader/internal/storage"
	"github.com/plc-visualizer/uploader/internal/validation"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"FileTransfer"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Processing configuration
	Processing ProcessingConfig `xml:"Processing"`

	// Security configuration
	Security SecurityConfig `xml:"Security"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`

	// Uploader client settings
	Client ClientConfig `xml:"Client"`

	// Validation policy applied by the uploader
	Policy PolicyConfig `xml:"Policy"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory    string `xml:"DataDirectory"`
	UploadsDirectory string `xml:"UploadsDirectory"`
	CatalogPath      string `xml:"CatalogPath"`
}

// ProcessingConfig contains settings for server-side processing jobs
type ProcessingConfig struct {
	JobRetentionMinutes    int  `xml:"JobRetentionMinutes"`
	CleanupIntervalMinutes int  `xml:"CleanupIntervalMinutes"`
	EnableCompression      bool `xml:"EnableCompression"`
	CompressionLevel       int  `xml:"CompressionLevel"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	AllowFileDeletion bool `xml:"AllowFileDeletion"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `xml:"LogLevel"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging"`
	DuckDBThreads        int    `xml:"DuckDBThreads"`
	DuckDBMemoryLimit    string `xml:"DuckDBMemoryLimit"`
	RedisAddr            string `xml:"RedisAddr"`    // Mirrors processing events to Redis when set
	RedisChannel         string `xml:"RedisChannel"` // Defaults to realtime.DefaultRedisChannel
}

// ClientConfig contains uploader settings
type ClientConfig struct {
	Backend       string         `xml:"Backend"` // mock, local, chunked, minio
	ServerURL     string         `xml:"ServerURL"`
	LocalDir      string         `xml:"LocalDirectory"`
	ChunkSize     string         `xml:"ChunkSize"`
	ChunkRetries  int            `xml:"ChunkRetries"`
	Org           string         `xml:"Organization"`
	UserID        string         `xml:"UserID"`
	UserEmail     string         `xml:"UserEmail"`
	QueueMode     bool           `xml:"QueueMode"`
	MaxConcurrent int            `xml:"MaxConcurrent"`
	Realtime      RealtimeConfig `xml:"Realtime"`
	MinIO         MinIOConfig    `xml:"MinIO"`
}

// RealtimeConfig selects the channel that reports server-side processing
type RealtimeConfig struct {
	Kind      string `xml:"Kind"` // none, hub, websocket, redis
	URL       string `xml:"URL"`  // Derived from ServerURL when empty
	RedisAddr string `xml:"RedisAddr"`
	Channel   string `xml:"Channel"`
}

// MinIOConfig contains object storage settings for the minio backend
type MinIOConfig struct {
	Endpoint  string `xml:"Endpoint"`
	AccessKey string `xml:"AccessKey"`
	SecretKey string `xml:"SecretKey"`
	Bucket    string `xml:"Bucket"`
	UseSSL    bool   `xml:"UseSSL"`
	Prefix    string `xml:"Prefix"`
}

// PolicyConfig is the validation policy. Sizes are human strings such as "50MB".
type PolicyConfig struct {
	MaxFileSize       string `xml:"MaxFileSize"`
	AllowedExtensions string `xml:"AllowedExtensions"` // Comma separated
	MaxFileCount      int    `xml:"MaxFileCount"`
	OrgStorageLimit   string `xml:"OrgStorageLimit"`
	AutoClose         bool   `xml:"AutoClose"`
	PolicyFile        string `xml:"PolicyFile"` // YAML policy that replaces this section
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "64M",
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
			CatalogPath:      "./data/catalog.duckdb",
		},
		Processing: ProcessingConfig{
			JobRetentionMinutes:    60,
			CleanupIntervalMinutes: 5,
			EnableCompression:      true,
			CompressionLevel:       5,
		},
		Security: SecurityConfig{
			AllowFileDeletion: true,
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			EnableRequestLogging: true,
			DuckDBThreads:        2,
			DuckDBMemoryLimit:    "256MB",
		},
		Client: ClientConfig{
			Backend:   storage.BackendChunked,
			ServerURL: "http://localhost:8089",
			ChunkSize: "5MB",
			Realtime: RealtimeConfig{
				Kind: realtime.KindWebSocket,
			},
		},
		Policy: PolicyConfig{
			MaxFileSize:       "50MB",
			AllowedExtensions: ".csv,.log,.txt,.pdf,.xml,.json,.gz",
			MaxFileCount:      20,
			AutoClose:         true,
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		config.resolvePaths(filepath.Dir(configPath))
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- File Transfer Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	// PORT override
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR override
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.UploadsDirectory = filepath.Join(dataDir, "uploads")
		c.Storage.CatalogPath = filepath.Join(dataDir, "catalog.duckdb")
	}

	if serverURL := os.Getenv("TRANSFER_SERVER_URL"); serverURL != "" {
		c.Client.ServerURL = serverURL
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
	resolve(&c.Storage.DataDirectory)
	resolve(&c.Storage.UploadsDirectory)
	resolve(&c.Storage.CatalogPath)
	resolve(&c.Client.LocalDir)
	resolve(&c.Policy.PolicyFile)
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetUploadDir returns the absolute uploads directory path
func (c *AppConfig) GetUploadDir() string {
	return c.Storage.UploadsDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// GetAllowedOrigins splits the CORS origin list
func (c *AppConfig) GetAllowedOrigins() []string {
	return splitList(c.Server.AllowOrigins)
}

// JobRetention is how long finished processing jobs are kept
func (c *AppConfig) JobRetention() time.Duration {
	return time.Duration(c.Processing.JobRetentionMinutes) * time.Minute
}

// CleanupInterval is how often finished jobs are swept
func (c *AppConfig) CleanupInterval() time.Duration {
	if c.Processing.CleanupIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Processing.CleanupIntervalMinutes) * time.Minute
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
	}
	if c.Storage.CatalogPath != "" {
		dirs = append(dirs, filepath.Dir(c.Storage.CatalogPath))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// CatalogOptions returns the DuckDB settings for the file catalog
func (c *AppConfig) CatalogOptions() catalog.Options {
	return catalog.Options{
		Threads:     c.Advanced.DuckDBThreads,
		MemoryLimit: c.Advanced.DuckDBMemoryLimit,
	}
}

// StorageConfig builds the uploader's storage backend settings
func (c *AppConfig) StorageConfig() (storage.Config, error) {
	chunkSize, err := validation.ParseSize(c.Client.ChunkSize)
	if err != nil {
		return storage.Config{}, fmt.Errorf("invalid chunk size %q: %w", c.Client.ChunkSize, err)
	}

	return storage.Config{
		Backend:  c.Client.Backend,
		LocalDir: c.Client.LocalDir,
		Chunked: storage.ChunkedOptions{
			ServerURL: c.Client.ServerURL,
			ChunkSize: chunkSize,
			Retries:   c.Client.ChunkRetries,
			Org:       c.Client.Org,
		},
		MinIO: storage.MinIOConfig{
			Endpoint:  c.Client.MinIO.Endpoint,
			AccessKey: c.Client.MinIO.AccessKey,
			SecretKey: c.Client.MinIO.SecretKey,
			Bucket:    c.Client.MinIO.Bucket,
			UseSSL:    c.Client.MinIO.UseSSL,
			Prefix:    c.Client.MinIO.Prefix,
		},
	}, nil
}

// RealtimeConfig builds the uploader's realtime channel settings. A websocket
// channel without a URL listens on the transfer server's event stream.
func (c *AppConfig) RealtimeConfig() realtime.Config {
	rc := realtime.Config{
		Kind:      c.Client.Realtime.Kind,
		URL:       c.Client.Realtime.URL,
		RedisAddr: c.Client.Realtime.RedisAddr,
		Channel:   c.Client.Realtime.Channel,
	}
	if rc.URL == "" && strings.EqualFold(rc.Kind, realtime.KindWebSocket) {
		rc.URL = EventsURL(c.Client.ServerURL)
	}
	return rc
}

// EventsURL maps a transfer server URL to its websocket event stream.
func EventsURL(serverURL string) string {
	u := strings.TrimRight(serverURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/api/ws/events"
}

// ValidationPolicy returns the effective policy. A configured policy file wins
// over the Policy section.
func (c *AppConfig) ValidationPolicy() (validation.Policy, error) {
	if c.Policy.PolicyFile != "" {
		return validation.LoadPolicyFile(c.Policy.PolicyFile)
	}

	maxSize, err := validation.ParseSize(c.Policy.MaxFileSize)
	if err != nil {
		return validation.Policy{}, fmt.Errorf("invalid max file size %q: %w", c.Policy.MaxFileSize, err)
	}
	orgLimit, err := validation.ParseSize(c.Policy.OrgStorageLimit)
	if err != nil {
		return validation.Policy{}, fmt.Errorf("invalid org storage limit %q: %w", c.Policy.OrgStorageLimit, err)
	}

	autoClose := c.Policy.AutoClose
	policy := validation.Policy{
		MaxFileSize:     maxSize,
		MaxFileCount:    c.Policy.MaxFileCount,
		OrgStorageLimit: orgLimit,
		AutoClose:       &autoClose,
	}
	policy.AllowedExtensions = validation.ParseExtensions(c.Policy.AllowedExtensions)
	return policy, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
