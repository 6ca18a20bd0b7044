// config.go: settings for the LensStory gallery service. Defines the
// settings struct and functions to load and access the settings.
package conf

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yaml
var configFiles embed.FS

// MainSettings contains application-wide settings.
type MainSettings struct {
	Name   string // instance name, used in log attributes
	LogDir string // directory for per-service log files
}

// GallerySettings contains gallery behaviour settings.
type GallerySettings struct {
	Language string // default language hint for enrichment: "en" or "zh"
}

// LocalStoreSettings configures the embedded SQLite backend.
type LocalStoreSettings struct {
	Path string // path to the SQLite database file
}

// MySQLSettings configures the remote metadata table.
type MySQLSettings struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// RemoteStoreSettings configures the remote backend: a MinIO/S3 object
// store for image bytes plus a MySQL table for metadata.
type RemoteStoreSettings struct {
	Endpoint        string // object store endpoint, e.g. "minio.example.com:9000"
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
	PublicBaseURL   string // base for public object URLs, derived from endpoint if empty
	MySQL           MySQLSettings
}

// StorageSettings selects and configures the persistence backend.
type StorageSettings struct {
	Local  LocalStoreSettings
	Remote RemoteStoreSettings
}

// RemoteEnabled reports whether the remote backend is configured. The
// active backend is chosen from this once at startup; presence of remote
// credentials is the switch, there is no runtime reconfiguration.
func (s *StorageSettings) RemoteEnabled() bool {
	r := &s.Remote
	return r.Endpoint != "" &&
		r.AccessKeyID != "" &&
		r.SecretAccessKey != "" &&
		r.Bucket != "" &&
		r.MySQL.Host != ""
}

// VisionSettings configures the external image captioning service.
type VisionSettings struct {
	APIKey   string
	Endpoint string // API base URL
	Model    string
	Timeout  time.Duration
	CacheTTL time.Duration // content-hash result cache lifetime
}

// WebServerSettings configures the HTTP API.
type WebServerSettings struct {
	Enabled bool
	Port    string
}

// Settings is the root configuration object. It is constructed once at
// startup and passed explicitly to the persistence and enrichment layers.
type Settings struct {
	Debug bool

	Main      MainSettings
	Gallery   GallerySettings
	Storage   StorageSettings
	Vision    VisionSettings
	WebServer WebServerSettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads configuration from the config file (searched in the working
// directory and the usual config paths), falling back to the embedded
// defaults, with environment overrides under the LENSSTORY prefix.
func Load() (*Settings, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/lensstory")
	v.AddConfigPath("/etc/lensstory")

	v.SetEnvPrefix("LENSSTORY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config on disk, run on the embedded defaults.
		defaults, readErr := configFiles.ReadFile("config.yaml")
		if readErr != nil {
			return nil, fmt.Errorf("reading embedded defaults: %w", readErr)
		}
		if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
			return nil, fmt.Errorf("parsing embedded defaults: %w", err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("unmarshaling settings: %w", err)
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()

	return settings, nil
}

// Setting returns the currently loaded settings, or nil before Load.
func Setting() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SetTestSettings installs the given settings as the global instance.
// Intended for tests only.
func SetTestSettings(s *Settings) {
	settingsMutex.Lock()
	settingsInstance = s
	settingsMutex.Unlock()
}
