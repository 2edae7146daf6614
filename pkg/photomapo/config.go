// Package photomapo turns directories of photos into postcards.
package photomapo

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"k8s.io/klog/v2"

	"github.com/tstromberg/photomapo/pkg/maps"
	"github.com/tstromberg/photomapo/pkg/postcard"
)

// Zoom bounds accepted from users.
const (
	MinZoom = 1
	MaxZoom = 20
)

// Config holds configuration for photomapo.
type Config struct {
	InDirs []string
	OutDir string
	// Format is the postcard file extension: jpg, png or bmp.
	Format  string
	Quality int
	Title   string

	Notes []string
	Style string
	Zoom  int

	Maps        maps.Config
	MapFallback bool

	// ExifBackend is "goexif" or "exiftool".
	ExifBackend   string
	CopyOriginals bool

	Caption      bool
	CaptionModel string
	GeminiAPIKey string

	S3   S3Config
	Addr string
}

// S3Config describes where built postcards are published.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Prefix    string
}

// Enabled reports whether publishing is configured.
func (s S3Config) Enabled() bool {
	return s.Bucket != ""
}

// NewViper returns a viper instance with photomapo's defaults and environment bindings.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("provider", "")
	v.SetDefault("style", postcard.DefaultStyle)
	v.SetDefault("zoom", postcard.DefaultZoom)
	v.SetDefault("tile_url", maps.DefaultTileURL)
	v.SetDefault("user_agent", maps.DefaultUserAgent)
	v.SetDefault("timeout", 15*time.Second)
	v.SetDefault("map_fallback", true)
	v.SetDefault("exif_backend", "goexif")
	v.SetDefault("format", "jpg")
	v.SetDefault("quality", postcard.DefaultQuality)
	v.SetDefault("title", "postcards")
	v.SetDefault("caption_model", "gemini-2.5-flash")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.use_ssl", true)
	v.SetDefault("addr", "localhost:12800")

	v.SetEnvPrefix("photomapo")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// well-known names used by other tools
	v.BindEnv("mapbox_token", "PHOTOMAPO_MAPBOX_TOKEN", "MAPBOX_TOKEN")
	v.BindEnv("gemini_api_key", "PHOTOMAPO_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_AI_API_KEY")

	return v
}

// LoadConfig reads an optional config file into v and builds a validated Config.
func LoadConfig(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		klog.V(1).Infof("loaded config from %s", v.ConfigFileUsed())
	}

	c := &Config{
		InDirs:  v.GetStringSlice("in_dirs"),
		OutDir:  v.GetString("out_dir"),
		Format:  strings.TrimPrefix(strings.ToLower(v.GetString("format")), "."),
		Quality: v.GetInt("quality"),
		Title:   v.GetString("title"),

		Notes: v.GetStringSlice("notes"),
		Style: v.GetString("style"),
		Zoom:  v.GetInt("zoom"),

		Maps: maps.Config{
			Provider:    v.GetString("provider"),
			MapboxToken: v.GetString("mapbox_token"),
			BaseURL:     v.GetString("mapbox_url"),
			TileURL:     v.GetString("tile_url"),
			UserAgent:   v.GetString("user_agent"),
			Timeout:     v.GetDuration("timeout"),
			Concurrency: v.GetInt("tile_concurrency"),
		},
		MapFallback: v.GetBool("map_fallback"),

		ExifBackend:   strings.ToLower(v.GetString("exif_backend")),
		CopyOriginals: v.GetBool("copy_originals"),

		Caption:      v.GetBool("caption"),
		CaptionModel: v.GetString("caption_model"),
		GeminiAPIKey: v.GetString("gemini_api_key"),

		S3: S3Config{
			Endpoint:  v.GetString("s3.endpoint"),
			Region:    v.GetString("s3.region"),
			Bucket:    v.GetString("s3.bucket"),
			AccessKey: v.GetString("s3.access_key"),
			SecretKey: v.GetString("s3.secret_key"),
			UseSSL:    v.GetBool("s3.use_ssl"),
			Prefix:    v.GetString("s3.prefix"),
		},
		Addr: v.GetString("addr"),
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate normalizes c and rejects settings that cannot work.
func (c *Config) Validate() error {
	if c.Zoom != 0 {
		c.Zoom = ClampZoom(c.Zoom)
	}

	if _, err := postcard.Encoder("."+c.Format, c.Quality); err != nil {
		return fmt.Errorf("format: %w", err)
	}

	switch c.ExifBackend {
	case "", "goexif", "exiftool":
	default:
		return fmt.Errorf("unknown exif backend %q", c.ExifBackend)
	}

	if c.S3.Enabled() && (c.S3.Endpoint == "" || c.S3.AccessKey == "" || c.S3.SecretKey == "") {
		return fmt.Errorf("s3 publishing needs endpoint, access key and secret key")
	}
	return nil
}

// ClampZoom limits z to MinZoom..MaxZoom.
func ClampZoom(z int) int {
	if z < MinZoom {
		klog.Warningf("zoom %d too low, using %d", z, MinZoom)
		return MinZoom
	}
	if z > MaxZoom {
		klog.Warningf("zoom %d too high, using %d", z, MaxZoom)
		return MaxZoom
	}
	return z
}
