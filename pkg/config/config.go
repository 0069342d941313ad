package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"kasage/pkg/model"
)

// Environment variables consulted when the matching config value is empty.
const (
	EnvMapsAPIKey   = "GOOGLE_MAPS_API_KEY"
	EnvBookingPhone = "KASAGE_BOOKING_PHONE"
)

// Config holds the application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Request     RequestConfig     `yaml:"request"`
	Maps        MapsConfig        `yaml:"maps"`
	Home        HomeConfig        `yaml:"home"`
	Geolocation GeolocationConfig `yaml:"geolocation"`
	Booking     BookingConfig     `yaml:"booking"`
	Cache       CacheConfig       `yaml:"cache"`

	// Dev turns programming-invariant violations (e.g. a missing map container) into panics.
	Dev bool `yaml:"dev"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// RequestConfig holds outbound HTTP settings.
type RequestConfig struct {
	Retries   int      `yaml:"retries"`
	Timeout   Duration `yaml:"timeout"`
	BaseDelay Duration `yaml:"base_delay"`
}

// MapsConfig holds the mapping provider settings.
type MapsConfig struct {
	APIKey        string   `yaml:"api_key"`
	DirectionsURL string   `yaml:"directions_url"`
	Mode          string   `yaml:"mode"`
	DefaultZoom   int      `yaml:"default_zoom"`
	SelectZoom    int      `yaml:"select_zoom"`
	LocateZoom    int      `yaml:"locate_zoom"`
	Bounce        Duration `yaml:"bounce"`
	RoutePadding  Padding  `yaml:"route_padding"`
	Language      string   `yaml:"language"`
}

// Padding is a viewport inset in CSS pixels.
type Padding struct {
	Top    int `yaml:"top" json:"top"`
	Right  int `yaml:"right" json:"right"`
	Bottom int `yaml:"bottom" json:"bottom"`
	Left   int `yaml:"left" json:"left"`
}

// HomeConfig describes the homestay's own fixed location.
type HomeConfig struct {
	Name     string       `yaml:"name"`
	Locality string       `yaml:"locality"`
	Location model.LatLng `yaml:"location"`
}

// GeolocationConfig holds the one-shot device position settings.
type GeolocationConfig struct {
	HighAccuracy bool     `yaml:"high_accuracy"`
	Timeout      Duration `yaml:"timeout"`
	MaxCacheAge  Duration `yaml:"max_cache_age"`
	MaxAccuracy  Distance `yaml:"max_accuracy"`
	LocateOnLoad bool     `yaml:"locate_on_load"`
}

// BookingConfig holds the booking screen content and contact channel.
type BookingConfig struct {
	Phone       string   `yaml:"phone"`
	Greeting    string   `yaml:"greeting"`
	Price       string   `yaml:"price"`
	Rating      float64  `yaml:"rating"`
	Reviews     int      `yaml:"reviews"`
	Description string   `yaml:"description"`
	Photos      []string `yaml:"photos"`
	Amenities   []string `yaml:"amenities"`
}

// CacheConfig holds the route cache settings.
type CacheConfig struct {
	RouteTTL  Duration `yaml:"route_ttl"`
	MaxRoutes int      `yaml:"max_routes"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address: "localhost:8080",
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
		},
		Request: RequestConfig{
			Retries:   3,
			Timeout:   Duration(15 * time.Second),
			BaseDelay: Duration(500 * time.Millisecond),
		},
		Maps: MapsConfig{
			DirectionsURL: "https://maps.googleapis.com/maps/api/directions/json",
			Mode:          "driving",
			DefaultZoom:   12,
			SelectZoom:    13,
			LocateZoom:    15,
			Bounce:        Duration(700 * time.Millisecond),
			RoutePadding:  Padding{Top: 80, Right: 40, Bottom: 320, Left: 40},
			Language:      "en",
		},
		Home: HomeConfig{
			Name:     "Kasage Homestay",
			Locality: "Sirsi, Karnataka",
			Location: model.LatLng{Lat: 14.415, Lng: 74.755},
		},
		Geolocation: GeolocationConfig{
			HighAccuracy: true,
			Timeout:      Duration(10 * time.Second),
			MaxCacheAge:  Duration(0),
			MaxAccuracy:  Distance(500),
		},
		Booking: BookingConfig{
			Phone:    "9199074233664",
			Greeting: "Hi! I saw Kasage Homestay on your app and I'm interested in booking a stay.",
			Price:    "₹2,500",
			Rating:   4.9,
			Reviews:  120,
			Description: "Nestled in the lush greenery of the Western Ghats, Kasage Homestay offers a serene escape from city life. " +
				"Enjoy authentic Malnad cuisine, wake up to the sound of birds, and visit the majestic Benne Hole Falls just 5km away. " +
				"Our heritage home blends traditional architecture with modern comforts for the perfect family getaway.",
			Photos: []string{
				"/images/exterior.jpg",
				"/images/room.jpg",
				"/images/food.jpg",
				"/images/falls.jpg",
			},
			Amenities: []string{"Free Wi-Fi", "Parking", "Home Food", "Coffee Estate"},
		},
		Cache: CacheConfig{
			RouteTTL:  Duration(Day),
			MaxRoutes: 512,
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it is created with default values.
// Credentials may come from the environment; they are never written back to disk.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if cfg.Maps.APIKey == "" {
		cfg.Maps.APIKey = os.Getenv(EnvMapsAPIKey)
	}
	if phone := os.Getenv(EnvBookingPhone); phone != "" && cfg.Booking.Phone == "" {
		cfg.Booking.Phone = phone
	}
}

var phonePattern = regexp.MustCompile(`^[0-9]{8,15}$`)

// Validate checks the values the screens rely on.
func (c *Config) Validate() error {
	if !c.Home.Location.Valid() {
		return fmt.Errorf("invalid home location %v", c.Home.Location)
	}
	if c.Maps.DefaultZoom < 0 || c.Maps.DefaultZoom > 22 {
		return fmt.Errorf("invalid default_zoom %d: must be 0-22", c.Maps.DefaultZoom)
	}
	if c.Maps.Mode == "" {
		return fmt.Errorf("maps.mode must not be empty")
	}
	if c.Geolocation.MaxAccuracy <= 0 {
		return fmt.Errorf("geolocation.max_accuracy must be positive")
	}
	if c.Booking.Phone != "" && !phonePattern.MatchString(c.Booking.Phone) {
		return fmt.Errorf("invalid booking phone '%s': digits only, country code first", c.Booking.Phone)
	}
	return nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Kasage Homestay Configuration
# ------------------------------
# Durations: ms, s, m, h, d (day), w (week)
# Distances: m (meters), km (kilometers)
# maps.api_key may be left empty and provided via GOOGLE_MAPS_API_KEY or .env

`)
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
