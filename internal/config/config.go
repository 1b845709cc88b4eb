package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"studiodesk/internal/models"
	"studiodesk/internal/timeslot"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Oracle     OracleConfig     `yaml:"oracle"`
	Booking    BookingConfig    `yaml:"booking"`
	Staff      []*models.Staff  `yaml:"staff"`
	Inventory  InventoryConfig  `yaml:"inventory"`
	Exports    ExportConfig     `yaml:"exports"`
	Google     GoogleConfig     `yaml:"google"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	StaffID     string   `yaml:"staff_id"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type GoogleConfig struct {
	GoogleCredentialsFile string `yaml:"credentials_file"`
	BookingSpreadSheetID  string `yaml:"bookings_spreadsheet_id"`
	BookingsSheetName     string `yaml:"bookings_sheet_name"`
}

// OracleConfig points at an OpenAI-compatible chat completions endpoint.
type OracleConfig struct {
	Enabled   bool          `yaml:"enabled"`
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxTokens int           `yaml:"max_tokens"`
}

type BookingConfig struct {
	OpenTime                 string          `yaml:"open_time"`
	CloseTime                string          `yaml:"close_time"`
	SlotStep                 int             `yaml:"slot_step"`
	AlternativeSlots         int             `yaml:"alternative_slots"`
	AlternativesFallbackSize int             `yaml:"alternatives_fallback_size"`
	LockTTL                  time.Duration   `yaml:"lock_ttl"`
	ChecklistTasks           []ChecklistTask `yaml:"checklist_tasks"`
}

type ChecklistTask struct {
	Type  string `yaml:"type"`
	Title string `yaml:"title"`
}

// InventoryConfig points at the equipment seed file.
type InventoryConfig struct {
	SeedFile string `yaml:"seed_file"`
}

// Hours returns the parsed studio opening hours.
func (b BookingConfig) Hours() (timeslot.Range, error) {
	return timeslot.ParseRange(b.OpenTime, b.CloseTime)
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if _, err := c.Booking.Hours(); err != nil {
		return fmt.Errorf("invalid studio hours: %w", err)
	}

	if c.Oracle.Enabled && c.Oracle.BaseURL == "" {
		return errors.New("oracle base_url is required when oracle is enabled")
	}

	return ValidateStaff(c.Staff)
}

func ValidateStaff(staff []*models.Staff) error {
	ids := make(map[string]bool)
	for _, s := range staff {
		if s.ID == "" {
			return fmt.Errorf("staff member '%s' has empty ID", s.Name)
		}
		if ids[s.ID] {
			return fmt.Errorf("duplicate staff ID found: %s", s.ID)
		}
		if s.Role != models.RoleAdmin && s.Role != models.RoleStaff {
			return fmt.Errorf("staff member '%s' has unknown role %q", s.ID, s.Role)
		}
		ids[s.ID] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	// auth enabled by default when API is enabled
	if !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	// Studio defaults
	if c.Booking.OpenTime == "" {
		c.Booking.OpenTime = "09:00"
	}
	if c.Booking.CloseTime == "" {
		c.Booking.CloseTime = "21:00"
	}
	if c.Booking.SlotStep == 0 {
		c.Booking.SlotStep = models.DefaultSlotStepMinutes
	}
	if c.Booking.AlternativeSlots == 0 {
		c.Booking.AlternativeSlots = models.DefaultAlternativeSlots
	}
	if c.Booking.AlternativesFallbackSize == 0 {
		c.Booking.AlternativesFallbackSize = models.DefaultAlternativesFallbackSize
	}
	if c.Booking.LockTTL == 0 {
		c.Booking.LockTTL = 10 * time.Second
	}
	if len(c.Booking.ChecklistTasks) == 0 {
		c.Booking.ChecklistTasks = DefaultChecklistTasks()
	}

	if c.Oracle.Timeout == 0 {
		c.Oracle.Timeout = 8 * time.Second
	}
	if c.Oracle.Model == "" {
		c.Oracle.Model = "gpt-4o-mini"
	}
	if c.Oracle.MaxTokens == 0 {
		c.Oracle.MaxTokens = 200
	}

	if c.Google.BookingsSheetName == "" {
		c.Google.BookingsSheetName = "Bookings"
	}
}

// DefaultChecklistTasks is the fixed prep list created on confirmation.
func DefaultChecklistTasks() []ChecklistTask {
	return []ChecklistTask{
		{Type: "prep_studio", Title: "Prepare studio space"},
		{Type: "check_equipment", Title: "Check reserved equipment"},
		{Type: "confirm_client", Title: "Confirm arrival time with client"},
	}
}

// ValidateInventory checks the equipment seed list.
func ValidateInventory(items []*models.InventoryItem) error {
	ids := make(map[string]bool, len(items))
	for _, item := range items {
		if item.ID == "" {
			return fmt.Errorf("item '%s' has empty ID", item.Name)
		}
		if ids[item.ID] {
			return fmt.Errorf("duplicate item ID found: %s", item.ID)
		}
		switch item.Status {
		case "", models.ItemAvailable, models.ItemInUse, models.ItemMaintenance:
		default:
			return fmt.Errorf("item '%s' has unknown status %q", item.ID, item.Status)
		}
		ids[item.ID] = true
	}
	return nil
}
