// Package config loads the notifier settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// PlaceholderToken is the token value shipped in example env files.
const PlaceholderToken = "your_access_token_here"

// Config holds application settings
type Config struct {
	// Campaign API
	APIURL          string
	APIToken        string
	SpaceID         string
	CampaignID      string // single-campaign mode when set
	PageSize        int
	RequestTimeout  time.Duration
	SelfTestTimeout time.Duration

	// Discord
	DiscordBotToken     string
	DiscordChannelID    string
	DiscordRoleMention  string
	CampaignURLTemplate string
	CampaignSpaceSlug   string
	ReconnectDelay      time.Duration
	GatewayTimeout      time.Duration

	// Poll loop
	PollInterval time.Duration

	// Store
	DBDriver    string
	DatabaseURL string
	DBUser      string
	DBPassword  string
	DBHost      string
	DBPort      string
	DBName      string

	// Event fan-out, disabled when AMQPURL is empty
	AMQPURL   string
	AMQPQueue string

	HTTPAddr  string
	LogLevel  string
	LogFormat string

	// values present in the environment that failed to parse
	envErrs []error
}

// New creates a configuration with default values
func New() *Config {
	return &Config{
		PageSize:            50,
		RequestTimeout:      30 * time.Second,
		SelfTestTimeout:     5 * time.Second,
		CampaignURLTemplate: "https://app.galxe.com/quest/{space}/{id}",
		CampaignSpaceSlug:   "Genome",
		ReconnectDelay:      10 * time.Second,
		GatewayTimeout:      30 * time.Second,
		PollInterval:        15 * time.Second,
		DBDriver:            "postgres",
		DBHost:              "localhost",
		DBPort:              "5432",
		AMQPQueue:           "campaign_discovered",
		HTTPAddr:            ":8080",
		LogLevel:            "info",
		LogFormat:           "text",
	}
}

// LoadDotEnv reads the given env files (".env" when none) into the process
// environment. Missing files are not an error; existing variables win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// FromEnv returns defaults overridden by environment variables.
func FromEnv() *Config {
	c := New()
	c.LoadFromEnv()
	return c
}

// LoadFromEnv overrides configuration with environment variables
func (c *Config) LoadFromEnv() {
	c.envErrs = nil
	setString(&c.APIURL, "API_URL")
	setString(&c.APIToken, "API_ACCESS_TOKEN")
	setString(&c.SpaceID, "SPACE_ID")
	setString(&c.CampaignID, "CAMPAIGN_ID")
	setInt(&c.PageSize, "PAGE_SIZE", &c.envErrs)
	setDuration(&c.RequestTimeout, "REQUEST_TIMEOUT", &c.envErrs)
	setDuration(&c.SelfTestTimeout, "SELF_TEST_TIMEOUT", &c.envErrs)

	setString(&c.DiscordBotToken, "DISCORD_BOT_TOKEN")
	setString(&c.DiscordChannelID, "DISCORD_CHANNEL_ID")
	setString(&c.DiscordRoleMention, "DISCORD_ROLE_MENTION")
	setString(&c.CampaignURLTemplate, "CAMPAIGN_URL_TEMPLATE")
	setString(&c.CampaignSpaceSlug, "CAMPAIGN_SPACE_SLUG")
	setDuration(&c.ReconnectDelay, "RECONNECT_DELAY", &c.envErrs)
	setDuration(&c.GatewayTimeout, "GATEWAY_TIMEOUT", &c.envErrs)

	setDuration(&c.PollInterval, "POLL_INTERVAL", &c.envErrs)

	setString(&c.DBDriver, "DB_DRIVER")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.DBUser, "DB_USER")
	setString(&c.DBPassword, "DB_PASSWORD")
	setString(&c.DBHost, "DB_HOST")
	setString(&c.DBPort, "DB_PORT")
	setString(&c.DBName, "DB_NAME")

	setString(&c.AMQPURL, "AMQP_URL")
	setString(&c.AMQPQueue, "AMQP_QUEUE")

	setString(&c.HTTPAddr, "HTTP_ADDR")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
}

// Validate reports every setting that prevents the notifier from starting.
// The API token is checked by the poll loop, which refuses to run without it.
func (c *Config) Validate() error {
	errs := append([]error(nil), c.envErrs...)
	if c.DiscordBotToken == "" {
		errs = append(errs, errors.New("DISCORD_BOT_TOKEN is required"))
	}
	if c.DiscordChannelID == "" {
		errs = append(errs, errors.New("DISCORD_CHANNEL_ID is required"))
	}
	if c.APIURL == "" {
		errs = append(errs, errors.New("API_URL is required"))
	} else if u, err := url.Parse(c.APIURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("API_URL %q is not an absolute URL", c.APIURL))
	}
	if _, err := c.SpaceIDInt(); err != nil {
		errs = append(errs, err)
	}
	if c.PageSize < 1 || c.PageSize > 100 {
		errs = append(errs, fmt.Errorf("PAGE_SIZE must be between 1 and 100, got %d", c.PageSize))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}
	if c.ReconnectDelay <= 0 {
		errs = append(errs, errors.New("RECONNECT_DELAY must be positive"))
	}
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver))
	}
	return errors.Join(errs...)
}

// HasAPIToken reports whether a usable API token is configured.
func (c *Config) HasAPIToken() bool {
	return c.APIToken != "" && c.APIToken != PlaceholderToken
}

// SingleCampaign reports whether one fixed campaign is monitored instead of a space.
func (c *Config) SingleCampaign() bool {
	return c.CampaignID != ""
}

// SpaceIDInt parses SPACE_ID, which the API types as an integer.
func (c *Config) SpaceIDInt() (int, error) {
	if c.SpaceID == "" {
		return 0, errors.New("SPACE_ID is required")
	}
	id, err := strconv.Atoi(c.SpaceID)
	if err != nil {
		return 0, fmt.Errorf("SPACE_ID %q is not an integer", c.SpaceID)
	}
	return id, nil
}

// DSN returns the data source name for DBDriver. DATABASE_URL wins when set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	if c.DBDriver == "sqlite" {
		name := c.DBName
		if name == "" {
			name = "campaigns.db"
		}
		return "file:" + name + "?_pragma=busy_timeout(5000)"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     net.JoinHostPort(c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// setString sets a string field from env
func setString(field *string, env string) {
	if v := os.Getenv(env); v != "" {
		*field = strings.TrimSpace(v)
	}
}

// setInt sets an int field from env; unparsable values are kept in errs
func setInt(field *int, env string, errs *[]error) {
	if v := os.Getenv(env); v != "" {
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			*errs = append(*errs, fmt.Errorf("%s %q is not an integer", env, v))
			return
		}
		*field = i
	}
}

// setDuration sets a time.Duration field from env; unparsable values are kept in errs
func setDuration(field *time.Duration, env string, errs *[]error) {
	if v := os.Getenv(env); v != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			*errs = append(*errs, fmt.Errorf("%s %q is not a duration (e.g. 15s)", env, v))
			return
		}
		*field = d
	}
}
