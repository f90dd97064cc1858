package config

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Config has the options required for running countdown-auth.
type Config struct {
	// BaseURL is where this service is reachable, used to build default callback
	// URLs.
	BaseURL string `toml:"baseURL"`

	// FrontendURL is where people are sent once a login has finished, with either
	// a "token" or an "error" query parameter.
	FrontendURL string `toml:"frontendURL"`

	// Database is the path to the sqlite database of accounts.
	Database string `toml:"database"`

	Twitter Twitter `toml:"twitter"`
	Google  Google  `toml:"google"`
	Session Session `toml:"session"`
	Pending Pending `toml:"pending"`
	Logging Logging `toml:"logging"`
}

// Twitter has the OAuth 1.0a application credentials. Leaving the key or secret
// empty disables signing in with Twitter.
type Twitter struct {
	ConsumerKey    string   `toml:"consumerKey"    env:"COUNTDOWN_TWITTER_CONSUMER_KEY"`
	ConsumerSecret string   `toml:"consumerSecret" env:"COUNTDOWN_TWITTER_CONSUMER_SECRET"`
	CallbackURL    string   `toml:"callbackURL"    env:"COUNTDOWN_TWITTER_CALLBACK_URL"`
	Timeout        Duration `toml:"timeout"`
}

func (t Twitter) Enabled() bool {
	return t.ConsumerKey != "" && t.ConsumerSecret != ""
}

// Google has the OAuth 2.0 client credentials. Leaving the id or secret empty
// disables signing in with Google.
type Google struct {
	ClientID     string `toml:"clientID"     env:"COUNTDOWN_GOOGLE_CLIENT_ID"`
	ClientSecret string `toml:"clientSecret" env:"COUNTDOWN_GOOGLE_CLIENT_SECRET"`
	RedirectURL  string `toml:"redirectURL"  env:"COUNTDOWN_GOOGLE_REDIRECT_URL"`
}

func (g Google) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

type Session struct {
	// CookieSecret signs the cookie remembering which login is in progress. If
	// empty a random secret is used, so logins will not survive a restart.
	CookieSecret string `toml:"cookieSecret" env:"COUNTDOWN_COOKIE_SECRET"`

	// Issuer is the "iss" claim of issued session tokens.
	Issuer string `toml:"issuer"`

	// TokenTTL is how long an issued session token is valid for.
	TokenTTL Duration `toml:"tokenTTL"`
}

type Pending struct {
	// Backend is "memory" or "redis".
	Backend       string   `toml:"backend"`
	TTL           Duration `toml:"ttl"`
	SweepInterval Duration `toml:"sweepInterval"`
	Redis         Redis    `toml:"redis"`
}

type Redis struct {
	Addr     string `toml:"addr"     env:"COUNTDOWN_REDIS_ADDR"`
	Password string `toml:"password" env:"COUNTDOWN_REDIS_PASSWORD"`
	DB       int    `toml:"db"`
}

type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Duration is a time.Duration written as a string, like "15m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Read a TOML formatted configuration file, then override any secrets that are
// set in the environment.
func Read(path string) (Config, error) {
	var conf Config
	if _, err := toml.DecodeFile(path, &conf); err != nil {
		return conf, err
	}

	if err := env.Parse(&conf); err != nil {
		return conf, fmt.Errorf("parse env: %w", err)
	}

	conf.setDefaults()
	return conf, conf.validate()
}

func (c *Config) setDefaults() {
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")

	if c.Database == "" {
		c.Database = "./countdown-auth.db"
	}
	if c.FrontendURL == "" {
		c.FrontendURL = c.BaseURL + "/"
	}

	if c.Twitter.CallbackURL == "" {
		c.Twitter.CallbackURL = c.BaseURL + "/auth/twitter/callback"
	}
	if c.Twitter.Timeout.Duration == 0 {
		c.Twitter.Timeout.Duration = 10 * time.Second
	}

	if c.Google.RedirectURL == "" {
		c.Google.RedirectURL = c.BaseURL + "/auth/google/callback"
	}

	if c.Session.Issuer == "" {
		c.Session.Issuer = c.BaseURL
	}
	if c.Session.TokenTTL.Duration == 0 {
		c.Session.TokenTTL.Duration = 24 * time.Hour
	}

	if c.Pending.Backend == "" {
		c.Pending.Backend = "memory"
	}
	if c.Pending.TTL.Duration == 0 {
		c.Pending.TTL.Duration = 15 * time.Minute
	}
	if c.Pending.SweepInterval.Duration == 0 {
		c.Pending.SweepInterval.Duration = 5 * time.Minute
	}
}

func (c Config) validate() error {
	if c.BaseURL == "" {
		return errors.New("baseURL is required")
	}

	switch c.Pending.Backend {
	case "memory":
	case "redis":
		if c.Pending.Redis.Addr == "" {
			return errors.New("pending.redis.addr is required when pending.backend is redis")
		}
	default:
		return fmt.Errorf("pending.backend must be memory or redis, got %q", c.Pending.Backend)
	}

	return nil
}

// ReadPrivateKey reads a PEM encoded RSA private key, in either PKCS#1 or
// PKCS#8 form, used to sign session tokens.
func ReadPrivateKey(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("no PEM data found in private key file")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not an RSA key")
	}

	return key, nil
}
