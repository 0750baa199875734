package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileEnv は設定ファイルのパスを指定する環境変数。
const ConfigFileEnv = "WEEKLY_CONFIG"

// defaultPort はポート未設定時の待ち受けポート。
const defaultPort = "8123"

// GuestIndexUserWeekly は未ログイン時のトップページを特定ユーザーの週報一覧にする設定値。
const GuestIndexUserWeekly = "user-weekly"

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// OpenID Connect
	OIDCURLPrefix    string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCTimeout      time.Duration

	// Server
	ListenAddress string
	ServerPort    string
	BaseURL       string

	// Pages
	GuestIndex     string
	GuestIndexUser string
	DefaultLang    string

	// Cookie
	CookieHarden bool
	CookieSecure bool

	// Logging
	LogLevel string
}

// RedirectURL はプロバイダーに登録するリダイレクトURLを返す。
func (c *Config) RedirectURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/openid-redirect"
}

// Addr はサーバーが待ち受けるアドレスを返す。
func (c *Config) Addr() string {
	return c.ListenAddress + ":" + c.ServerPort
}

// fileConfig はYAML設定ファイルの内容。
type fileConfig struct {
	DataDir         string `yaml:"data-dir"`
	DatabaseURL     string `yaml:"database-url"`
	ListenAddress   string `yaml:"listen-address"`
	ListenPort      *int   `yaml:"listen-port"`
	ClientID        string `yaml:"client-id"`
	ClientSecret    string `yaml:"client-secret"`
	OpenIDURLPrefix string `yaml:"openid-url-prefix"`
	URLPrefix       string `yaml:"url-prefix"`
	GuestIndex      string `yaml:"guest-index"`
	GuestIndexUser  string `yaml:"guest-index-user"`
	DefaultLang     string `yaml:"default-lang"`
}

// Load は設定ファイルと環境変数からConfigを読み込む。
// pathが空の場合はWEEKLY_CONFIGのパスを使い、それも空なら環境変数のみを使う。
// 環境変数はファイルの値より優先する。必須項目が未設定の場合はエラーを返す。
func Load(path string) (*Config, error) {
	fc, err := readFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	defaultDatabaseURL := "sqlite3://weekly.db"
	if fc.DataDir != "" {
		defaultDatabaseURL = "sqlite3://" + filepath.Join(fc.DataDir, "data.db")
	}
	cfg.DatabaseURL = getEnvString("DATABASE_URL", orDefault(fc.DatabaseURL, defaultDatabaseURL))

	// Required fields
	var missing []string

	cfg.OIDCURLPrefix = getEnvString("OIDC_URL_PREFIX", fc.OpenIDURLPrefix)
	if cfg.OIDCURLPrefix == "" {
		missing = append(missing, "OIDC_URL_PREFIX")
	}

	cfg.OIDCClientID = getEnvString("OIDC_CLIENT_ID", fc.ClientID)
	if cfg.OIDCClientID == "" {
		missing = append(missing, "OIDC_CLIENT_ID")
	}

	cfg.OIDCClientSecret = getEnvString("OIDC_CLIENT_SECRET", fc.ClientSecret)
	if cfg.OIDCClientSecret == "" {
		missing = append(missing, "OIDC_CLIENT_SECRET")
	}

	cfg.BaseURL = getEnvString("BASE_URL", fc.URLPrefix)
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required settings are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ListenAddress, cfg.ServerPort = listenSettings(fc)
	cfg.GuestIndex = getEnvString("GUEST_INDEX", fc.GuestIndex)
	cfg.GuestIndexUser = getEnvString("GUEST_INDEX_USER", fc.GuestIndexUser)
	cfg.DefaultLang = getEnvString("DEFAULT_LANG", orDefault(fc.DefaultLang, "en"))
	cfg.OIDCTimeout = getEnvDuration("OIDC_TIMEOUT", 10*time.Second)
	cfg.CookieHarden = getEnvBool("COOKIE_HARDEN", false)
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HealthcheckAddr はローカルのサーバーに到達するための host:port を返す。
// 待ち受け設定だけを読むため、OpenID Connectなどの必須項目がなくてもよい。
// 全インターフェースで待ち受ける場合はlocalhostを使う。
func HealthcheckAddr(path string) (string, error) {
	fc, err := readFile(path)
	if err != nil {
		return "", err
	}
	host, port := listenSettings(fc)
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		host = "localhost"
	}
	return net.JoinHostPort(strings.Trim(host, "[]"), port), nil
}

// readFile はpath、空ならWEEKLY_CONFIGの設定ファイルを読む。どちらも空ならゼロ値を返す。
func readFile(path string) (fileConfig, error) {
	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path == "" {
		return fileConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	fc, err := parseFile(data)
	if err != nil {
		return fileConfig{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return fc, nil
}

// listenSettings は待ち受けアドレスとポートを返す。環境変数がファイルより優先する。
func listenSettings(fc fileConfig) (string, string) {
	port := defaultPort
	if fc.ListenPort != nil {
		port = strconv.Itoa(*fc.ListenPort)
	}
	return getEnvString("LISTEN_ADDRESS", fc.ListenAddress), getEnvString("SERVER_PORT", port)
}

func parseFile(data []byte) (fileConfig, error) {
	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return fileConfig{}, err
	}
	return fc, nil
}

func (c *Config) validate() error {
	switch c.GuestIndex {
	case "":
	case GuestIndexUserWeekly:
		if c.GuestIndexUser == "" {
			return fmt.Errorf("guest-index %q requires guest-index-user", GuestIndexUserWeekly)
		}
	default:
		return fmt.Errorf("invalid guest-index: %q", c.GuestIndex)
	}

	port, err := strconv.Atoi(c.ServerPort)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %q", c.ServerPort)
	}
	return nil
}

func orDefault(v, defaultVal string) string {
	if v != "" {
		return v
	}
	return defaultVal
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
