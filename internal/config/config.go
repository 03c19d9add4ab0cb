// Package config defines the configuration contract and handles loading and validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeyBotToken      = "BOT_TOKEN"
	KeyStoreDriver   = "STORE_DRIVER"
	KeyMySQLHost     = "MYSQL_HOST"
	KeyMySQLPort     = "MYSQL_PORT"
	KeyMySQLUser     = "MYSQL_USER"
	KeyMySQLPassword = "MYSQL_PASSWORD"
	KeyMySQLDatabase = "MYSQL_DATABASE"
	KeyMongoURI      = "MONGO_URI"
	KeyMongoDB       = "MONGO_DB"
	KeyTargetChatID  = "CHAT_ID"
	KeyAppEnv        = "APP_ENV"
	KeyLogLevel      = "LOG_LEVEL"
	KeyHTTPPort      = "HTTP_PORT"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Supported account store drivers.
	DriverMySQL = "mysql"
	DriverMongo = "mongo"

	// Defaults for optional settings.
	DefaultAppEnv      = EnvProduction
	DefaultLogLevel    = "info"
	DefaultHTTPPort    = 8080
	DefaultStoreDriver = DriverMySQL
	DefaultMySQLPort   = 3306
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the bot must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeyBotToken,
		Example:     "123:ABC",
		Required:    true,
		Description: "Telegram Bot Token issued by BotFather.",
	},
	{
		Key:         KeyStoreDriver,
		Example:     DriverMySQL + " / " + DriverMongo,
		Default:     DefaultStoreDriver,
		Description: "Account store backend.",
	},
	{
		Key:         KeyMySQLHost,
		Example:     "localhost",
		Description: "MySQL host.",
		Notes:       "Required when " + KeyStoreDriver + "=" + DriverMySQL + ".",
	},
	{
		Key:         KeyMySQLPort,
		Example:     strconv.Itoa(DefaultMySQLPort),
		Default:     strconv.Itoa(DefaultMySQLPort),
		Description: "MySQL port.",
	},
	{
		Key:         KeyMySQLUser,
		Example:     "retrodrop",
		Description: "MySQL user.",
		Notes:       "Required when " + KeyStoreDriver + "=" + DriverMySQL + ".",
	},
	{
		Key:         KeyMySQLPassword,
		Example:     "secret",
		Description: "MySQL password.",
	},
	{
		Key:         KeyMySQLDatabase,
		Example:     "retrodropsystem",
		Description: "MySQL database name.",
		Notes:       "Required when " + KeyStoreDriver + "=" + DriverMySQL + ".",
	},
	{
		Key:         KeyMongoURI,
		Example:     "mongodb://localhost:27017",
		Description: "MongoDB connection string.",
		Notes:       "Required when " + KeyStoreDriver + "=" + DriverMongo + ".",
	},
	{
		Key:         KeyMongoDB,
		Example:     "retrodrop",
		Description: "MongoDB database name.",
		Notes:       "Required when " + KeyStoreDriver + "=" + DriverMongo + ".",
	},
	{
		Key:         KeyTargetChatID,
		Example:     "-1001234567890",
		Description: "Fixed broadcast chat for leaderboard posts and sender notices.",
		Notes:       "Leave unset to reply in the originating chat.",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP health/diagnostics port.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	BotToken      string
	StoreDriver   string
	MySQLHost     string
	MySQLPort     int
	MySQLUser     string
	MySQLPassword string
	MySQLDatabase string
	MongoURI      string
	MongoDB       string
	TargetChatID  int64
	AppEnv        string
	LogLevel      string
	HTTPPort      int
}

// Load resolves configuration from the environment (with optional dotenv in development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:        firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		BotToken:      strings.TrimSpace(os.Getenv(KeyBotToken)),
		StoreDriver:   firstNonEmpty(normalizeEnv(os.Getenv(KeyStoreDriver)), DefaultStoreDriver),
		MySQLHost:     strings.TrimSpace(os.Getenv(KeyMySQLHost)),
		MySQLPort:     DefaultMySQLPort,
		MySQLUser:     strings.TrimSpace(os.Getenv(KeyMySQLUser)),
		MySQLPassword: os.Getenv(KeyMySQLPassword),
		MySQLDatabase: strings.TrimSpace(os.Getenv(KeyMySQLDatabase)),
		MongoURI:      strings.TrimSpace(os.Getenv(KeyMongoURI)),
		MongoDB:       strings.TrimSpace(os.Getenv(KeyMongoDB)),
		LogLevel:      firstNonEmpty(strings.TrimSpace(os.Getenv(KeyLogLevel)), DefaultLogLevel),
		HTTPPort:      DefaultHTTPPort,
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}
	if err := validateStoreDriver(cfg.StoreDriver); err != nil {
		return Config{}, err
	}

	missing := make([]string, 0)

	if cfg.BotToken == "" {
		missing = append(missing, KeyBotToken)
	}

	switch cfg.StoreDriver {
	case DriverMySQL:
		if cfg.MySQLHost == "" {
			missing = append(missing, KeyMySQLHost)
		}
		if cfg.MySQLUser == "" {
			missing = append(missing, KeyMySQLUser)
		}
		if cfg.MySQLDatabase == "" {
			missing = append(missing, KeyMySQLDatabase)
		}
	case DriverMongo:
		if cfg.MongoURI == "" {
			missing = append(missing, KeyMongoURI)
		}
		if cfg.MongoDB == "" {
			missing = append(missing, KeyMongoDB)
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	if cfg.StoreDriver == DriverMongo && !validMongoURI(cfg.MongoURI) {
		return Config{}, fmt.Errorf("invalid %s: must start with mongodb:// or mongodb+srv://", KeyMongoURI)
	}

	if port, ok, err := parsePort(KeyMySQLPort); err != nil {
		return Config{}, err
	} else if ok {
		cfg.MySQLPort = port
	}

	if port, ok, err := parsePort(KeyHTTPPort); err != nil {
		return Config{}, err
	} else if ok {
		cfg.HTTPPort = port
	}

	chatRaw := strings.TrimSpace(os.Getenv(KeyTargetChatID))
	if chatRaw != "" {
		chatID, parseErr := strconv.ParseInt(chatRaw, 10, 64)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyTargetChatID, parseErr)
		}
		cfg.TargetChatID = chatID
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// FormatRedacted renders the resolved configuration with secrets masked.
func FormatRedacted(cfg Config) string {
	lines := []string{
		"bot_token: " + maskToken(cfg.BotToken),
		"store_driver: " + cfg.StoreDriver,
	}

	switch cfg.StoreDriver {
	case DriverMongo:
		lines = append(lines,
			"mongo_uri: "+redactURI(cfg.MongoURI),
			"mongo_db: "+cfg.MongoDB,
		)
	default:
		password := ""
		if cfg.MySQLPassword != "" {
			password = "redacted"
		}
		lines = append(lines,
			"mysql_host: "+cfg.MySQLHost,
			"mysql_port: "+strconv.Itoa(cfg.MySQLPort),
			"mysql_user: "+cfg.MySQLUser,
			"mysql_password: "+password,
			"mysql_database: "+cfg.MySQLDatabase,
		)
	}

	target := "none"
	if cfg.TargetChatID != 0 {
		target = strconv.FormatInt(cfg.TargetChatID, 10)
	}

	lines = append(lines,
		"target_chat_id: "+target,
		"app_env: "+cfg.AppEnv,
		"log_level: "+cfg.LogLevel,
		"http_port: "+strconv.Itoa(cfg.HTTPPort),
	)

	return strings.Join(lines, "\n")
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func validateStoreDriver(driver string) error {
	if driver == DriverMySQL || driver == DriverMongo {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyStoreDriver, DriverMySQL, DriverMongo)
}

func validMongoURI(uri string) bool {
	return strings.HasPrefix(uri, "mongodb://") || strings.HasPrefix(uri, "mongodb+srv://")
}

func parsePort(key string) (int, bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false, nil
	}

	port, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s: %w", key, err)
	}
	if port <= 0 {
		return 0, false, fmt.Errorf("%s must be greater than 0", key)
	}

	return port, true, nil
}

func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return "redacted"
	}

	return token[:4] + "...redacted"
}

// redactURI drops any userinfo segment from a connection string.
func redactURI(uri string) string {
	schemeEnd := strings.Index(uri, "://")
	if schemeEnd < 0 {
		return uri
	}

	rest := uri[schemeEnd+3:]
	hostEnd := strings.IndexAny(rest, "/?")
	authority := rest
	if hostEnd >= 0 {
		authority = rest[:hostEnd]
	}

	at := strings.LastIndex(authority, "@")
	if at < 0 {
		return uri
	}

	return uri[:schemeEnd+3] + rest[at+1:]
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
