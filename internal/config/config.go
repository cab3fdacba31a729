// Package config assembles the service configuration. Sources are applied
// in increasing priority: built-in defaults, the JSON file named by CONFIG
// (or -c), environment variables (a .env file is loaded first when
// present), and command line flags.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"

	"github.com/patric-chuzhbe/bloglist/internal/models"
)

type Config struct {
	RunAddr               string                   `env:"SERVER_ADDRESS" json:"server_address" validate:"hostname_port"`
	GRPCAddr              string                   `env:"GRPC_SERVER_ADDRESS" json:"grpc_server_address" validate:"omitempty,hostname_port"`
	LogLevel              string                   `env:"LOG_LEVEL" json:"log_level" validate:"loglevel"`
	LogFile               string                   `env:"LOG_FILE" json:"log_file" validate:"omitempty,storagepath"`
	DBFileName            string                   `env:"FILE_STORAGE_PATH" json:"file_storage_path" validate:"omitempty,storagepath"`
	DatabaseDSN           string                   `env:"DATABASE_DSN" json:"database_dsn"`
	DBConnectionTimeout   time.Duration            `env:"DB_CONNECTION_TIMEOUT" json:"-" validate:"gt=0"`
	MigrationsDir         string                   `env:"MIGRATIONS_DIR" json:"migrations_dir"`
	AuthCookieName        string                   `env:"AUTH_COOKIE_NAME" json:"auth_cookie_name"`
	TokenSigningSecretKey string                   `env:"SECRET" json:"secret" validate:"required,base64url"`
	// TokenTTL of zero takes the default; a negative value issues tokens
	// without expiry.
	TokenTTL              time.Duration            `env:"TOKEN_TTL" json:"-"`
	UpdateMode            models.UpdateMode        `env:"UPDATE_MODE" json:"update_mode" validate:"oneof=permissive strict"`
	CreateConsistency     models.CreateConsistency `env:"CREATE_CONSISTENCY" json:"create_consistency" validate:"oneof=none transaction compensate"`
	TrustedSubnet         string                   `env:"TRUSTED_SUBNET" json:"trusted_subnet" validate:"omitempty,cidr"`
	CORSOrigins           []string                 `env:"CORS_ORIGINS" envSeparator:"," json:"cors_origins"`
	PruneDanglingRefs     bool                     `env:"PRUNE_DANGLING_REFS" json:"prune_dangling_refs"`
	PrunerChannelCapacity int                      `env:"PRUNER_CHANNEL_CAPACITY" json:"pruner_channel_capacity" validate:"gt=0"`
	PrunerFlushInterval   time.Duration            `env:"PRUNER_FLUSH_INTERVAL" json:"-" validate:"gt=0"`
	ConfigFile            string                   `env:"CONFIG" json:"-"`

	// SecretGenerated is set when no SECRET was configured and New made up
	// a random one. Tokens then stop verifying after a restart.
	SecretGenerated bool `json:"-"`
}

var defaultConfig = Config{
	RunAddr:               ":3003",
	GRPCAddr:              "",
	LogLevel:              "info",
	DBConnectionTimeout:   10 * time.Second,
	MigrationsDir:         "cmd/bloglist/migrations",
	AuthCookieName:        "auth",
	TokenTTL:              time.Hour,
	UpdateMode:            models.UpdateModePermissive,
	CreateConsistency:     models.CreateConsistencyNone,
	CORSOrigins:           []string{"*"},
	PrunerChannelCapacity: 1024,
	PrunerFlushInterval:   10 * time.Second,
}

// applyDefaults fills every zero-valued field of values from defaults.
func applyDefaults(values *Config, defaults Config) {
	if values.RunAddr == "" {
		values.RunAddr = defaults.RunAddr
	}
	if values.GRPCAddr == "" {
		values.GRPCAddr = defaults.GRPCAddr
	}
	if values.LogLevel == "" {
		values.LogLevel = defaults.LogLevel
	}
	if values.DBConnectionTimeout == 0 {
		values.DBConnectionTimeout = defaults.DBConnectionTimeout
	}
	if values.MigrationsDir == "" {
		values.MigrationsDir = defaults.MigrationsDir
	}
	if values.AuthCookieName == "" {
		values.AuthCookieName = defaults.AuthCookieName
	}
	if values.TokenTTL == 0 {
		values.TokenTTL = defaults.TokenTTL
	}
	if values.UpdateMode == "" {
		values.UpdateMode = defaults.UpdateMode
	}
	if values.CreateConsistency == "" {
		values.CreateConsistency = defaults.CreateConsistency
	}
	if len(values.CORSOrigins) == 0 {
		values.CORSOrigins = defaults.CORSOrigins
	}
	if values.PrunerChannelCapacity == 0 {
		values.PrunerChannelCapacity = defaults.PrunerChannelCapacity
	}
	if values.PrunerFlushInterval == 0 {
		values.PrunerFlushInterval = defaults.PrunerFlushInterval
	}
}

const generatedSecretBytes = 32

// generateSecret returns a random base64url signing key.
func generateSecret() (string, error) {
	key := make([]byte, generatedSecretBytes)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("in internal/config/config.go/generateSecret(): error while `rand.Read()` calling: %w", err)
	}

	return base64.URLEncoding.EncodeToString(key), nil
}

// validateConsistency rejects transactional creates on stores without
// transactions.
func validateConsistency(structLevel validator.StructLevel) {
	values := structLevel.Current().Interface().(Config)
	if values.CreateConsistency == models.CreateConsistencyTransaction && values.DatabaseDSN == "" {
		structLevel.ReportError(values.CreateConsistency, "CreateConsistency", "create_consistency", "transaction_needs_database", "")
	}
}

func validateStoragePath(fieldLevel validator.FieldLevel) bool {
	path := fieldLevel.Field().String()
	info, err := os.Stat(path)
	if err != nil {
		return os.IsNotExist(err)
	}

	return !info.IsDir()
}

func validateLogLevel(fieldLevel validator.FieldLevel) bool {
	_, err := zapcore.ParseLevel(fieldLevel.Field().String())

	return err == nil
}

func (values *Config) validate() error {
	validate := validator.New()

	err := validate.RegisterValidation("loglevel", validateLogLevel)
	if err != nil {
		return err
	}

	err = validate.RegisterValidation("storagepath", validateStoragePath)
	if err != nil {
		return err
	}

	validate.RegisterStructValidation(validateConsistency, Config{})

	return validate.Struct(values)
}

func (values *Config) loadJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("in internal/config/config.go/loadJSON(): error while `os.ReadFile()` calling: %w", err)
	}

	if err := json.Unmarshal(data, values); err != nil {
		return fmt.Errorf("in internal/config/config.go/loadJSON(): error while `json.Unmarshal()` calling: %w", err)
	}

	return nil
}

// flagValues collects command line flags. Only flags actually passed
// override the other sources.
type flagValues struct {
	set    map[string]bool
	values Config
}

func parseFlags(args []string) (*flagValues, error) {
	result := &flagValues{set: map[string]bool{}}
	fs := flag.NewFlagSet("bloglist", flag.ContinueOnError)

	fs.StringVar(&result.values.RunAddr, "a", "", "address and port to run the HTTP server")
	fs.StringVar(&result.values.GRPCAddr, "g", "", "address and port to run the gRPC server")
	fs.StringVar(&result.values.LogLevel, "l", "", "logger level")
	fs.StringVar(&result.values.LogFile, "log-file", "", "file to write rotated JSON logs to")
	fs.StringVar(&result.values.DBFileName, "f", "", "JSON file name with database")
	fs.StringVar(&result.values.DatabaseDSN, "d", "", "A string with the database connection details")
	fs.StringVar(&result.values.MigrationsDir, "migrations", "", "directory with goose migrations")
	fs.StringVar(&result.values.TrustedSubnet, "t", "", "CIDR allowed to read internal stats")
	fs.StringVar((*string)(&result.values.UpdateMode), "update-mode", "", "blog update authorization: permissive or strict")
	fs.StringVar((*string)(&result.values.CreateConsistency), "create-consistency", "", "blog create consistency: none, transaction or compensate")
	fs.DurationVar(&result.values.TokenTTL, "token-ttl", 0, "lifetime of issued tokens, negative disables expiry")
	fs.BoolVar(&result.values.PruneDanglingRefs, "prune", false, "remove deleted blog ids from user blog sets in the background")
	fs.StringVar(&result.values.ConfigFile, "c", "", "JSON configuration file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) {
		result.set[f.Name] = true
	})

	return result, nil
}

func (f *flagValues) applyTo(values *Config) {
	if f.set["a"] {
		values.RunAddr = f.values.RunAddr
	}
	if f.set["g"] {
		values.GRPCAddr = f.values.GRPCAddr
	}
	if f.set["l"] {
		values.LogLevel = f.values.LogLevel
	}
	if f.set["log-file"] {
		values.LogFile = f.values.LogFile
	}
	if f.set["f"] {
		values.DBFileName = f.values.DBFileName
	}
	if f.set["d"] {
		values.DatabaseDSN = f.values.DatabaseDSN
	}
	if f.set["migrations"] {
		values.MigrationsDir = f.values.MigrationsDir
	}
	if f.set["t"] {
		values.TrustedSubnet = f.values.TrustedSubnet
	}
	if f.set["update-mode"] {
		values.UpdateMode = f.values.UpdateMode
	}
	if f.set["create-consistency"] {
		values.CreateConsistency = f.values.CreateConsistency
	}
	if f.set["token-ttl"] {
		values.TokenTTL = f.values.TokenTTL
	}
	if f.set["prune"] {
		values.PruneDanglingRefs = f.values.PruneDanglingRefs
	}
}

type InitOption func(*initOptions)

type initOptions struct {
	disableFlagsParsing bool
}

// WithDisableFlagsParsing skips os.Args. Tests use it.
func WithDisableFlagsParsing(disableFlagsParsing bool) InitOption {
	return func(options *initOptions) {
		options.disableFlagsParsing = disableFlagsParsing
	}
}

func New(optionsProto ...InitOption) (*Config, error) {
	options := &initOptions{
		disableFlagsParsing: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Unable to load .env file: %v", err)
	}

	flags := &flagValues{set: map[string]bool{}}
	if !options.disableFlagsParsing {
		var err error
		flags, err = parseFlags(os.Args[1:])
		if err != nil {
			return nil, err
		}
	}

	values := &Config{}

	configFile := os.Getenv("CONFIG")
	if flags.set["c"] {
		configFile = flags.values.ConfigFile
	}
	if configFile != "" {
		if err := values.loadJSON(configFile); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(values); err != nil {
		return nil, err
	}

	flags.applyTo(values)
	values.ConfigFile = configFile

	applyDefaults(values, defaultConfig)

	if values.TokenSigningSecretKey == "" {
		secret, err := generateSecret()
		if err != nil {
			return nil, err
		}
		values.TokenSigningSecretKey = secret
		values.SecretGenerated = true
	}

	if err := values.validate(); err != nil {
		return nil, err
	}

	return values, nil
}
