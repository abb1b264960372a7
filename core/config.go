package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Address                   string
		DebugAddress              string
		Host                      string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string // postgres | mongodb | memory
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		MongoURI      string
	}

	MailConfig struct {
		Backend          string // console | smtp | sendgrid
		SMTPHost         string
		SMTPPort         int
		SMTPUser         string
		SMTPPassword     string
		SMTPSkipVerify   bool
		SendgridAPIKey   string
		DefaultFromEmail string
	}

	Config struct {
		Env          string
		Build        string
		Debug        bool
		TestMode     bool
		AppName      string
		SecretKey    string
		BaseURL      string // used to build the links sent to supervisors
		RollbarToken string

		Server   ServerConfig
		Database DatabaseConfig
		Mail     MailConfig
	}
)

// Address returns the "host:port" of the database server.
func (c DatabaseConfig) Address() string {
	return c.Host + ":" + c.Port
}

// DefaultFromEmail parses the configured sender address.
func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.Mail.DefaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: c.Mail.DefaultFromEmail}
	}
	return *addr
}

// NewConfig loads the app configuration from the environment.
// ENV selects the environment (DEV (default), TEST, QA, PROD) and the variables prefix, eg. DEV_DATABASE_NAME.
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", env == "DEV" || env == "TEST")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Weeklog")
	v.SetDefault("secretKey", "w33k-l0g)s3cr3t$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("baseURL", "http://localhost:8000")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugAddress", ":4000")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "weeklog")
	v.SetDefault("database.user", "weeklog")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", env == "DEV" || env == "TEST")
	v.SetDefault("database.mongoURI", "mongodb://localhost:27017")

	v.SetDefault("mail.backend", "console")
	v.SetDefault("mail.smtpHost", "smtp.gmail.com")
	v.SetDefault("mail.smtpPort", 587)
	v.SetDefault("mail.smtpUser", "")
	v.SetDefault("mail.smtpPassword", "")
	v.SetDefault("mail.smtpSkipVerify", false)
	v.SetDefault("mail.sendgridAPIKey", "")
	v.SetDefault("mail.defaultFromEmail", "Weeklog <noreply@localhost>")

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Config{
		Env:          env,
		Build:        v.GetString("build"),
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		AppName:      v.GetString("appName"),
		SecretKey:    v.GetString("secretKey"),
		BaseURL:      strings.TrimRight(v.GetString("baseURL"), "/"),
		RollbarToken: v.GetString("rollbarToken"),
		Server: ServerConfig{
			Address:                   v.GetString("server.address"),
			DebugAddress:              v.GetString("server.debugAddress"),
			Host:                      v.GetString("server.host"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        strings.ToLower(v.GetString("database.engine")),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			MongoURI:      v.GetString("database.mongoURI"),
		},
		Mail: MailConfig{
			Backend:          strings.ToLower(v.GetString("mail.backend")),
			SMTPHost:         v.GetString("mail.smtpHost"),
			SMTPPort:         v.GetInt("mail.smtpPort"),
			SMTPUser:         v.GetString("mail.smtpUser"),
			SMTPPassword:     v.GetString("mail.smtpPassword"),
			SMTPSkipVerify:   v.GetBool("mail.smtpSkipVerify"),
			SendgridAPIKey:   v.GetString("mail.sendgridAPIKey"),
			DefaultFromEmail: v.GetString("mail.defaultFromEmail"),
		},
	}
}

// NewTestConfig returns the configuration used by tests.
func NewTestConfig() *Config {
	return &Config{
		Env:       "TEST",
		Build:     "test",
		Debug:     false,
		TestMode:  true,
		AppName:   "Weeklog",
		SecretKey: "secret",
		BaseURL:   "http://weeklog.test",
		Server: ServerConfig{
			Address:                   ":0",
			Host:                      "localhost",
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		Database: DatabaseConfig{Engine: "memory"},
		Mail: MailConfig{
			Backend:          "console",
			DefaultFromEmail: "Weeklog <noreply@localhost>",
		},
	}
}
