package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
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
		StudentJWTExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		Address  string
		Password string
		DB       int
	}

	CollaborationConfig struct {
		ServerURL string // websocket relay base URL handed to clients
		CodeTTL   time.Duration
	}

	MediaConfig struct {
		Dir     string // local directory serving /api/images, /api/audios & /media
		HostURL string // prefix for local URLs in full MLT exports
	}

	MontageConfig struct {
		Workers   int
		QueueSize int
		JobTTL    time.Duration
	}

	Config struct {
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		WorkDir          string
		FrontendBaseURL  string
		RollbarToken     string
		SendgridApiKey   string
		DefaultFromEmail mail.Address

		Server        ServerConfig
		Database      DatabaseConfig
		Redis         RedisConfig
		Collaboration CollaborationConfig
		Media         MediaConfig
		Montage       MontageConfig
	}
)

// Address returns the "host:port" of the database server.
func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, strconv.Itoa(db.Port))
}

// NewConfig loads the configuration from the environment (and config/.env.<env> if it exists).
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Clap!")
	v.SetDefault("secretKey", "k3l&v-8d#tq0^7hz2!m@5pwx$c+r6n(e9y)uj4a_b1f")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("defaultFromEmail", "Clap! <noreply@localhost>")

	v.SetDefault("serverAddress", ":8000")
	v.SetDefault("serverDebugAddress", ":4000")
	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("studentJwtExpirationDelta", 4*time.Hour)

	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", 5432)
	v.SetDefault("dbName", "clap")
	v.SetDefault("dbUser", "clap")
	v.SetDefault("dbPassword", "clap")
	v.SetDefault("dbAdminUser", "postgres")
	v.SetDefault("dbAdminPassword", "postgres")
	v.SetDefault("dbDisableTLS", true)

	v.SetDefault("redisAddress", "localhost:6379")
	v.SetDefault("redisPassword", "")
	v.SetDefault("redisDB", 0)

	v.SetDefault("collaborationServerURL", "ws://localhost:8000/ws")
	v.SetDefault("collaborationCodeTTL", 4*time.Hour)

	v.SetDefault("mediaDir", "media")
	v.SetDefault("mediaHostURL", "http://localhost:8000")

	v.SetDefault("montageWorkers", 2)
	v.SetDefault("montageQueueSize", 32)
	v.SetDefault("montageJobTTL", 24*time.Hour)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	fromEmail, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatalf("config.defaultFromEmail: %v", err)
	}

	mediaDir := v.GetString("mediaDir")
	if !filepath.IsAbs(mediaDir) {
		mediaDir = filepath.Join(workDir, mediaDir)
	}

	return &Config{
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		WorkDir:          workDir,
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		DefaultFromEmail: *fromEmail,
		Server: ServerConfig{
			Address:                   v.GetString("serverAddress"),
			DebugAddress:              v.GetString("serverDebugAddress"),
			Host:                      v.GetString("serverHost"),
			ShutdownTimeout:           v.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("jwtExpirationDelta"),
			StudentJWTExpirationDelta: v.GetDuration("studentJwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("dbEngine"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetInt("dbPort"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("redisAddress"),
			Password: v.GetString("redisPassword"),
			DB:       v.GetInt("redisDB"),
		},
		Collaboration: CollaborationConfig{
			ServerURL: v.GetString("collaborationServerURL"),
			CodeTTL:   v.GetDuration("collaborationCodeTTL"),
		},
		Media: MediaConfig{
			Dir:     mediaDir,
			HostURL: strings.TrimSuffix(v.GetString("mediaHostURL"), "/"),
		},
		Montage: MontageConfig{
			Workers:   v.GetInt("montageWorkers"),
			QueueSize: v.GetInt("montageQueueSize"),
			JobTTL:    v.GetDuration("montageJobTTL"),
		},
	}
}

// NewTestConfig returns a Config suitable for tests: no .env lookup, no external services.
func NewTestConfig() *Config {
	return &Config{
		Env:              "TEST",
		Build:            "test",
		TestMode:         true,
		AppName:          "Clap!",
		SecretKey:        "secret",
		FrontendBaseURL:  "http://localhost:3000",
		DefaultFromEmail: mail.Address{Name: "Clap!", Address: "noreply@localhost"},
		Server: ServerConfig{
			Host:                      "localhost",
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        10 * time.Minute,
			StudentJWTExpirationDelta: 10 * time.Minute,
		},
		Collaboration: CollaborationConfig{
			ServerURL: "ws://localhost:8000/ws",
			CodeTTL:   time.Hour,
		},
		Media: MediaConfig{
			HostURL: "http://localhost:8000",
		},
		Montage: MontageConfig{
			Workers:   1,
			QueueSize: 4,
			JobTTL:    time.Hour,
		},
	}
}
