package core

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Debug        bool
		TestMode     bool
		Env          string
		Build        string
		AppName      string
		SecretKey    string
		WorkDir      string
		RollbarToken string
		Server       ServerConfig
		Auth         AuthConfig
		Audit        AuditConfig
		Database     DatabaseConfig
	}

	ServerConfig struct {
		Host                      string
		Port                      string
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	AuthConfig struct {
		MaxLoginAttempts int
		LockoutDuration  time.Duration
		BcryptCost       int
	}

	AuditConfig struct {
		// CriticalEvents lists audit events whose sink write must succeed
		// before the operation they accompany is allowed to proceed.
		CriticalEvents []string
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          string
		DisableTLS    bool
	}
)

func (dc DatabaseConfig) Address() string {
	return dc.Host + ":" + dc.Port
}

// NewConfig loads the app configuration from defaults, an optional
// config/.env.<env> file and environment variables (in increasing precedence).
func NewConfig() (*Config, error) {
	conf := viper.New()
	conf.SetTypeByDefaultValue(true)

	// defaults
	conf.SetDefault("debug", true)
	conf.SetDefault("appName", "StudyStreaks")
	conf.SetDefault("secretKey", "x8#urp-k3y$+wq=dz&unb2(h!x)#*c2(#yg4h^$cegm2emy")
	conf.SetDefault("jwtExpirationDelta", 24*time.Hour)
	conf.SetDefault("jwtRefreshExpirationDelta", time.Hour)
	conf.SetDefault("maxLoginAttempts", 5)
	conf.SetDefault("lockoutDuration", 15*time.Minute)
	conf.SetDefault("bcryptCost", 12)
	conf.SetDefault("criticalAuditEvents", []string{"data_export", "bulk_delete"})
	conf.SetDefault("serverHost", "localhost")
	conf.SetDefault("serverPort", "8000")
	conf.SetDefault("dbEngine", "postgres")
	conf.SetDefault("dbName", "studystreaks")
	conf.SetDefault("dbHost", "localhost")
	conf.SetDefault("dbPort", "5432")
	conf.SetDefault("dbDisableTLS", true)

	env := os.Getenv("ENV") // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	conf.SetEnvPrefix(env)

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	conf.AutomaticEnv()

	return &Config{
		Debug:        conf.GetBool("debug"),
		TestMode:     env == "TEST",
		Env:          env,
		Build:        conf.GetString("build"),
		AppName:      conf.GetString("appName"),
		SecretKey:    conf.GetString("secretKey"),
		WorkDir:      wd,
		RollbarToken: conf.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:                      conf.GetString("serverHost"),
			Port:                      conf.GetString("serverPort"),
			JWTExpirationDelta:        conf.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: conf.GetDuration("jwtRefreshExpirationDelta"),
		},
		Auth: AuthConfig{
			MaxLoginAttempts: conf.GetInt("maxLoginAttempts"),
			LockoutDuration:  conf.GetDuration("lockoutDuration"),
			BcryptCost:       conf.GetInt("bcryptCost"),
		},
		Audit: AuditConfig{
			CriticalEvents: conf.GetStringSlice("criticalAuditEvents"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("dbEngine"),
			Name:          conf.GetString("dbName"),
			User:          conf.GetString("dbUser"),
			Password:      conf.GetString("dbPassword"),
			AdminUser:     conf.GetString("dbAdminUser"),
			AdminPassword: conf.GetString("dbAdminPassword"),
			Host:          conf.GetString("dbHost"),
			Port:          conf.GetString("dbPort"),
			DisableTLS:    conf.GetBool("dbDisableTLS"),
		},
	}, nil
}

// NewTestConfig returns a Config suitable for unit tests: fast password
// hashing and the default lockout policy.
func NewTestConfig() *Config {
	return &Config{
		Debug:     true,
		TestMode:  true,
		Env:       "TEST",
		AppName:   "StudyStreaks",
		SecretKey: "test-secret-key",
		Server: ServerConfig{
			JWTExpirationDelta:        24 * time.Hour,
			JWTRefreshExpirationDelta: time.Hour,
		},
		Auth: AuthConfig{
			MaxLoginAttempts: 5,
			LockoutDuration:  15 * time.Minute,
			BcryptCost:       4, // bcrypt.MinCost
		},
		Audit: AuditConfig{
			CriticalEvents: []string{"data_export", "bulk_delete"},
		},
	}
}

// Getwd walks up from the current working directory until it finds the
// project root (the directory holding go.mod).
// go-test changes the working directory to the test package being run.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if _, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == string(os.PathSeparator) || newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}
