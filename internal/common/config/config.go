package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type DB struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Pass     string `yaml:"password"`
	Name     string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
}

// DSN builds a postgres:// URL for pgx.
func (d DB) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", d.User, d.Pass, d.Host, d.Port, d.Name, d.SSLMode)
}

type MQ struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	User    string `yaml:"user"`
	Pass    string `yaml:"password"`
	VHost   string `yaml:"vhost"`
	UseTLS  bool   `yaml:"tls"`
}

type HTTP struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Auth struct {
	Secret string `yaml:"jwt_secret"`
}

type Storage struct {
	Driver   string `yaml:"driver"` // postgres | memory
	Migrate  bool   `yaml:"migrate"`
	MenuFile string `yaml:"menu_file"` // memory driver only
}

type Kitchen struct {
	WorkerName string                   `yaml:"worker_name"`
	StaffID    string                   `yaml:"staff_id"`
	Prefetch   int                      `yaml:"prefetch"`
	CookTime   time.Duration            `yaml:"cook_time"`
	Stations   map[string]time.Duration `yaml:"stations"`
}

type Orders struct {
	AllowNoBillableCompletion bool `yaml:"allow_no_billable_completion"`
}

type App struct {
	Database DB      `yaml:"database"`
	Rabbit   MQ      `yaml:"rabbitmq"`
	HTTP     HTTP    `yaml:"http"`
	Auth     Auth    `yaml:"auth"`
	Storage  Storage `yaml:"storage"`
	Kitchen  Kitchen `yaml:"kitchen"`
	Orders   Orders  `yaml:"orders"`
}

func defaults() App {
	return App{
		Database: DB{Port: 5432, SSLMode: "disable", MaxConns: 10},
		Rabbit:   MQ{Enabled: true, Port: 5672, VHost: "/"},
		HTTP: HTTP{
			Port:            3000,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Storage: Storage{Driver: "postgres", Migrate: true},
		Kitchen: Kitchen{Prefetch: 1, CookTime: 8 * time.Second},
	}
}

// Load reads the YAML file at path, then .env, then environment overrides.
// A missing .env is not an error.
func Load(path string) (App, error) {
	a := defaults()
	b, err := os.ReadFile(path)
	if err != nil {
		return App{}, err
	}
	if err := yaml.Unmarshal(b, &a); err != nil {
		return App{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return App{}, fmt.Errorf("load .env: %w", err)
	}
	applyEnv(&a)
	if err := a.Validate(); err != nil {
		return App{}, err
	}
	return a, nil
}

func applyEnv(a *App) {
	setString(&a.Database.Host, "DATABASE_HOST")
	setInt(&a.Database.Port, "DATABASE_PORT")
	setString(&a.Database.User, "DATABASE_USER")
	setString(&a.Database.Pass, "DATABASE_PASSWORD")
	setString(&a.Database.Name, "DATABASE_NAME")
	setString(&a.Rabbit.Host, "RABBITMQ_HOST")
	setInt(&a.Rabbit.Port, "RABBITMQ_PORT")
	setString(&a.Rabbit.User, "RABBITMQ_USER")
	setString(&a.Rabbit.Pass, "RABBITMQ_PASSWORD")
	setString(&a.Auth.Secret, "JWT_SECRET_KEY")
}

func (a App) Validate() error {
	var errs []error
	if a.Storage.Driver != "postgres" && a.Storage.Driver != "memory" {
		errs = append(errs, fmt.Errorf("storage.driver must be postgres or memory, got %q", a.Storage.Driver))
	}
	if a.Storage.Driver == "postgres" && (a.Database.Host == "" || a.Database.User == "" || a.Database.Name == "") {
		errs = append(errs, errors.New("database config incomplete"))
	}
	if a.Rabbit.Enabled && (a.Rabbit.Host == "" || a.Rabbit.User == "") {
		errs = append(errs, errors.New("rabbitmq config incomplete"))
	}
	if a.Auth.Secret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if a.HTTP.Port <= 0 || a.HTTP.Port >= 65536 {
		errs = append(errs, fmt.Errorf("http.port must be in [1, 65535]: %d", a.HTTP.Port))
	}
	return errors.Join(errs...)
}

// FindConfig returns the first config file that exists.
func FindConfig() (string, error) {
	candidates := []string{"config.yaml", "deploy/config.example.yaml"}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fs.ErrNotExist
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
