package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/vidrag-backend/internal/pkg/envutil"
	"github.com/yungbote/vidrag-backend/internal/pkg/logger"
)

// Config selects the store. DSN wins over the discrete postgres fields;
// SQLitePath is used only when no postgres host is configured.
type Config struct {
	DSN        string `yaml:"dsn"`
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Name       string `yaml:"name"`
	SQLitePath string `yaml:"sqlite_path"`
}

func ConfigFromEnv(base Config) Config {
	cfg := base
	cfg.DSN = envutil.String("DATABASE_DSN", cfg.DSN)
	cfg.Host = envutil.String("POSTGRES_HOST", cfg.Host)
	cfg.Port = envutil.String("POSTGRES_PORT", firstNonEmpty(cfg.Port, "5432"))
	cfg.User = envutil.String("POSTGRES_USER", firstNonEmpty(cfg.User, "postgres"))
	cfg.Password = envutil.String("POSTGRES_PASSWORD", cfg.Password)
	cfg.Name = envutil.String("POSTGRES_NAME", firstNonEmpty(cfg.Name, "vidrag"))
	cfg.SQLitePath = envutil.String("SQLITE_PATH", cfg.SQLitePath)
	return cfg
}

type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewService(cfg Config, logg *logger.Logger) (*Service, error) {
	serviceLog := logg.With("service", "DBService")

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	dialector, driver := dialectorFor(cfg)
	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	serviceLog.Info("Database connected", "driver", driver)
	return &Service{db: db, log: serviceLog}, nil
}

func dialectorFor(cfg Config) (gorm.Dialector, string) {
	if dsn := strings.TrimSpace(cfg.DSN); dsn != "" {
		return postgres.Open(dsn), "postgres"
	}
	if strings.TrimSpace(cfg.Host) == "" && strings.TrimSpace(cfg.SQLitePath) != "" {
		return sqlite.Open(cfg.SQLitePath), "sqlite"
	}
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.User,
		cfg.Password,
		firstNonEmpty(cfg.Host, "localhost"),
		cfg.Port,
		cfg.Name,
	)
	return postgres.Open(dsn), "postgres"
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
