package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"labbooking-backend/models"
)

var DB *gorm.DB

func envOrDefault(key, def string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	return value
}

func mysqlDSNFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	user := u.User.Username()
	pass, _ := u.User.Password()
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "3306"
	}

	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return "", fmt.Errorf("mysql url missing database name")
	}

	q := u.Query()
	if q.Get("charset") == "" {
		q.Set("charset", "utf8mb4")
	}
	if q.Get("parseTime") == "" {
		q.Set("parseTime", "True")
	}
	if q.Get("loc") == "" {
		q.Set("loc", "Local")
	}

	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?%s", user, pass, host, port, dbName, q.Encode()), nil
}

func resolveMySQLDSN() (string, error) {
	raw := strings.TrimSpace(os.Getenv("MYSQL_URL"))
	if raw == "" {
		raw = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}

	if raw != "" {
		if strings.HasPrefix(raw, "mysql://") {
			return mysqlDSNFromURL(raw)
		}
		return raw, nil
	}

	user := envOrDefault("DB_USER", "root")
	pass := envOrDefault("DB_PASS", "")
	host := envOrDefault("DB_HOST", "127.0.0.1")
	port := envOrDefault("DB_PORT", "3306")
	dbName := envOrDefault("DB_NAME", "labbooking_db")

	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, pass, host, port, dbName,
	), nil
}

// SeedDatabase ensures a default admin, a demo infrastructure with its
// question set, and a manager assignment exist. Safe to run on every boot.
func SeedDatabase() {
	// ---------------- Admins ----------------
	var adminCount int64
	DB.Model(&models.Admin{}).Count(&adminCount)
	if adminCount == 0 {
		hash, err := bcrypt.GenerateFromPassword([]byte(envOrDefault("SEED_ADMIN_PASSWORD", "admin123")), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("warning: failed to hash default admin password: %v", err)
		} else {
			admin := models.Admin{
				FullName: "Admin User",
				Username: "admin@lab.local",
				Password: string(hash),
			}
			if err := DB.Create(&admin).Error; err != nil {
				log.Printf("warning: failed to create default admin: %v", err)
			} else {
				log.Println("Default admin seeded")
			}
		}
	}

	// ---------------- Infrastructures ----------------
	var infraCount int64
	DB.Model(&models.Infrastructure{}).Count(&infraCount)
	if infraCount == 0 {
		maxMinutes := 240
		infra := models.Infrastructure{
			Name:              "Electron Microscope A",
			Description:       "Demo instrument seeded for local development",
			Location:          "Building 2, Room 014",
			Active:            true,
			MaxBookingMinutes: &maxMinutes,
		}
		if err := DB.Create(&infra).Error; err != nil {
			log.Printf("warning: failed to seed infrastructure: %v", err)
		} else {
			questions := []models.QuestionDefinition{
				{InfrastructureID: infra.ID, Text: "Project name", Type: models.QuestionText, Required: true, SortOrder: 1},
				{InfrastructureID: infra.ID, Text: "Sample count", Type: models.QuestionNumber, Required: true, SortOrder: 2},
				{InfrastructureID: infra.ID, Text: "Safety training certificate", Type: models.QuestionDocument, Required: false, SortOrder: 3},
			}
			if err := DB.Create(&questions).Error; err != nil {
				log.Printf("warning: failed to seed questions: %v", err)
			}

			assignment := models.ManagerAssignment{
				ManagerEmail:     envOrDefault("SEED_MANAGER_EMAIL", "manager@lab.local"),
				InfrastructureID: infra.ID,
			}
			if err := DB.Create(&assignment).Error; err != nil {
				log.Printf("warning: failed to seed manager assignment: %v", err)
			}
			log.Println("Demo infrastructure seeded")
		}
	}
}

func ConnectDatabase() error {
	dsn, err := resolveMySQLDSN()
	if err != nil {
		return err
	}

	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Warn,
			Colorful:      true,
		},
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: newLogger})
	if err != nil {
		return err
	}

	DB = db

	// AutoMigrate in parent->child order
	if err := DB.AutoMigrate(
		&models.Admin{},
		&models.ManagerAssignment{},
		&models.Infrastructure{},
		&models.QuestionDefinition{},
		&models.SlotRecord{},
		&models.Answer{},
		&models.CapabilityToken{},
		&models.GuestClaimIntent{},
	); err != nil {
		return err
	}

	SeedDatabase()
	return nil
}
