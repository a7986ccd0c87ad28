package identity

import (
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/DrJLabs/Forgetful-sub001/internal/models"
)

// Registry errors surfaced to the API layer.
var (
	ErrAppExists       = errors.New("app name already registered")
	ErrAppNotFound     = errors.New("app not found")
	ErrBadCredentials  = errors.New("app credentials rejected")
	ErrAppSuspended    = errors.New("app is suspended")
	ErrMissingRequired = errors.New("app name, secret and default owner are required")
)

// Registry persists the bridging apps allowed to talk to the service. Each
// app carries the default owner id its sessions resolve to when no explicit
// owner is supplied; the resolver loads these at startup.
type Registry struct {
	db *gorm.DB
}

// NewRegistry wires a registry and migrates its table.
func NewRegistry(db *gorm.DB) (*Registry, error) {
	if err := db.AutoMigrate(&models.App{}); err != nil {
		return nil, fmt.Errorf("failed to migrate app registry: %w", err)
	}
	return &Registry{db: db}, nil
}

// Register creates a new app. The secret is stored as a bcrypt hash and
// never leaves this package in clear text.
func (r *Registry) Register(name, secret, defaultOwner string, metadata map[string]interface{}) (*models.App, error) {
	if name == "" || secret == "" || defaultOwner == "" {
		return nil, ErrMissingRequired
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash app secret: %w", err)
	}

	app := &models.App{
		Name:         name,
		SecretHash:   string(hash),
		DefaultOwner: defaultOwner,
		Status:       models.AppActive,
	}
	if metadata != nil {
		meta, err := encodeMetadata(metadata)
		if err != nil {
			return nil, err
		}
		app.Metadata = meta
	}

	if err := r.db.Create(app).Error; err != nil {
		// GetDB enables gorm error translation, so driver duplicate-key
		// errors arrive as gorm.ErrDuplicatedKey regardless of backend.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAppExists
		}
		return nil, fmt.Errorf("failed to register app %s: %w", name, err)
	}
	return app, nil
}

// Authenticate checks an app's secret and returns the app when it matches.
// The error is identical for unknown names and wrong secrets.
func (r *Registry) Authenticate(name, secret string) (*models.App, error) {
	app, err := r.GetByName(name)
	if err != nil {
		return nil, ErrBadCredentials
	}
	if app.Status != models.AppActive {
		return nil, ErrAppSuspended
	}
	if err := bcrypt.CompareHashAndPassword([]byte(app.SecretHash), []byte(secret)); err != nil {
		return nil, ErrBadCredentials
	}
	return app, nil
}

// GetByName returns one app by its unique name.
func (r *Registry) GetByName(name string) (*models.App, error) {
	var app models.App
	if err := r.db.Where("name = ?", name).First(&app).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAppNotFound
		}
		return nil, fmt.Errorf("failed to load app %s: %w", name, err)
	}
	return &app, nil
}

// ListActive returns every active app, for seeding the resolver at startup.
func (r *Registry) ListActive() ([]models.App, error) {
	var apps []models.App
	if err := r.db.Where("status = ?", models.AppActive).Find(&apps).Error; err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}
	return apps, nil
}

// SeedResolver registers every active app's default owner with the resolver.
func (r *Registry) SeedResolver(resolver *Resolver) error {
	apps, err := r.ListActive()
	if err != nil {
		return err
	}
	for _, app := range apps {
		resolver.RegisterProtocol(app.Name, app.DefaultOwner)
	}
	return nil
}

func encodeMetadata(metadata map[string]interface{}) (datatypes.JSON, error) {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode app metadata: %w", err)
	}
	return datatypes.JSON(raw), nil
}
