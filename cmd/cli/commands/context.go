package commands

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-rota/internal/config"
	"github.com/jakechorley/volunteer-rota/pkg/core/model"
	"github.com/jakechorley/volunteer-rota/pkg/core/services"
	"github.com/jakechorley/volunteer-rota/pkg/db"
	"github.com/jakechorley/volunteer-rota/pkg/notify"
)

// Migrator applies the database schema
type Migrator interface {
	RunMigrations(ctx context.Context) error
}

// AppContext holds the application dependencies shared across all commands
type AppContext struct {
	Cfg      *config.Config
	Location *time.Location
	Database db.Database
	Migrator Migrator
	Gateway  notify.Gateway
	Swaps    *services.SwapCoordinator
	Logger   *zap.Logger
	Ctx      context.Context

	// CallerID is the member the CLI acts as
	CallerID string

	// GroupID is the group commands operate on
	GroupID string

	// Now defaults to time.Now
	Now func() time.Time
}

func (app *AppContext) now() time.Time {
	if app.Now != nil {
		return app.Now()
	}
	return time.Now()
}

// today is the current date in the configured timezone
func (app *AppContext) today() string {
	loc := app.Location
	if loc == nil {
		loc = time.UTC
	}
	return app.now().In(loc).Format(model.DateLayout)
}
