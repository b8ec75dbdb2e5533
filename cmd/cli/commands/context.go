package commands

import (
	"context"

	"go.uber.org/zap"

	"github.com/streetmed/rounds/internal/config"
	"github.com/streetmed/rounds/pkg/core/services"
	"github.com/streetmed/rounds/pkg/identity"
	"github.com/streetmed/rounds/pkg/notify"
)

// AppContext holds the application dependencies shared across all commands
type AppContext struct {
	Cfg           *config.Config
	Registry      *services.RoundRegistry
	Engine        *services.SignupEngine
	Identity      *identity.Directory
	Notifications *notify.Dispatcher
	Logger        *zap.Logger
	Ctx           context.Context
}
