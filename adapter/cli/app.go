package cli

import (
	"github.com/google/uuid"

	billingApp "github.com/felixgeelhaar/saffron/internal/billing/application"
	identityDomain "github.com/felixgeelhaar/saffron/internal/identity/domain"
)

// App holds the CLI application dependencies.
type App struct {
	Processor      *billingApp.Processor
	QueryService   *billingApp.QueryService
	UsageRecorder  *billingApp.UsageRecorder
	BillingService *billingApp.Service
	Users          identityDomain.UserRepository

	// Current user (configured per environment). Commands accept --user to
	// act on anyone else.
	CurrentUserID uuid.UUID
}

// NewApp creates a new CLI application with the provided services.
func NewApp(
	processor *billingApp.Processor,
	queryService *billingApp.QueryService,
	usageRecorder *billingApp.UsageRecorder,
	billingService *billingApp.Service,
	users identityDomain.UserRepository,
) *App {
	return &App{
		Processor:      processor,
		QueryService:   queryService,
		UsageRecorder:  usageRecorder,
		BillingService: billingService,
		Users:          users,
		CurrentUserID:  uuid.Nil,
	}
}

// SetCurrentUserID updates the current user ID.
func (a *App) SetCurrentUserID(id uuid.UUID) {
	a.CurrentUserID = id
}

// app is the global CLI application instance
var app *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	app = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return app
}
