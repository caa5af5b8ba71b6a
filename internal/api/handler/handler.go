package handler

import (
	"log/slog"

	"github.com/iBHunt91/FossaWorkV2-sub002/internal/automation/orchestrator"
)

// Dependencies carries everything the handlers need.
type Dependencies struct {
	Logger  *slog.Logger
	Service *orchestrator.Orchestrator
}

// AutomationHandler serves the automation-job endpoints.
type AutomationHandler struct {
	logger  *slog.Logger
	service *orchestrator.Orchestrator
}

// NewAutomationHandler creates the handler.
func NewAutomationHandler(deps *Dependencies) *AutomationHandler {
	return &AutomationHandler{
		logger:  deps.Logger,
		service: deps.Service,
	}
}
