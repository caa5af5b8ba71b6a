// Package engine defines the contract with the external browser-automation
// engine and this service's adapters for it. The engine owns all UI
// mechanics; this side only says what to automate and listens for how far it
// got.
package engine

import (
	"context"

	"github.com/iBHunt91/FossaWorkV2-sub002/internal/automation/domain"
)

// UnitConfig is the per-dispenser instruction set handed to the engine for
// one visit run.
type UnitConfig struct {
	UnitNumber    int      `json:"unit_number"`
	Categories    []string `json:"categories"`
	Measured      []string `json:"measured"`
	Unmeasured    []string `json:"unmeasured"`
	Template      string   `json:"template"`
	ProcedureCode string   `json:"procedure_code"`
}

// RunResult is the engine's verdict for one visit automation run.
type RunResult struct {
	Success        bool     `json:"success"`
	UnitsProcessed int      `json:"units_processed"`
	UnitsFailed    int      `json:"units_failed"`
	Errors         []string `json:"errors,omitempty"`
}

// ProgressReport is one asynchronous progress push from the engine, keyed by
// session id.
type ProgressReport struct {
	SessionID   string  `json:"session_id"`
	Phase       string  `json:"phase"`
	Percentage  float64 `json:"percentage"`
	CurrentUnit int     `json:"current_unit,omitempty"`
	Message     string  `json:"message,omitempty"`
}

// Engine is the browser-automation engine as seen from this core. Every call
// may block for an unbounded duration; implementations must honor ctx so a
// cancelled job abandons its in-flight call.
type Engine interface {
	CreateSession(ctx context.Context, sessionID string) error
	Login(ctx context.Context, sessionID string, creds domain.Credentials) (bool, error)
	RunVisitAutomation(ctx context.Context, sessionID, targetURL string, units []UnitConfig) (*RunResult, error)
	CloseSession(ctx context.Context, sessionID string) error
}
