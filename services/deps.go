package services

import (
	"referral-ledger/clock"
	"referral-ledger/logging"
	"referral-ledger/monitoring"
	"referral-ledger/store"

	"go.uber.org/zap"
)

// Deps are the collaborators shared by the ledger services. Clock, Log and Settings get
// defaults when left empty; Metrics may stay nil.
type Deps struct {
	Store    store.Store
	Settings *SettingsService
	Clock    clock.Clock
	Log      *zap.Logger
	Metrics  *monitoring.Metrics
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = clock.RealClock{}
	}
	d.Log = logging.OrNop(d.Log)
	if d.Settings == nil {
		d.Settings = NewSettingsService(d.Store, d.Log)
	}
	return d
}
