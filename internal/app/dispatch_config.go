package app

import (
	"strings"
	"time"

	"github.com/examcell/smartboard/internal/notify"
)

const (
	PacerBatch = "batch"
	PacerRate  = "rate"
	PacerNone  = "none"
)

// DispatchConfig selects how the notification dispatcher paces sends.
type DispatchConfig struct {
	Pacer         string        `mapstructure:"pacer"`
	BatchSize     int           `mapstructure:"batch_size"`
	BatchPause    time.Duration `mapstructure:"batch_pause"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
}

// InstitutionConfig names the sender of exam hall notices.
type InstitutionConfig struct {
	ShortName string `mapstructure:"short_name"`
	Name      string `mapstructure:"name"`
	Office    string `mapstructure:"office"`
	Domain    string `mapstructure:"domain"`
}

// NewPacer builds the configured pacer. Unknown names fall back to batching.
func (c DispatchConfig) NewPacer() notify.Pacer {
	switch strings.ToLower(strings.TrimSpace(c.Pacer)) {
	case PacerRate:
		return notify.NewRatePacer(c.RatePerSecond, c.Burst)
	case PacerNone:
		return notify.NoPacer
	default:
		return notify.NewBatchPacer(c.BatchSize, c.BatchPause)
	}
}

// Institution converts the settings, filling blanks from the defaults.
func (c InstitutionConfig) Institution() notify.Institution {
	inst := notify.DefaultInstitution
	if v := strings.TrimSpace(c.ShortName); v != "" {
		inst.ShortName = v
	}
	if v := strings.TrimSpace(c.Name); v != "" {
		inst.Name = v
	}
	if v := strings.TrimSpace(c.Office); v != "" {
		inst.Office = v
	}
	if v := strings.TrimSpace(c.Domain); v != "" {
		inst.Domain = v
	}
	return inst
}
