package probe

import (
	"context"
	"time"

	"cmpbridge/internal/consent/inspect"
	"cmpbridge/internal/consent/models"
	"cmpbridge/internal/consent/ports"
)

//go:generate mockgen -source=models.go -destination=mocks/mocks.go -package=mocks Browser,Page

// Page is an open document whose CMPs can be queried.
type Page interface {
	Host() ports.Host
	Close() error
}

// Browser opens pages. ctx bounds the navigation only.
type Browser interface {
	Open(ctx context.Context, url string) (Page, error)
}

// Request asks for the consent state of one page under several regimes.
type Request struct {
	URL     string   `json:"url" yaml:"url"`
	Regimes []string `json:"regimes,omitempty" yaml:"regimes,omitempty"`
	// Timeout is the wait budget shared by all regimes; zero uses the default.
	Timeout time.Duration `json:"-" yaml:"-"`
}

// Result is the outcome for one regime. Obtained=false with default values is
// a normal answer: the page exposed no CMP for the regime within the budget.
type Result struct {
	Regime   string           `json:"regime" yaml:"regime"`
	Obtained bool             `json:"obtained" yaml:"obtained"`
	Consent  models.Snapshot  `json:"consent" yaml:"consent"`
	CallID   string           `json:"callId" yaml:"callId"`
	Source   string           `json:"source,omitempty" yaml:"source,omitempty"`
	Decoded  *inspect.Decoded `json:"decoded,omitempty" yaml:"decoded,omitempty"`
}

// Report is the outcome of one probe run.
type Report struct {
	URL        string    `json:"url" yaml:"url"`
	StartedAt  time.Time `json:"startedAt" yaml:"startedAt"`
	DurationMS int64     `json:"durationMs" yaml:"durationMs"`
	Results    []Result  `json:"results" yaml:"results"`
}

// Obtained reports whether any regime resolved.
func (r *Report) Obtained() bool {
	for _, res := range r.Results {
		if res.Obtained {
			return true
		}
	}
	return false
}
