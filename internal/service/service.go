// Package service implements the session lifecycle and allocation tracking
// on top of a transactional store.
package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/radhhh/flae-bot/internal/accounting"
	"github.com/radhhh/flae-bot/internal/config"
	"github.com/radhhh/flae-bot/internal/repository"
	"github.com/radhhh/flae-bot/policy"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time { return time.Now() }

// Service runs session and allocation operations against the store.
type Service struct {
	store        repository.Store
	clock        Clock
	config       *config.Config
	policyEngine *policy.Engine
	newID        func() string
}

// New creates a service. A nil clock reads the wall clock.
func New(store repository.Store, clock Clock, cfg *config.Config, policyEngine *policy.Engine) *Service {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Service{
		store:        store,
		clock:        clock,
		config:       cfg,
		policyEngine: policyEngine,
		newID:        uuid.NewString,
	}
}

// now is truncated to the storage resolution so that an outcome computed in
// memory matches the same outcome read back from the store.
func (s *Service) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Millisecond)
}

func (s *Service) anchor() accounting.WeekAnchor {
	return s.config.WeekAnchor()
}
