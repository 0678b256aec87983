package services

import (
	"fmt"

	"github.com/ekaya-inc/datagenie-engine/pkg/models"
)

// MaxRepairs is the number of repair passes a request may take.
const MaxRepairs = 1

// requestState tracks one request through its lifecycle. It is owned by a
// single pipeline invocation and never shared.
type requestState struct {
	current models.RequestState
	history []models.RequestState
	repairs int
}

func newRequestState() *requestState {
	return &requestState{
		current: models.StateReceived,
		history: []models.RequestState{models.StateReceived},
	}
}

// advance moves to next, failing on a transition the lifecycle forbids.
func (s *requestState) advance(next models.RequestState) error {
	if !s.current.CanTransitionTo(next) {
		return fmt.Errorf("invalid request transition %s -> %s", s.current, next)
	}
	if next == models.StateRepaired {
		if s.repairs >= MaxRepairs {
			return fmt.Errorf("repair limit of %d reached", MaxRepairs)
		}
		s.repairs++
	}
	s.current = next
	s.history = append(s.history, next)
	return nil
}

// canRepair reports whether another repair pass is allowed.
func (s *requestState) canRepair() bool {
	return s.current == models.StateValidating && s.repairs < MaxRepairs
}

// reject moves to rejected from any non-terminal state.
func (s *requestState) reject() {
	if s.current.IsTerminal() {
		return
	}
	s.current = models.StateRejected
	s.history = append(s.history, models.StateRejected)
}

func (s *requestState) states() []models.RequestState {
	return append([]models.RequestState(nil), s.history...)
}
