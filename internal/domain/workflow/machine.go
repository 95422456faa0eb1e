package workflow

import (
	"fmt"
	"sort"
	"sync"

	"github.com/garyjia/contract-approval/internal/domain/entity"
)

// StateMachine tracks a current state and validates transitions out of it
type StateMachine interface {
	State() State
	CanFire(trigger Trigger) bool
	Fire(trigger Trigger) error
	PermittedTriggers() []Trigger
}

type stateMachine struct {
	current State
	table   transitionTable
}

func (m *stateMachine) State() State {
	return m.current
}

func (m *stateMachine) CanFire(trigger Trigger) bool {
	_, ok := m.table[m.current][trigger]
	return ok
}

func (m *stateMachine) Fire(trigger Trigger) error {
	to, ok := m.table[m.current][trigger]
	if !ok {
		return fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, m.current)
	}
	m.current = to
	return nil
}

func (m *stateMachine) PermittedTriggers() []Trigger {
	triggers := make([]Trigger, 0, len(m.table[m.current]))
	for trigger := range m.table[m.current] {
		triggers = append(triggers, trigger)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}

// stageRules is built on first use
var stageRules = sync.OnceValue(func() StateMachineBuilder {
	b := NewBuilder()
	b.Configure(StateNotStarted).
		Permit(TriggerActivate, StateApproving).
		Permit(TriggerReset, StateNotStarted)
	b.Configure(StateApproving).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerReject, StateRejected).
		Permit(TriggerReset, StateNotStarted)
	b.Configure(StateApproved).
		Permit(TriggerReset, StateNotStarted)
	b.Configure(StateRejected).
		Permit(TriggerReset, StateNotStarted)
	return b
})

// NewStageMachine builds a machine for one stage positioned at its persisted status.
//
//	NOT_STARTED --activate--> APPROVING --approve--> APPROVED
//	                          APPROVING --reject---> REJECTED
//	any --reset--> NOT_STARTED
func NewStageMachine(status string) (StateMachine, error) {
	s := State(status)
	if !s.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidState, status)
	}
	return stageRules().Build(s), nil
}

// StageActions lists the decisions an approver can take on the stage now.
// Reset is an instance-wide operation and is never listed.
func StageActions(stage *entity.Stage) []Trigger {
	m, err := NewStageMachine(stage.Status)
	if err != nil {
		return nil
	}
	var actions []Trigger
	for _, t := range m.PermittedTriggers() {
		if t == TriggerApprove || t == TriggerReject {
			actions = append(actions, t)
		}
	}
	return actions
}

// canDecide reports whether the stage's machine accepts an approver decision
func canDecide(stage *entity.Stage) bool {
	m, err := NewStageMachine(stage.Status)
	return err == nil && m.CanFire(TriggerApprove) && m.CanFire(TriggerReject)
}
