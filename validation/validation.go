package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/akinjanata/nakadi/types"
)

// Registry errors.
var (
	// ErrValidatorExists is returned by Define when the event type already
	// has a validator chain; use Extend to add to it.
	ErrValidatorExists = errors.New("validator already defined for event type")

	// ErrUnknownStrategy is returned when a configuration names a strategy
	// the registry was not constructed with.
	ErrUnknownStrategy = errors.New("unknown validation strategy")
)

// Validator checks one event against one materialized strategy. A nil return
// accepts the event.
//
// Implementations must be safe for concurrent use; one Validator instance
// serves every event of its event type.
type Validator interface {
	Validate(event json.RawMessage) error
}

// Strategy builds Validators for event types. A strategy is registered once
// per Registry under its Name and materialized per event type with a
// strategy-specific configuration payload.
type Strategy interface {
	// Name is the identifier configurations refer to the strategy by.
	Name() string

	// Materialize builds a Validator for the event type from the raw
	// configuration payload.
	Materialize(eventType types.EventType, config json.RawMessage) (Validator, error)
}

// StrategyConfig selects a strategy by name together with its payload.
type StrategyConfig struct {
	// Strategy is the registered strategy name.
	Strategy string `json:"strategy"`

	// Config is the strategy-specific configuration, passed through opaque.
	Config json.RawMessage `json:"config,omitempty"`
}

// EventTypeValidator is the materialized validator chain of one event type.
// Immutable after construction; Extend on the registry replaces the chain
// instead of mutating it.
type EventTypeValidator struct {
	eventType  string
	validators []Validator
}

// EventType returns the event type name the chain validates.
func (v *EventTypeValidator) EventType() string {
	return v.eventType
}

// Validate runs the chain in configuration order and returns the first
// rejection, or nil when every validator accepts the event.
func (v *EventTypeValidator) Validate(event json.RawMessage) error {
	for _, validator := range v.validators {
		if err := validator.Validate(event); err != nil {
			return err
		}
	}

	return nil
}

// Registry holds the known strategies and the materialized validator chain
// of each event type. Safe for concurrent use; Lookup is lock-free.
type Registry struct {
	strategies map[string]Strategy
	validators *xsync.Map[string, *EventTypeValidator]
}

// NewRegistry creates a registry with the given strategies. Strategy names
// must be unique.
//
// Parameters:
//   - strategies: Known strategies, referred to by name in StrategyConfig
//
// Returns:
//   - *Registry: Initialized registry with no validator chains yet
//   - error: Duplicate strategy name
func NewRegistry(strategies ...Strategy) (*Registry, error) {
	byName := make(map[string]Strategy, len(strategies))
	for _, s := range strategies {
		if _, ok := byName[s.Name()]; ok {
			return nil, fmt.Errorf("duplicate validation strategy %q", s.Name())
		}
		byName[s.Name()] = s
	}

	return &Registry{
		strategies: byName,
		validators: xsync.NewMap[string, *EventTypeValidator](),
	}, nil
}

// Define materializes the validator chain of an event type from the given
// configurations, in order.
//
// Parameters:
//   - eventType: Event type to build the chain for
//   - configs: Ordered strategy configurations
//
// Returns:
//   - *EventTypeValidator: The materialized chain
//   - error: ErrValidatorExists when the event type already has a chain,
//     ErrUnknownStrategy or a strategy's materialization error otherwise
func (r *Registry) Define(eventType types.EventType, configs ...StrategyConfig) (*EventTypeValidator, error) {
	chain, err := r.materialize(eventType, nil, configs)
	if err != nil {
		return nil, err
	}

	if _, loaded := r.validators.LoadOrStore(eventType.Name, chain); loaded {
		return nil, fmt.Errorf("%w: %s", ErrValidatorExists, eventType.Name)
	}

	return chain, nil
}

// Extend appends configurations to an event type's chain, creating the chain
// when the event type has none yet. The previous chain keeps serving lookups
// until the extended one is stored.
func (r *Registry) Extend(eventType types.EventType, configs ...StrategyConfig) (*EventTypeValidator, error) {
	var existing []Validator
	if current, ok := r.validators.Load(eventType.Name); ok {
		existing = current.validators
	}

	chain, err := r.materialize(eventType, existing, configs)
	if err != nil {
		return nil, err
	}

	r.validators.Store(eventType.Name, chain)

	return chain, nil
}

func (r *Registry) materialize(eventType types.EventType, existing []Validator, configs []StrategyConfig) (*EventTypeValidator, error) {
	validators := slices.Clone(existing)
	for _, cfg := range configs {
		strategy, ok := r.strategies[cfg.Strategy]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, cfg.Strategy)
		}

		validator, err := strategy.Materialize(eventType, cfg.Config)
		if err != nil {
			return nil, fmt.Errorf("materialize strategy %q for %s: %w", cfg.Strategy, eventType.Name, err)
		}

		validators = append(validators, validator)
	}

	return &EventTypeValidator{eventType: eventType.Name, validators: validators}, nil
}

// Lookup returns the validator chain of an event type, if one is defined.
func (r *Registry) Lookup(eventTypeName string) (*EventTypeValidator, bool) {
	return r.validators.Load(eventTypeName)
}

// Reset drops every materialized chain, keeping the strategies.
func (r *Registry) Reset() {
	r.validators.Clear()
}
