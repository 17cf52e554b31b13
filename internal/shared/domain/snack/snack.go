// Package snack defines the snack aggregate: its state, command variants,
// and event reducer.
package snack

import (
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/snackstand/catalog-services/internal/shared/domain/aggregate"
	"github.com/snackstand/catalog-services/internal/shared/domain/events"
)

// Kind is the snack entity-kind namespace.
const Kind = "snack"

// Event types emitted by the snack aggregate.
const (
	EventInitialized       = "snack.initialized"
	EventNameChanged       = "snack.name_changed"
	EventPictureURLChanged = "snack.picture_url_changed"
	EventRemoved           = "snack.removed"
)

const maxNameLength = 128

// Commands.

// Initialize creates a snack.
type Initialize struct {
	Name       string `json:"name"`
	PictureURL string `json:"picture_url"`
}

// ChangeName renames a snack.
type ChangeName struct {
	Name string `json:"name"`
}

// ChangePictureURL replaces a snack's picture.
type ChangePictureURL struct {
	PictureURL string `json:"picture_url"`
}

// Remove tombstones a snack. The event history is preserved.
type Remove struct{}

func (Initialize) CommandName() string       { return "snack.initialize" }
func (ChangeName) CommandName() string       { return "snack.change_name" }
func (ChangePictureURL) CommandName() string { return "snack.change_picture_url" }
func (Remove) CommandName() string           { return "snack.remove" }

// Event payloads.

// Initialized is the payload of EventInitialized.
type Initialized struct {
	Name       string `json:"name"`
	PictureURL string `json:"picture_url"`
}

// NameChanged is the payload of EventNameChanged.
type NameChanged struct {
	Name string `json:"name"`
}

// PictureURLChanged is the payload of EventPictureURLChanged.
type PictureURLChanged struct {
	PictureURL string `json:"picture_url"`
}

// Removed is the payload of EventRemoved.
type Removed struct{}

// Snack is the aggregate state. It is mutated only through Apply.
type Snack struct {
	ID         uuid.UUID           `json:"id"`
	Lifecycle  aggregate.Lifecycle `json:"lifecycle"`
	Name       string              `json:"name"`
	PictureURL string              `json:"picture_url"`
}

// Ensure Snack implements aggregate.Root
var _ aggregate.Root[*Snack] = (*Snack)(nil)

// New returns an uninitialized snack.
func New(id uuid.UUID) *Snack {
	return &Snack{ID: id, Lifecycle: aggregate.LifecycleUninitialized}
}

// AggregateKind implements aggregate.Root.
func (s *Snack) AggregateKind() string { return Kind }

// Status implements aggregate.Root.
func (s *Snack) Status() aggregate.Lifecycle { return s.Lifecycle }

// Clone implements aggregate.Root.
func (s *Snack) Clone() *Snack {
	copied := *s
	return &copied
}

// Decide implements aggregate.Root.
func (s *Snack) Decide(cmd aggregate.Command) ([]aggregate.Change, error) {
	switch c := cmd.(type) {
	case Initialize:
		if err := aggregate.EnsureUninitialized(s.Lifecycle, Kind); err != nil {
			return nil, err
		}
		if err := validateName(c.Name); err != nil {
			return nil, err
		}
		return []aggregate.Change{{
			EventType: EventInitialized,
			Category:  events.CategoryInitialized,
			Payload:   Initialized{Name: c.Name, PictureURL: c.PictureURL},
		}}, nil

	case ChangeName:
		if err := aggregate.EnsureActive(s.Lifecycle, Kind); err != nil {
			return nil, err
		}
		if err := validateName(c.Name); err != nil {
			return nil, err
		}
		return []aggregate.Change{{
			EventType: EventNameChanged,
			Category:  events.CategoryFieldChanged,
			Payload:   NameChanged{Name: c.Name},
		}}, nil

	case ChangePictureURL:
		if err := aggregate.EnsureActive(s.Lifecycle, Kind); err != nil {
			return nil, err
		}
		return []aggregate.Change{{
			EventType: EventPictureURLChanged,
			Category:  events.CategoryFieldChanged,
			Payload:   PictureURLChanged{PictureURL: c.PictureURL},
		}}, nil

	case Remove:
		if err := aggregate.EnsureActive(s.Lifecycle, Kind); err != nil {
			return nil, err
		}
		return []aggregate.Change{{
			EventType: EventRemoved,
			Category:  events.CategoryRemoved,
			Payload:   Removed{},
		}}, nil

	default:
		return nil, aggregate.NewValidation(fmt.Sprintf("unknown snack command %T", cmd))
	}
}

// Apply implements aggregate.Root.
func (s *Snack) Apply(evt *events.Envelope) error {
	switch evt.EventType {
	case EventInitialized:
		var p Initialized
		if err := evt.ParsePayload(&p); err != nil {
			return err
		}
		s.Lifecycle = aggregate.LifecycleActive
		s.Name = p.Name
		s.PictureURL = p.PictureURL

	case EventNameChanged:
		var p NameChanged
		if err := evt.ParsePayload(&p); err != nil {
			return err
		}
		s.Name = p.Name

	case EventPictureURLChanged:
		var p PictureURLChanged
		if err := evt.ParsePayload(&p); err != nil {
			return err
		}
		s.PictureURL = p.PictureURL

	case EventRemoved:
		s.Lifecycle = aggregate.LifecycleRemoved

	default:
		return fmt.Errorf("unknown snack event type %q", evt.EventType)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return aggregate.NewValidation("snack name is required")
	}
	if len(name) > maxNameLength {
		return aggregate.NewValidation(fmt.Sprintf("snack name exceeds %d characters", maxNameLength))
	}
	return nil
}
