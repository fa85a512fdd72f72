package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/reits-ledger/internal/model"
)

// Type names a committed ledger operation.
type Type string

const (
	TypeInit               Type = "init"
	TypeSchemeRegistered   Type = "scheme_registered"
	TypeInvestorRegistered Type = "investor_registered"
	TypeBuy                Type = "buy"
	TypeSell               Type = "sell"
	TypeTransfer           Type = "transfer"
	TypeSchemeStatus       Type = "scheme_status"
	TypeInvestorStatus     Type = "investor_status"
	TypeMintCreated        Type = "mint_created"
	TypeAccountCreated     Type = "account_created"
	TypeMintTo             Type = "mint_to"
)

// Event describes one committed ledger operation. Fields that do not apply to
// the event type are zero.
type Event struct {
	ID       uuid.UUID     `json:"id"`
	Type     Type          `json:"type"`
	Caller   model.Address `json:"caller"`
	Scheme   model.Address `json:"scheme"`
	Investor model.Address `json:"investor"`
	From     model.Address `json:"from"`
	To       model.Address `json:"to"`
	Mint     model.Address `json:"mint"`
	Amount   uint64        `json:"amount"`       // Display units
	Scaled   uint64        `json:"scaled"`       // Smallest units moved
	Active   *bool         `json:"active,omitempty"`
	Time     time.Time     `json:"time"`
}

// New creates an event with a fresh ID.
func New(t Type, caller model.Address, at time.Time) Event {
	return Event{
		ID:     uuid.New(),
		Type:   t,
		Caller: caller,
		Time:   at.UTC(),
	}
}

// Involves reports whether addr appears in any address field.
func (e Event) Involves(addr model.Address) bool {
	switch addr {
	case e.Caller, e.Scheme, e.Investor, e.From, e.To, e.Mint:
		return true
	}
	return false
}

// Publisher receives committed events.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc is a function adapter for Publisher.
type PublisherFunc func(Event)

func (f PublisherFunc) Publish(e Event) {
	f(e)
}

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(Event) {})
