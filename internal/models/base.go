package models

import (
	"github.com/alb1nut/homebase/internal/utils"
)

// IBase is satisfied by every model embedding Base; retry loops use it to
// regenerate IDs on duplicate-key collisions.
type IBase interface {
	GenIDIfEmpty()
	GenID()
	SetID(id utils.SixID)
}

// Base is embedded by every persisted model and carries the SixID primary key.
type Base struct {
	ID utils.SixID `bson:"_id,omitempty" json:"id,omitempty"`
}

// GenIDIfEmpty assigns a fresh ID only when none has been set.
func (m *Base) GenIDIfEmpty() {
	if m.ID == (utils.SixID{}) {
		m.GenID()
	}
}

func (m *Base) GenID() {
	m.ID = utils.NewSixID()
}

func (m *Base) SetID(id utils.SixID) {
	m.ID = id
}

func NewBase() Base {
	return Base{
		ID: utils.NewSixID(),
	}
}
