package domain

import (
	"time"

	"github.com/google/uuid"
)

type CustomerCreated struct {
	CustomerID uuid.UUID `json:"customerId"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	Email      string    `json:"email"`
	Meta
}

type CustomerUpdated struct {
	CustomerID uuid.UUID `json:"customerId"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	Email      string    `json:"email"`
	Meta
}

func (CustomerCreated) EventType() string { return "CustomerCreated" }
func (CustomerUpdated) EventType() string { return "CustomerUpdated" }

type CustomerState struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Customer struct {
	Base[CustomerState]
}

func NewCustomer(id uuid.UUID) *Customer {
	return &Customer{Base: newBase(id, foldCustomer)}
}

func CreateCustomer(id uuid.UUID, firstName, lastName, email string) (*Customer, error) {
	if err := validateCustomer(firstName, lastName, email); err != nil {
		return nil, err
	}
	c := NewCustomer(id)
	err := c.raise(CustomerCreated{
		CustomerID: id,
		FirstName:  firstName,
		LastName:   lastName,
		Email:      email,
		Meta:       newMeta(),
	})
	return c, err
}

func (c *Customer) Update(firstName, lastName, email string) error {
	if !c.Exists() {
		return NotFound("customer", c.id)
	}
	if err := validateCustomer(firstName, lastName, email); err != nil {
		return err
	}
	return c.raise(CustomerUpdated{
		CustomerID: c.id,
		FirstName:  firstName,
		LastName:   lastName,
		Email:      email,
		Meta:       newMeta(),
	})
}

func validateCustomer(firstName, lastName, email string) error {
	if err := required("first name", firstName); err != nil {
		return err
	}
	if err := required("last name", lastName); err != nil {
		return err
	}
	return required("email", email)
}

func foldCustomer(s CustomerState, e Event) (CustomerState, error) {
	switch e := e.(type) {
	case CustomerCreated:
		s.ID = e.CustomerID
		s.FirstName, s.LastName, s.Email = e.FirstName, e.LastName, e.Email
		s.CreatedAt = e.At
	case CustomerUpdated:
		s.FirstName, s.LastName, s.Email = e.FirstName, e.LastName, e.Email
	default:
		return s, unknownEvent(TypeCustomer, e)
	}
	s.UpdatedAt = e.OccurredAt()
	return s, nil
}
