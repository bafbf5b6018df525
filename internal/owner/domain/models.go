package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Type identifies which ledger an account belongs to.
type Type string

const (
	TypeUser       Type = "user"
	TypeCostCenter Type = "cost_center"
)

func ParseType(raw string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(raw))) {
	case TypeUser:
		return TypeUser, nil
	case TypeCostCenter, "cost-center", "costcenter":
		return TypeCostCenter, nil
	default:
		return "", ErrInvalidType
	}
}

// Ref points at a user account or a cost center.
type Ref struct {
	Type Type         `json:"type"`
	ID   snowflake.ID `json:"id"`
}

func (r Ref) String() string {
	return string(r.Type) + ":" + r.ID.String()
}

func (r Ref) Valid() bool {
	return (r.Type == TypeUser || r.Type == TypeCostCenter) && r.ID != 0
}

type User struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Email     string       `gorm:"type:text" json:"email"`
	Active    bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (User) TableName() string { return "users" }

type CostCenter struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Name        string       `gorm:"type:text;not null" json:"name"`
	Description string       `gorm:"type:text" json:"description"`
	Active      bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
}

func (CostCenter) TableName() string { return "cost_centers" }

// Account is the owner-agnostic view used for posting and display.
type Account struct {
	Ref    Ref    `json:"owner"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}
