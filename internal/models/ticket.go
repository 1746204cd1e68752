package models

import "fmt"

// Ticket is a row in the tickets table. The table is owned by an external
// system; this service only ever reads it.
type Ticket struct {
	ID           int64   `json:"id"`
	Status       string  `json:"status"`
	DepartmentID int64   `json:"department_id"`
	UserID       *int64  `json:"user_id,omitempty"`
	SpecialistID *int64  `json:"specialist_id,omitempty"`
	BuildingID   *int64  `json:"building_id,omitempty"`
	Title        *string `json:"title,omitempty"`
	Description  *string `json:"description,omitempty"`
	Cabinet      *string `json:"cabinet,omitempty"`
}

type User struct {
	ID        int64   `json:"id"`
	FirstName *string `json:"firstname,omitempty"`
	LastName  *string `json:"lastname,omitempty"`
	Phone     *string `json:"phone,omitempty"`
}

// FullName joins first and last name, falling back to "ID <n>" when both
// are missing.
func (u User) FullName() string {
	name := ""
	if u.FirstName != nil {
		name = *u.FirstName
	}
	if u.LastName != nil {
		if name != "" {
			name += " "
		}
		name += *u.LastName
	}
	if name == "" {
		return fmt.Sprintf("ID %d", u.ID)
	}
	return name
}

type Building struct {
	ID          int64   `json:"id"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// DisplayName prefers the description, then the name, then the raw id.
func (b Building) DisplayName() string {
	if b.Description != nil && *b.Description != "" {
		return *b.Description
	}
	if b.Name != nil && *b.Name != "" {
		return *b.Name
	}
	return fmt.Sprintf("%d", b.ID)
}
