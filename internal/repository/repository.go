package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"statusbot/internal/models"
	"statusbot/internal/service"

	"github.com/lib/pq"
)

// identifierPattern guards the table name before it is interpolated into
// query text; everything else goes through placeholders.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

const ticketColumns = "id, status, department_id, user_id, specialist_id, building_id, title, description, cabinet"

type TicketStore struct {
	db    *sql.DB
	table string
}

// NewTicketStore opens a connection pool and verifies connectivity. A failed
// ping here is a configuration/connectivity error; it is never conflated
// with an empty query result later on.
func NewTicketStore(connStr, table string) (*TicketStore, error) {
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid tickets table name %q: only letters, digits and underscore are allowed", table)
	}
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &TicketStore{db: db, table: table}, nil
}

var _ service.TicketRepository = (*TicketStore)(nil)

func (s *TicketStore) Close() error {
	return s.db.Close()
}

// FetchAll returns up to limit tickets, newest id first.
func (s *TicketStore) FetchAll(ctx context.Context, limit int) ([]models.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id DESC LIMIT $1;`, ticketColumns, s.table)
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

// FetchByID returns the matching ticket, or (nil, nil) when no row exists.
// A missing ticket is a normal result, not an error.
func (s *TicketStore) FetchByID(ctx context.Context, id int64) (*models.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1;`, ticketColumns, s.table)
	row := s.db.QueryRowContext(ctx, query, id)
	ticket, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// FetchByStatus returns up to limit tickets whose status column equals
// status exactly.
func (s *TicketStore) FetchByStatus(ctx context.Context, status string, limit int) ([]models.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE status = $1 ORDER BY id DESC LIMIT $2;`, ticketColumns, s.table)
	rows, err := s.db.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (s *TicketStore) FetchByStatusInDepartment(ctx context.Context, status string, departmentID int64, limit int) ([]models.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE status = $1 AND department_id = $2 ORDER BY id DESC LIMIT $3;`, ticketColumns, s.table)
	rows, err := s.db.QueryContext(ctx, query, status, departmentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (s *TicketStore) FetchUsersByIDs(ctx context.Context, ids []int64) (map[int64]models.User, error) {
	users := make(map[int64]models.User)
	if len(ids) == 0 {
		return users, nil
	}
	query := `SELECT id, firstname, lastname, phone FROM users WHERE id = ANY($1);`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var user models.User
		var firstName, lastName, phone sql.NullString
		if err := rows.Scan(&user.ID, &firstName, &lastName, &phone); err != nil {
			return nil, err
		}
		user.FirstName = nullableString(firstName)
		user.LastName = nullableString(lastName)
		user.Phone = nullableString(phone)
		users[user.ID] = user
	}
	return users, rows.Err()
}

func (s *TicketStore) FetchBuildings(ctx context.Context) (map[int64]models.Building, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description FROM buildings;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	buildings := make(map[int64]models.Building)
	for rows.Next() {
		var building models.Building
		var name, description sql.NullString
		if err := rows.Scan(&building.ID, &name, &description); err != nil {
			return nil, err
		}
		building.Name = nullableString(name)
		building.Description = nullableString(description)
		buildings[building.ID] = building
	}
	return buildings, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (models.Ticket, error) {
	var ticket models.Ticket
	var userID, specialistID, buildingID sql.NullInt64
	var title, description, cabinet sql.NullString
	err := row.Scan(
		&ticket.ID, &ticket.Status, &ticket.DepartmentID,
		&userID, &specialistID, &buildingID,
		&title, &description, &cabinet,
	)
	if err != nil {
		return models.Ticket{}, err
	}
	ticket.UserID = nullableInt64(userID)
	ticket.SpecialistID = nullableInt64(specialistID)
	ticket.BuildingID = nullableInt64(buildingID)
	ticket.Title = nullableString(title)
	ticket.Description = nullableString(description)
	ticket.Cabinet = nullableString(cabinet)
	return ticket, nil
}

func scanTickets(rows *sql.Rows) ([]models.Ticket, error) {
	var results []models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, ticket)
	}
	return results, rows.Err()
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullableInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
