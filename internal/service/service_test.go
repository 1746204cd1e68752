package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"statusbot/internal/models"
)

type stubRepo struct {
	tickets    []models.Ticket
	users      map[int64]models.User
	buildings  map[int64]models.Building
	failAll    bool
	fetchCalls int
}

func (r *stubRepo) byStatus(status string, limit int) []models.Ticket {
	var out []models.Ticket
	for _, t := range r.tickets {
		if t.Status == status {
			out = append(out, t)
		}
		if len(out) == limit {
			break
		}
	}
	return out
}

func (r *stubRepo) FetchAll(_ context.Context, limit int) ([]models.Ticket, error) {
	r.fetchCalls++
	if r.failAll {
		return nil, fmt.Errorf("simulated store failure")
	}
	if len(r.tickets) > limit {
		return r.tickets[:limit], nil
	}
	return r.tickets, nil
}

func (r *stubRepo) FetchByID(_ context.Context, id int64) (*models.Ticket, error) {
	r.fetchCalls++
	if r.failAll {
		return nil, fmt.Errorf("simulated store failure")
	}
	for _, t := range r.tickets {
		if t.ID == id {
			ticket := t
			return &ticket, nil
		}
	}
	return nil, nil
}

func (r *stubRepo) FetchByStatus(_ context.Context, status string, limit int) ([]models.Ticket, error) {
	r.fetchCalls++
	if r.failAll {
		return nil, fmt.Errorf("simulated store failure")
	}
	return r.byStatus(status, limit), nil
}

func (r *stubRepo) FetchByStatusInDepartment(_ context.Context, status string, departmentID int64, limit int) ([]models.Ticket, error) {
	r.fetchCalls++
	if r.failAll {
		return nil, fmt.Errorf("simulated store failure")
	}
	var out []models.Ticket
	for _, t := range r.byStatus(status, limit) {
		if t.DepartmentID == departmentID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *stubRepo) FetchUsersByIDs(_ context.Context, ids []int64) (map[int64]models.User, error) {
	r.fetchCalls++
	out := make(map[int64]models.User)
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (r *stubRepo) FetchBuildings(_ context.Context) (map[int64]models.Building, error) {
	r.fetchCalls++
	if r.buildings == nil {
		return map[int64]models.Building{}, nil
	}
	return r.buildings, nil
}

func strPtr(s string) *string { return &s }
func intPtr(n int64) *int64   { return &n }

func TestDispatchEcho(t *testing.T) {
	repo := &stubRepo{}
	bot := NewBotService(repo, 33)

	inputs := []string{"hello", "what is going on?", "/unknown command", "", "  spaced  text  "}
	for _, text := range inputs {
		reply := bot.Dispatch(context.Background(), models.InboundMessage{SenderID: 7, ChatID: 42, Text: text})
		if reply.Text != text {
			t.Errorf("echo for %q: got %q", text, reply.Text)
		}
		if reply.ChatID != 42 {
			t.Errorf("echo for %q: got chat id %d, want 42", text, reply.ChatID)
		}
	}
	if repo.fetchCalls != 0 {
		t.Errorf("echo must not touch the store, got %d calls", repo.fetchCalls)
	}
}

func TestDispatchFixedCommands(t *testing.T) {
	bot := NewBotService(&stubRepo{}, 33)
	ctx := context.Background()

	cases := []struct {
		text string
		want string
	}{
		{"/start", welcomeText},
		{"/help", helpText},
		{"/status", statusText},
		{"/help with trailing args", helpText},
	}
	for _, tc := range cases {
		reply := bot.Dispatch(ctx, models.InboundMessage{ChatID: 1, Text: tc.text})
		if reply.Text != tc.want {
			t.Errorf("%q: got %q, want %q", tc.text, reply.Text, tc.want)
		}
	}
}

func TestDispatchIsStateless(t *testing.T) {
	bot := NewBotService(&stubRepo{}, 33)
	ctx := context.Background()

	first := bot.Dispatch(ctx, models.InboundMessage{ChatID: 1, Text: "/help"})
	for _, text := range []string{"hello", "/start", "noise", "/status"} {
		bot.Dispatch(ctx, models.InboundMessage{ChatID: 1, Text: text})
	}
	second := bot.Dispatch(ctx, models.InboundMessage{ChatID: 1, Text: "/help"})
	if first.Text != second.Text {
		t.Errorf("reply to /help changed after prior messages: %q vs %q", first.Text, second.Text)
	}
}

func TestDispatchTicketsSummary(t *testing.T) {
	repo := &stubRepo{
		tickets: []models.Ticket{
			{ID: 1, Status: "available", DepartmentID: 33, BuildingID: intPtr(10)},
			{ID: 2, Status: "available", DepartmentID: 33, BuildingID: intPtr(10)},
			{ID: 3, Status: "available", DepartmentID: 33},
			{ID: 4, Status: "available", DepartmentID: 99, BuildingID: intPtr(10)},
			{ID: 5, Status: "taken", DepartmentID: 33, SpecialistID: intPtr(500), BuildingID: intPtr(10)},
		},
		users: map[int64]models.User{
			500: {ID: 500, FirstName: strPtr("Jan"), LastName: strPtr("Kowalski")},
		},
		buildings: map[int64]models.Building{
			10: {ID: 10, Description: strPtr("Main campus")},
		},
	}
	bot := NewBotService(repo, 33)

	reply := bot.Dispatch(context.Background(), models.InboundMessage{ChatID: 1, Text: "/tickets"})
	for _, want := range []string{"Total new: 3", "Main campus - 2", "Other - 1", "Jan Kowalski (Main campus) - 1"} {
		if !strings.Contains(reply.Text, want) {
			t.Errorf("summary missing %q:\n%s", want, reply.Text)
		}
	}
}

func TestDispatchTicketsSummaryFallsBackToNewStatus(t *testing.T) {
	repo := &stubRepo{
		tickets: []models.Ticket{
			{ID: 1, Status: "new", DepartmentID: 33},
			{ID: 2, Status: "new", DepartmentID: 33},
		},
	}
	bot := NewBotService(repo, 33)

	reply := bot.Dispatch(context.Background(), models.InboundMessage{ChatID: 1, Text: "/tickets"})
	if !strings.Contains(reply.Text, "Total new: 2") {
		t.Errorf("expected fallback to status new, got:\n%s", reply.Text)
	}
}

func TestDispatchNewTicketsList(t *testing.T) {
	repo := &stubRepo{
		tickets: []models.Ticket{
			{
				ID: 12, Status: "new", DepartmentID: 33,
				UserID:      intPtr(100),
				BuildingID:  intPtr(10),
				Title:       strPtr("+7 700 000 00 00"),
				Description: strPtr("Projector is broken"),
				Cabinet:     strPtr("204"),
			},
		},
		users: map[int64]models.User{
			100: {ID: 100, FirstName: strPtr("Aida")},
		},
		buildings: map[int64]models.Building{
			10: {ID: 10, Name: strPtr("Block C")},
		},
	}
	bot := NewBotService(repo, 33)

	reply := bot.Dispatch(context.Background(), models.InboundMessage{ChatID: 1, Text: "/new"})
	for _, want := range []string{
		"Total new tickets: 1",
		"Ticket #12",
		"Applicant: Aida",
		"Contacts: +7 700 000 00 00",
		"Description: Projector is broken",
		"Building: Block C",
		"Room: 204",
	} {
		if !strings.Contains(reply.Text, want) {
			t.Errorf("list missing %q:\n%s", want, reply.Text)
		}
	}
	if strings.Contains(reply.Text, "Assignee:") {
		t.Errorf("new-ticket list must not carry an assignee line:\n%s", reply.Text)
	}
}

func TestDispatchTakenTicketsList(t *testing.T) {
	repo := &stubRepo{
		tickets: []models.Ticket{
			{ID: 20, Status: "taken", DepartmentID: 33, SpecialistID: intPtr(500)},
		},
		users: map[int64]models.User{
			500: {ID: 500, LastName: strPtr("Smith")},
		},
	}
	bot := NewBotService(repo, 33)

	reply := bot.Dispatch(context.Background(), models.InboundMessage{ChatID: 1, Text: "/taken"})
	for _, want := range []string{"Total tickets in progress: 1", "Ticket #20", "Assignee: Smith", "Building: not specified"} {
		if !strings.Contains(reply.Text, want) {
			t.Errorf("list missing %q:\n%s", want, reply.Text)
		}
	}
}

func TestDispatchEmptyLists(t *testing.T) {
	bot := NewBotService(&stubRepo{}, 33)
	ctx := context.Background()

	if reply := bot.Dispatch(ctx, models.InboundMessage{ChatID: 1, Text: "/new"}); reply.Text != "Total new tickets: 0" {
		t.Errorf("/new on empty store: got %q", reply.Text)
	}
	if reply := bot.Dispatch(ctx, models.InboundMessage{ChatID: 1, Text: "/taken"}); reply.Text != "Total tickets in progress: 0" {
		t.Errorf("/taken on empty store: got %q", reply.Text)
	}
}

func TestDispatchStoreFailureStillReplies(t *testing.T) {
	bot := NewBotService(&stubRepo{failAll: true}, 33)

	reply := bot.Dispatch(context.Background(), models.InboundMessage{ChatID: 9, Text: "/tickets"})
	if reply.Text != fetchFailedText {
		t.Errorf("got %q, want the fixed failure text", reply.Text)
	}
	if reply.ChatID != 9 {
		t.Errorf("got chat id %d, want 9", reply.ChatID)
	}
}
