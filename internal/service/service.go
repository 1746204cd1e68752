package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"statusbot/internal/models"
)

// TicketRepository is the read-only view of the ticket store. Every call
// hits the store directly; nothing is cached between calls.
type TicketRepository interface {
	FetchAll(ctx context.Context, limit int) ([]models.Ticket, error)
	FetchByID(ctx context.Context, id int64) (*models.Ticket, error)
	FetchByStatus(ctx context.Context, status string, limit int) ([]models.Ticket, error)
	FetchByStatusInDepartment(ctx context.Context, status string, departmentID int64, limit int) ([]models.Ticket, error)
	FetchUsersByIDs(ctx context.Context, ids []int64) (map[int64]models.User, error)
	FetchBuildings(ctx context.Context) (map[int64]models.Building, error)
}

// ReplySender delivers one outbound text to one chat and returns the
// transport's message id.
type ReplySender interface {
	SendReply(ctx context.Context, chatID int64, text string) (string, error)
}

// ChatTracker remembers which chats have talked to the bot so announcements
// can be fanned out to them later.
type ChatTracker interface {
	TrackChat(ctx context.Context, chatID int64) error
	ListChats(ctx context.Context) ([]int64, error)
	UntrackChat(ctx context.Context, chatID int64) error
}

// ErrChatRejected marks a delivery failure where the transport reports the
// chat itself is gone or has blocked the bot, as opposed to a transient
// failure. The announcer untracks such chats.
var ErrChatRejected = errors.New("chat rejected by transport")

const (
	welcomeText = "Welcome! I keep an eye on the ticket queue.\nSend /help to see what I can do."
	helpText    = "Available commands:\n" +
		"/start - Start the bot\n" +
		"/help - Show this help message\n" +
		"/status - Check status\n" +
		"/tickets - Summary of new and in-progress tickets\n" +
		"/new - List all new tickets\n" +
		"/taken - List all tickets in progress"
	statusText      = "Bot status:\nAll systems operational"
	fetchFailedText = "Failed to fetch tickets. Please try again later."

	// listLimit caps how many rows a single list command pulls.
	listLimit = 1000
)

type commandFunc func(ctx context.Context) (string, error)

// BotService maps inbound messages to replies. It holds no per-chat or
// per-user state; every dispatch is independent.
type BotService struct {
	repo         TicketRepository
	departmentID int64
	commands     map[string]commandFunc
}

func NewBotService(repo TicketRepository, departmentID int64) *BotService {
	s := &BotService{repo: repo, departmentID: departmentID}
	s.commands = map[string]commandFunc{
		"/start":   s.start,
		"/help":    s.help,
		"/status":  s.status,
		"/tickets": s.ticketsSummary,
		"/new":     s.newTicketsList,
		"/taken":   s.takenTicketsList,
	}
	return s
}

// Dispatch produces exactly one reply for every inbound message. Commands
// are matched on the first whitespace-delimited token; everything else is
// echoed back verbatim. A store failure behind a ticket command still yields
// one reply, with a fixed failure text, and the error goes to the log.
func (s *BotService) Dispatch(ctx context.Context, msg models.InboundMessage) models.OutboundReply {
	command := firstToken(msg.Text)
	handler, ok := s.commands[command]
	if !ok {
		return models.OutboundReply{ChatID: msg.ChatID, Text: msg.Text}
	}
	text, err := handler(ctx)
	if err != nil {
		log.Printf("Command %s failed: %v", command, err)
		return models.OutboundReply{ChatID: msg.ChatID, Text: fetchFailedText}
	}
	return models.OutboundReply{ChatID: msg.ChatID, Text: text}
}

// ComposeAnnouncement is what the announcer pushes to tracked chats; it is
// the same summary the /tickets command produces.
func (s *BotService) ComposeAnnouncement(ctx context.Context) (string, error) {
	return s.ticketsSummary(ctx)
}

func (s *BotService) start(ctx context.Context) (string, error) {
	return welcomeText, nil
}

func (s *BotService) help(ctx context.Context) (string, error) {
	return helpText, nil
}

func (s *BotService) status(ctx context.Context) (string, error) {
	return statusText, nil
}

// ticketsSummary reports counts only: new tickets grouped by building and
// in-progress tickets grouped by specialist and building. Tickets with
// status "available" count as new; when there are none, status "new" is
// tried instead.
func (s *BotService) ticketsSummary(ctx context.Context) (string, error) {
	newRows, err := s.repo.FetchByStatusInDepartment(ctx, "available", s.departmentID, listLimit)
	if err != nil {
		return "", err
	}
	if len(newRows) == 0 {
		newRows, err = s.repo.FetchByStatusInDepartment(ctx, "new", s.departmentID, listLimit)
		if err != nil {
			return "", err
		}
	}
	takenRows, err := s.repo.FetchByStatusInDepartment(ctx, "taken", s.departmentID, listLimit)
	if err != nil {
		return "", err
	}

	lines := []string{
		"Ticket statistics",
		fmt.Sprintf("Total new: %d", len(newRows)),
	}

	if len(newRows) > 0 {
		buildings, err := s.repo.FetchBuildings(ctx)
		if err != nil {
			return "", err
		}
		perBuilding := make(map[string]int)
		unassigned := 0
		for _, ticket := range newRows {
			if ticket.BuildingID == nil {
				unassigned++
				continue
			}
			perBuilding[buildingName(buildings, *ticket.BuildingID)]++
		}
		names := make([]string, 0, len(perBuilding))
		for name := range perBuilding {
			names = append(names, name)
		}
		sort.Strings(names)
		lines = append(lines, "", "By building:")
		for _, name := range names {
			lines = append(lines, fmt.Sprintf("%s - %d", name, perBuilding[name]))
		}
		if unassigned > 0 {
			lines = append(lines, fmt.Sprintf("Other - %d", unassigned))
		}
	}

	if len(takenRows) > 0 {
		section, err := s.inProgressSection(ctx, takenRows)
		if err != nil {
			return "", err
		}
		lines = append(lines, section...)
	}
	return strings.Join(lines, "\n"), nil
}

func (s *BotService) inProgressSection(ctx context.Context, takenRows []models.Ticket) ([]string, error) {
	type group struct {
		specialistID int64
		buildingID   int64 // 0 means unassigned
	}
	counts := make(map[group]int)
	var specialistIDs []int64
	seen := make(map[int64]bool)
	for _, ticket := range takenRows {
		if ticket.SpecialistID == nil {
			continue
		}
		if !seen[*ticket.SpecialistID] {
			seen[*ticket.SpecialistID] = true
			specialistIDs = append(specialistIDs, *ticket.SpecialistID)
		}
		key := group{specialistID: *ticket.SpecialistID}
		if ticket.BuildingID != nil {
			key.buildingID = *ticket.BuildingID
		}
		counts[key]++
	}
	if len(counts) == 0 {
		return nil, nil
	}

	users, err := s.repo.FetchUsersByIDs(ctx, specialistIDs)
	if err != nil {
		return nil, err
	}
	buildings, err := s.repo.FetchBuildings(ctx)
	if err != nil {
		return nil, err
	}

	groups := make([]group, 0, len(counts))
	for g := range counts {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].specialistID != groups[j].specialistID {
			return groups[i].specialistID < groups[j].specialistID
		}
		return groups[i].buildingID < groups[j].buildingID
	})

	lines := []string{"", "In progress:"}
	for _, g := range groups {
		name := fmt.Sprintf("ID %d", g.specialistID)
		if user, ok := users[g.specialistID]; ok {
			name = user.FullName()
		}
		building := "unassigned"
		if g.buildingID != 0 {
			building = buildingName(buildings, g.buildingID)
		}
		lines = append(lines, fmt.Sprintf("%s (%s) - %d", name, building, counts[g]))
	}
	return lines, nil
}

func (s *BotService) newTicketsList(ctx context.Context) (string, error) {
	rows, err := s.repo.FetchByStatusInDepartment(ctx, "new", s.departmentID, listLimit)
	if err != nil {
		return "", err
	}
	return s.formatTicketList(ctx, "Total new tickets", rows, false)
}

func (s *BotService) takenTicketsList(ctx context.Context) (string, error) {
	rows, err := s.repo.FetchByStatusInDepartment(ctx, "taken", s.departmentID, listLimit)
	if err != nil {
		return "", err
	}
	return s.formatTicketList(ctx, "Total tickets in progress", rows, true)
}

// formatTicketList renders one block per ticket. withAssignee adds the
// specialist line used by /taken.
func (s *BotService) formatTicketList(ctx context.Context, header string, rows []models.Ticket, withAssignee bool) (string, error) {
	if len(rows) == 0 {
		return fmt.Sprintf("%s: 0", header), nil
	}

	var userIDs []int64
	seen := make(map[int64]bool)
	collect := func(id *int64) {
		if id != nil && !seen[*id] {
			seen[*id] = true
			userIDs = append(userIDs, *id)
		}
	}
	for _, ticket := range rows {
		collect(ticket.UserID)
		if withAssignee {
			collect(ticket.SpecialistID)
		}
	}
	users, err := s.repo.FetchUsersByIDs(ctx, userIDs)
	if err != nil {
		return "", err
	}
	buildings, err := s.repo.FetchBuildings(ctx)
	if err != nil {
		return "", err
	}

	lines := []string{fmt.Sprintf("%s: %d", header, len(rows)), ""}
	for _, ticket := range rows {
		block := []string{
			fmt.Sprintf("Ticket #%d", ticket.ID),
			"Applicant: " + userName(users, ticket.UserID),
			"Contacts: " + orElse(ticket.Title, "not specified"),
			"Description: " + orElse(ticket.Description, "not specified"),
		}
		if ticket.BuildingID != nil {
			block = append(block, "Building: "+buildingName(buildings, *ticket.BuildingID))
		} else {
			block = append(block, "Building: not specified")
		}
		block = append(block, "Room: "+orElse(ticket.Cabinet, "not specified"))
		if withAssignee {
			block = append(block, "Assignee: "+userName(users, ticket.SpecialistID))
		}
		lines = append(lines, strings.Join(block, "\n"), "")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n"), nil
}

func firstToken(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func userName(users map[int64]models.User, id *int64) string {
	if id == nil {
		return "not specified"
	}
	if user, ok := users[*id]; ok {
		return user.FullName()
	}
	return fmt.Sprintf("ID %d", *id)
}

func buildingName(buildings map[int64]models.Building, id int64) string {
	if building, ok := buildings[id]; ok {
		return building.DisplayName()
	}
	return fmt.Sprintf("%d", id)
}

func orElse(value *string, fallback string) string {
	if value != nil && *value != "" {
		return *value
	}
	return fallback
}
