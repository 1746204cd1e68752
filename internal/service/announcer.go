package service

import (
	"context"
	"errors"
	"log"
	"time"
)

// Announcer periodically pushes the ticket summary to every tracked chat.
type Announcer struct {
	bot       *BotService
	sender    ReplySender
	tracker   ChatTracker
	interval  time.Duration
	ticker    *time.Ticker
	stopChan  chan struct{}
	isRunning bool
}

func NewAnnouncer(bot *BotService, sender ReplySender, tracker ChatTracker, interval time.Duration) *Announcer {
	return &Announcer{
		bot:      bot,
		sender:   sender,
		tracker:  tracker,
		interval: interval,
	}
}

func (a *Announcer) Start() error {
	if a.isRunning {
		log.Println("Announcer is already running.")
		return nil
	}
	a.ticker = time.NewTicker(a.interval)
	a.stopChan = make(chan struct{})
	a.isRunning = true
	go func() {
		log.Println("Ticket announcer started.")
		for {
			select {
			case <-a.stopChan:
				log.Println("Ticket announcer stopping...")
				a.ticker.Stop()
				a.isRunning = false
				log.Println("Ticket announcer stopped.")
				return
			case <-a.ticker.C:
				a.announce(context.Background())
			}
		}
	}()
	return nil
}

func (a *Announcer) Stop() error {
	if !a.isRunning {
		log.Println("Announcer is not running.")
		return nil
	}
	close(a.stopChan)
	return nil
}

func (a *Announcer) IsRunning() bool {
	return a.isRunning
}

// announce fans the summary out to all tracked chats. A failed delivery to
// one chat never stops the others; chats the transport rejects outright are
// dropped from tracking.
func (a *Announcer) announce(ctx context.Context) {
	chats, err := a.tracker.ListChats(ctx)
	if err != nil {
		log.Printf("Failed to list tracked chats: %v", err)
		return
	}
	if len(chats) == 0 {
		log.Println("No tracked chats. Skipping announcement.")
		return
	}
	text, err := a.bot.ComposeAnnouncement(ctx)
	if err != nil {
		log.Printf("Failed to compose announcement: %v", err)
		return
	}

	sent, failed := 0, 0
	for _, chatID := range chats {
		if _, err := a.sender.SendReply(ctx, chatID, text); err != nil {
			failed++
			if errors.Is(err, ErrChatRejected) {
				if err := a.tracker.UntrackChat(ctx, chatID); err != nil {
					log.Printf("Failed to untrack chat %d: %v", chatID, err)
				} else {
					log.Printf("Removed chat %d from tracked chats", chatID)
				}
			} else {
				log.Printf("Failed to send announcement to chat %d: %v", chatID, err)
			}
			continue
		}
		sent++
	}
	log.Printf("Announcement completed: %d sent, %d failed out of %d chats", sent, failed, len(chats))
}
