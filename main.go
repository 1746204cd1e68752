package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/swaggo/files"
	"github.com/swaggo/gin-swagger"

	"statusbot/internal/api"
	"statusbot/internal/repository"
	"statusbot/internal/service"

	"github.com/redis/go-redis/v9"
)

func main() {
	dbHost := getEnv("DB_HOST", "localhost")
	dbPort := getEnv("DB_PORT", "5432")
	dbUser := getEnv("DB_USER", "postgres")
	dbPassword := getEnv("DB_PASSWORD", "postgres")
	dbName := getEnv("DB_NAME", "postgres")
	ticketsTable := getEnv("TICKETS_TABLE_NAME", "DB_TICKETS")
	redisHost := getEnv("REDIS_HOST", "localhost")
	redisPort := getEnv("REDIS_PORT", "6379")
	redisPassword := getEnv("REDIS_PASSWORD", "")

	// The token and transport URL have no defaults on purpose: a bot that
	// silently falls back to a baked-in token is a credential leak waiting
	// to happen.
	botToken := os.Getenv("BOT_TOKEN")
	if botToken == "" {
		log.Fatal("BOT_TOKEN is not set")
	}
	chatAPIURL := os.Getenv("CHAT_API_URL")
	if chatAPIURL == "" {
		log.Fatal("CHAT_API_URL is not set")
	}

	departmentID, err := strconv.ParseInt(getEnv("DEPARTMENT_ID", "33"), 10, 64)
	if err != nil {
		log.Fatalf("Invalid DEPARTMENT_ID: %v", err)
	}
	announceInterval, err := time.ParseDuration(getEnv("ANNOUNCE_INTERVAL", "6h"))
	if err != nil {
		log.Fatalf("Invalid ANNOUNCE_INTERVAL: %v", err)
	}

	connStr := "host=" + dbHost +
		" port=" + dbPort +
		" user=" + dbUser +
		" password=" + dbPassword +
		" dbname=" + dbName +
		" sslmode=disable"
	store, err := repository.NewTicketStore(connStr, ticketsTable)
	if err != nil {
		log.Fatalf("Failed to initialize ticket store: %v", err)
	}
	defer store.Close()
	log.Println("Connected to PostgreSQL")

	redisAddr := redisHost + ":" + redisPort
	trackerClient := initRedis(redisAddr, redisPassword)
	tracker := &RedisChatTracker{client: trackerClient}
	log.Println("Connected to Redis")

	sender := &ChatSender{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    chatAPIURL,
		token:  botToken,
	}
	bot := service.NewBotService(store, departmentID)
	announcer := service.NewAnnouncer(bot, sender, tracker, announceInterval)
	if err := announcer.Start(); err != nil {
		log.Fatalf("Failed to start announcer: %v", err)
	}

	r := gin.Default()
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	handler := api.NewAPIHandler(bot, store, sender, tracker, announcer)
	r.POST("/webhook", handler.Webhook)
	v1 := r.Group("/api/v1")
	{
		v1.GET("/tickets", handler.ListTickets)
		v1.GET("/tickets/:id", handler.GetTicket)
		v1.POST("/announcer/start", handler.StartAnnouncer)
		v1.POST("/announcer/stop", handler.StopAnnouncer)
	}

	port := getEnv("PORT", "8080")
	log.Printf("Server starting on port %s...", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}

func getEnv(key string, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// RedisChatTracker keeps the set of chats that have talked to the bot. Only
// chat ids live here; ticket data is never cached.
type RedisChatTracker struct {
	client *redis.Client
}

const trackedChatsKey = "tracked_chats"

func (t *RedisChatTracker) TrackChat(ctx context.Context, chatID int64) error {
	return t.client.SAdd(ctx, trackedChatsKey, chatID).Err()
}

func (t *RedisChatTracker) ListChats(ctx context.Context) ([]int64, error) {
	members, err := t.client.SMembers(ctx, trackedChatsKey).Result()
	if err != nil {
		return nil, err
	}
	chats := make([]int64, 0, len(members))
	for _, member := range members {
		chatID, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed chat id %q in %s: %w", member, trackedChatsKey, err)
		}
		chats = append(chats, chatID)
	}
	return chats, nil
}

func (t *RedisChatTracker) UntrackChat(ctx context.Context, chatID int64) error {
	return t.client.SRem(ctx, trackedChatsKey, chatID).Err()
}

func initRedis(addr string, password string) *redis.Client {
	opts := &redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	}
	client := redis.NewClient(opts)
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	return client
}

// ChatSender posts outbound replies to the chat transport's HTTP API.
type ChatSender struct {
	client *http.Client
	url    string
	token  string
}

func (s *ChatSender) SendReply(ctx context.Context, chatID int64, text string) (string, error) {
	payload := map[string]any{"chat_id": chatID, "text": text}
	bodyBytes, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, "POST", s.url, bytes.NewBuffer(bodyBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)
	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound:
		return "", fmt.Errorf("chat %d: %w", chatID, service.ErrChatRejected)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("received status %d from chat transport", resp.StatusCode)
	}
	var respData struct {
		Message   string `json:"message"`
		MessageID string `json:"message_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return "", fmt.Errorf("failed to parse chat transport response: %w", err)
	}
	if respData.MessageID == "" {
		return "", fmt.Errorf("no message_id in response")
	}
	return respData.MessageID, nil
}
