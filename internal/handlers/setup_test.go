package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/yukikurage/checkin-bot/internal/constants"
	"github.com/yukikurage/checkin-bot/internal/database"
	"github.com/yukikurage/checkin-bot/internal/middleware"
	"github.com/yukikurage/checkin-bot/internal/models"
	"github.com/yukikurage/checkin-bot/internal/repository"
	"github.com/yukikurage/checkin-bot/internal/services"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testCronSecret = "cron-secret"
	testAdminToken = "admin-token"
)

type recordingNotifier struct {
	mu      sync.Mutex
	prompts []string
	fail    error
}

func (n *recordingNotifier) SendPrompt(ctx context.Context, externalID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	n.prompts = append(n.prompts, externalID)
	return nil
}

func (n *recordingNotifier) Acknowledge(ctx context.Context, externalID, token string) error {
	return nil
}

type handlerTestEnv struct {
	db       *gorm.DB
	router   *gin.Engine
	gateway  *services.Gateway
	notifier *recordingNotifier
}

func setupHandlerTestEnv(t *testing.T) *handlerTestEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))

	store := repository.NewStore(db)
	notifier := &recordingNotifier{}
	defaults := services.UserDefaults{}

	identity := services.NewIdentityService(store.Users(), defaults)
	updates := services.NewUpdateService(store)
	gateway := services.NewGateway(identity, updates, notifier, services.GatewayOptions{AckReplies: true})
	scheduler := services.NewSchedulerService(store, notifier, services.SchedulerOptions{})
	roster := services.NewRosterService(store.Users(), defaults)

	gin.SetMode(gin.TestMode)
	router := gin.New()

	events := NewEventsHandler(gateway)
	router.GET("/slack/events", events.Ping)
	router.POST("/slack/events", events.Receive)

	schedulerHandler := NewSchedulerHandler(scheduler)
	router.POST("/api/scheduler/run",
		middleware.RequireSharedSecret(constants.HeaderCronSecret, testCronSecret),
		schedulerHandler.RunDueCycle)

	admin := router.Group("/api/users")
	admin.Use(middleware.RequireSharedSecret(constants.HeaderAdminToken, testAdminToken))
	{
		userHandler := NewUserHandler(roster, updates)
		admin.GET("", userHandler.ListUsers)
		admin.POST("", userHandler.UpsertUser)
		admin.GET("/:id", userHandler.GetUser)
		admin.PATCH("/:id/active", userHandler.SetActive)
		admin.GET("/:id/updates", userHandler.ListUpdates)
		admin.GET("/:id/updates/latest", userHandler.LatestUpdate)
		admin.POST("/:id/chase", schedulerHandler.ChaseUser)
	}

	return &handlerTestEnv{
		db:       db,
		router:   router,
		gateway:  gateway,
		notifier: notifier,
	}
}

func (env *handlerTestEnv) do(method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	env.gateway.Wait()
	return w
}

func (env *handlerTestEnv) admin(method, path string, body []byte) *httptest.ResponseRecorder {
	return env.do(method, path, body, map[string]string{"Authorization": "Bearer " + testAdminToken})
}

func (env *handlerTestEnv) createUser(t *testing.T, externalID string) *models.User {
	t.Helper()
	user := &models.User{
		ExternalID:  externalID,
		DisplayName: externalID,
		Timezone:    "Europe/London",
		CadenceDays: 7,
		IsActive:    true,
	}
	require.NoError(t, env.db.Create(user).Error)
	return user
}
