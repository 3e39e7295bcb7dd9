package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/xiaoshi569/nextchat/internal/logging"
	"github.com/xiaoshi569/nextchat/internal/server/handlers"
	"github.com/xiaoshi569/nextchat/internal/server/middleware"
	"github.com/xiaoshi569/nextchat/internal/server/repos"
	"github.com/xiaoshi569/nextchat/internal/server/services"
)

type Deps struct {
	DB           *repos.DB
	Auth         *services.AuthService
	Chat         *services.ChatService
	Admin        *services.AdminService
	Logger       *logging.Logger
	AllowOrigins []string
}

func NewRouter(d Deps) *gin.Engine {
	logger := d.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	origins := d.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.GET("/healthz", func(c *gin.Context) {
		if err := d.DB.PingContext(c.Request.Context()); err != nil {
			c.JSON(503, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	authH := handlers.NewAuthHandler(d.Auth, logger)
	chatH := handlers.NewChatHandler(d.Chat, logger)
	adminH := handlers.NewAdminHandler(d.Admin, logger)

	api := r.Group("/api")
	api.POST("/auth/login", authH.Login)
	api.POST("/auth/register", authH.Register)

	authed := api.Group("")
	authed.Use(middleware.Auth(d.Auth))
	{
		authed.GET("/auth/me", authH.Me)

		authed.GET("/chat/sessions", chatH.ListSessions)
		authed.POST("/chat/sessions", chatH.CreateSession)
		authed.GET("/chat/sessions/:id", chatH.GetSession)
		authed.PATCH("/chat/sessions/:id", chatH.UpdateSession)
		authed.DELETE("/chat/sessions/:id", chatH.DeleteSession)
		authed.POST("/chat/messages", chatH.AppendMessage)
	}

	admin := authed.Group("/admin")
	admin.Use(middleware.AdminOnly())
	{
		admin.GET("/users", adminH.ListUsers)
		admin.PATCH("/users/:id", adminH.UpdateUser)
		admin.DELETE("/users/:id", adminH.DeleteUser)
		admin.GET("/apikeys", adminH.ListAPIKeys)
		admin.POST("/apikeys", adminH.CreateAPIKey)
		admin.PATCH("/apikeys/:id", adminH.UpdateAPIKey)
		admin.DELETE("/apikeys/:id", adminH.DeleteAPIKey)
	}
	return r
}
