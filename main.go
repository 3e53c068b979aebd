package main

import (
	"log"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"inkpress/blog"
	"inkpress/cache"
	"inkpress/common"
	"inkpress/config"
	"inkpress/database"
	"inkpress/logger"
	"inkpress/upload"
	"inkpress/writer"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found; relying on environment")
	}

	cfg := config.Load()
	appLog := logger.New(cfg.Env)

	db := common.ConnectDb(cfg.SQLiteDB)
	if db == nil {
		log.Fatal("Failed to connect to database")
	}

	if err := database.RunMigrations(db); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	cache.SetRoot(cfg.CacheDir)

	router := gin.Default()

	if cfg.SessionSecret == "" {
		log.Fatal("SESSION_SECRET not set")
	}

	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   false,
	})

	router.Use(sessions.Sessions("inkpress-session", store))

	router.SetFuncMap(map[string]interface{}{
		"now": func() time.Time {
			return time.Now()
		},
	})

	router.LoadHTMLGlob("*/views/*.html")

	router.Static("/public", "./public")
	router.Static("/media", "./"+cfg.MediaDir)

	mediaStore := upload.NewStore(cfg.MediaDir)

	writerModule := writer.NewWriterModule(db, mediaStore, appLog)
	writerModule.RegisterRoutes(router)

	blogModule := blog.NewBlogModule(db, appLog)
	blogModule.RegisterRoutes(router)

	appLog.Info().Str("port", cfg.Port).Msg("starting server")
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
