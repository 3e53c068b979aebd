package writer

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"inkpress/models"
	"inkpress/upload"
)

type WriterModule struct {
	db    *gorm.DB
	store *upload.Store
	log   zerolog.Logger
}

func NewWriterModule(db *gorm.DB, store *upload.Store, log zerolog.Logger) *WriterModule {
	return &WriterModule{
		db:    db,
		store: store,
		log:   log,
	}
}

func (w *WriterModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/writer/login", w.loginPage)
	router.POST("/writer/login", w.loginPost)
	router.GET("/writer/register", w.registerPage)
	router.POST("/writer/register", w.registerPost)
	router.GET("/writer/logout", w.logout)

	writerGroup := router.Group("/writer")
	writerGroup.Use(w.requireAuth)
	{
		writerGroup.GET("/", w.dashboard)
		writerGroup.GET("/profile", w.profileSettings)
		writerGroup.POST("/profile", w.updateProfile)
		writerGroup.GET("/create", w.createPage)
		writerGroup.POST("/create", w.createArticle)
		writerGroup.GET("/edit/:id", w.editPage)
		writerGroup.POST("/edit/:id", w.updateArticle)
		writerGroup.POST("/delete/:id", w.deleteArticle)
		writerGroup.GET("/preview/:id", w.previewArticle)
	}
}

func (w *WriterModule) requireAuth(c *gin.Context) {
	session := sessions.Default(c)
	userID := session.Get("user_id")

	if userID == nil {
		c.Redirect(http.StatusFound, "/writer/login?next="+url.QueryEscape(c.Request.URL.Path))
		c.Abort()
		return
	}

	c.Set("user_id", userID)
	c.Next()
}

func (w *WriterModule) currentUser(c *gin.Context) (*models.User, error) {
	var user models.User
	err := w.db.First(&user, c.GetInt("user_id")).Error
	return &user, err
}

func (w *WriterModule) loginPage(c *gin.Context) {
	session := sessions.Default(c)
	if session.Get("user_id") != nil {
		c.Redirect(http.StatusFound, "/writer/")
		return
	}

	c.HTML(http.StatusOK, "writer_login.html", w.withFlashes(c, gin.H{
		"next": c.Query("next"),
	}))
}

func (w *WriterModule) loginPost(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")

	var user models.User
	if err := w.db.Where("username = ?", username).First(&user).Error; err != nil {
		c.HTML(http.StatusUnauthorized, "writer_login.html", gin.H{
			"error":    "Invalid username or password",
			"username": username,
		})
		return
	}

	if !checkPasswordHash(password, user.PasswordHash) {
		c.HTML(http.StatusUnauthorized, "writer_login.html", gin.H{
			"error":    "Invalid username or password",
			"username": username,
		})
		return
	}

	session := sessions.Default(c)
	session.Set("user_id", user.ID)
	session.AddFlash("Welcome back, "+username+"!", "success")
	session.Save()

	w.log.Info().Str("username", username).Msg("writer logged in")

	if next := c.Query("next"); next != "" && strings.HasPrefix(next, "/") {
		c.Redirect(http.StatusFound, next)
		return
	}
	c.Redirect(http.StatusFound, "/writer/")
}

func (w *WriterModule) registerPage(c *gin.Context) {
	session := sessions.Default(c)
	if session.Get("user_id") != nil {
		c.Redirect(http.StatusFound, "/writer/")
		return
	}

	c.HTML(http.StatusOK, "writer_register.html", gin.H{})
}

// registerPost validates the whole form before reporting, so the user sees
// every problem at once instead of fixing them one round-trip at a time.
func (w *WriterModule) registerPost(c *gin.Context) {
	username := c.PostForm("username")
	email := c.PostForm("email")
	password1 := c.PostForm("password1")
	password2 := c.PostForm("password2")

	var errors []string

	if len(username) < 3 {
		errors = append(errors, "Username must be at least 3 characters")
	}
	if !isAlnum(username) {
		errors = append(errors, "Username can only contain letters and numbers")
	}
	if len(password1) < 8 {
		errors = append(errors, "Password must be at least 8 characters")
	}
	if password1 != password2 {
		errors = append(errors, "Passwords do not match")
	}

	var count int64
	w.db.Model(&models.User{}).Where("username = ?", username).Count(&count)
	if count > 0 {
		errors = append(errors, "Username already taken")
	}
	w.db.Model(&models.User{}).Where("email = ?", email).Count(&count)
	if count > 0 {
		errors = append(errors, "Email already registered")
	}

	if len(errors) > 0 {
		c.HTML(http.StatusBadRequest, "writer_register.html", gin.H{
			"errors":   errors,
			"username": username,
			"email":    email,
		})
		return
	}

	passwordHash, err := hashPassword(password1)
	if err != nil {
		c.HTML(http.StatusInternalServerError, "writer_register.html", gin.H{
			"errors":   []string{"Error creating account"},
			"username": username,
			"email":    email,
		})
		return
	}

	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
	}

	if err := w.db.Create(&user).Error; err != nil {
		// the unique constraints close the race between the checks above and
		// this insert; a conflict here reads the same as one caught early
		c.HTML(http.StatusBadRequest, "writer_register.html", gin.H{
			"errors":   []string{"Username or email already registered"},
			"username": username,
			"email":    email,
		})
		return
	}

	// every user gets a profile at creation time
	if err := w.db.Create(&models.Profile{UserID: user.ID}).Error; err != nil {
		w.log.Error().Err(err).Int("user_id", user.ID).Msg("failed to create profile")
	}

	w.log.Info().Str("username", username).Msg("writer registered")

	session := sessions.Default(c)
	session.AddFlash("Account created for "+username+"! Please login.", "success")
	session.Save()

	c.Redirect(http.StatusFound, "/writer/login")
}

func (w *WriterModule) logout(c *gin.Context) {
	session := sessions.Default(c)

	username := ""
	if userID, ok := session.Get("user_id").(int); ok {
		var user models.User
		if err := w.db.First(&user, userID).Error; err == nil {
			username = user.Username
		}
	}

	session.Clear()
	if username != "" {
		session.AddFlash("Goodbye, "+username+"!", "success")
	}
	session.Save()

	c.Redirect(http.StatusFound, "/writer/login")
}

func (w *WriterModule) dashboard(c *gin.Context) {
	user, err := w.currentUser(c)
	if err != nil {
		c.Redirect(http.StatusFound, "/writer/login")
		return
	}

	var articles []models.Article
	if err := w.db.Where("author_id = ?", user.ID).
		Order("created_at DESC").
		Find(&articles).Error; err != nil {
		c.HTML(http.StatusInternalServerError, "writer_error.html", gin.H{
			"error": "Error loading articles",
		})
		return
	}

	var publishedCount, draftCount int64
	w.db.Model(&models.Article{}).
		Where("author_id = ? AND status = ?", user.ID, models.StatusPublished).
		Count(&publishedCount)
	w.db.Model(&models.Article{}).
		Where("author_id = ? AND status = ?", user.ID, models.StatusDraft).
		Count(&draftCount)

	var totalViews int64
	w.db.Model(&models.Article{}).
		Where("author_id = ?", user.ID).
		Select("COALESCE(SUM(views), 0)").
		Scan(&totalViews)

	c.HTML(http.StatusOK, "writer_dashboard.html", w.withFlashes(c, gin.H{
		"user":           user,
		"articles":       articles,
		"publishedCount": publishedCount,
		"draftCount":     draftCount,
		"totalViews":     totalViews,
	}))
}

// withFlashes drains pending flash messages into the template data.
func (w *WriterModule) withFlashes(c *gin.Context, data gin.H) gin.H {
	session := sessions.Default(c)
	if msgs := session.Flashes("success"); len(msgs) > 0 {
		data["successes"] = msgs
	}
	if msgs := session.Flashes("warning"); len(msgs) > 0 {
		data["warnings"] = msgs
	}
	if msgs := session.Flashes("error"); len(msgs) > 0 {
		data["errors"] = msgs
	}
	session.Save()
	return data
}

func (w *WriterModule) addFlash(c *gin.Context, bucket, msg string) {
	session := sessions.Default(c)
	session.AddFlash(msg, bucket)
	session.Save()
}

func (w *WriterModule) flashRedirect(c *gin.Context, bucket, msg, location string) {
	w.addFlash(c, bucket, msg)
	c.Redirect(http.StatusFound, location)
}

func isAlnum(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), 14)
	return string(bytes), err
}

func checkPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
