package blog

import (
	"bytes"
	"html/template"
	"net/http"
	"strconv"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
	"gorm.io/gorm"

	"inkpress/cache"
	"inkpress/models"
)

const pageSize = 5

type BlogModule struct {
	db  *gorm.DB
	log zerolog.Logger
}

// markdown renderer configured with Goldmark and useful extensions
var md = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,     // tables, strikethrough, task lists, autolinks (GFM set)
		extension.Linkify, // linkify raw URLs
	),
	goldmark.WithRendererOptions(
		htmlrenderer.WithUnsafe(), // raw HTML passes goldmark; the sanitizer decides what survives
	),
)

// sanitizer strips the rendered HTML down to an allowlist before it reaches
// the page or the cache. Tags and attributes writers may use, plus what the
// markdown renderer itself emits; everything else is removed, not escaped.
var sanitizer = newSanitizer()

func newSanitizer() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"p", "br", "hr",
		"strong", "b", "em", "i", "u", "s", "del",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"ul", "ol", "li",
		"blockquote", "pre", "code",
		"table", "thead", "tbody", "tr", "th", "td",
		"figure", "figcaption",
		"span", "div",
	)
	p.AllowAttrs("href", "title", "target").OnElements("a")
	p.AllowAttrs("src", "alt", "title").OnElements("img")
	p.AllowAttrs("colspan", "rowspan").OnElements("td", "th")
	p.AllowAttrs("class").Globally()
	p.AllowURLSchemes("http", "https", "mailto")
	p.RequireParseableURLs(true)
	return p
}

func NewBlogModule(db *gorm.DB, log zerolog.Logger) *BlogModule {
	return &BlogModule{db: db, log: log}
}

func (b *BlogModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/", b.home)

	blogGroup := router.Group("/blog")
	{
		blogGroup.GET("/", b.list)
		blogGroup.GET("/:id", b.detail)
		blogGroup.GET("/categories", b.categories)
		blogGroup.GET("/category/:slug", b.categoryArticles)
		blogGroup.GET("/author/:username", b.authorArticles)
	}
}

func (b *BlogModule) home(c *gin.Context) {
	var featured models.Article
	hasFeatured := b.db.Where("status = ?", models.StatusPublished).
		Order("views DESC").
		First(&featured).Error == nil

	var latest []models.Article
	b.db.Where("status = ?", models.StatusPublished).
		Order("created_at DESC").
		Limit(6).
		Find(&latest)

	var categories []models.Category
	b.db.Find(&categories)

	var totalArticles, totalCategories int64
	b.db.Model(&models.Article{}).Where("status = ?", models.StatusPublished).Count(&totalArticles)
	b.db.Model(&models.Category{}).Count(&totalCategories)

	var totalViews int64
	b.db.Model(&models.Article{}).
		Where("status = ?", models.StatusPublished).
		Select("COALESCE(SUM(views), 0)").
		Scan(&totalViews)

	data := gin.H{
		"latestArticles":  latest,
		"categories":      categories,
		"totalArticles":   totalArticles,
		"totalCategories": totalCategories,
		"totalViews":      totalViews,
	}
	if hasFeatured {
		data["featuredArticle"] = featured
	}

	c.HTML(http.StatusOK, "blog_home.html", data)
}

func (b *BlogModule) list(c *gin.Context) {
	page, err := strconv.Atoi(c.Query("page"))
	if err != nil || page < 1 {
		page = 1
	}

	var total int64
	b.db.Model(&models.Article{}).Where("status = ?", models.StatusPublished).Count(&total)

	totalPages := int((total + pageSize - 1) / pageSize)
	if totalPages > 0 && page > totalPages {
		page = totalPages
	}

	var articles []models.Article
	b.db.Where("status = ?", models.StatusPublished).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&articles)

	var latest []models.Article
	b.db.Where("status = ?", models.StatusPublished).
		Order("created_at DESC").Limit(3).Find(&latest)

	var popular []models.Article
	b.db.Where("status = ?", models.StatusPublished).
		Order("views DESC").Limit(5).Find(&popular)

	var recommended []models.Article
	b.db.Where("status = ? AND recommended = ?", models.StatusPublished, true).
		Order("created_at DESC").Limit(3).Find(&recommended)

	var categories []models.Category
	b.db.Find(&categories)

	c.HTML(http.StatusOK, "blog_list.html", gin.H{
		"articles":            articles,
		"latestArticles":      latest,
		"popularArticles":     popular,
		"recommendedArticles": recommended,
		"categories":          categories,
		"page":                page,
		"totalPages":          totalPages,
		"hasPrev":             page > 1,
		"hasNext":             page < totalPages,
		"prevPage":            page - 1,
		"nextPage":            page + 1,
	})
}

// detail shows a single article. Drafts render only for their author; every
// other viewer gets the same not-found page as a nonexistent id, so drafts
// never leak through probing.
func (b *BlogModule) detail(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		b.notFound(c)
		return
	}

	var article models.Article
	if err := b.db.First(&article, id).Error; err != nil {
		b.notFound(c)
		return
	}

	if !article.Published() {
		session := sessions.Default(c)
		userID, ok := session.Get("user_id").(int)
		if !ok || userID != article.AuthorID {
			b.notFound(c)
			return
		}
	}

	// Published views count once per render. The increment is relative at the
	// storage layer so concurrent readers never lose updates.
	if article.Published() {
		if err := b.db.Model(&article).
			UpdateColumn("views", gorm.Expr("views + ?", 1)).Error; err != nil {
			b.log.Error().Err(err).Int("article_id", article.ID).Msg("failed to count view")
		}
		b.db.First(&article, article.ID)
	}

	var author models.User
	b.db.First(&author, article.AuthorID)

	var category models.Category
	b.db.First(&category, article.CategoryID)

	c.HTML(http.StatusOK, "blog_detail.html", gin.H{
		"article":     article,
		"author":      author,
		"category":    category,
		"contentHTML": b.RenderBody(&article),
	})
}

func (b *BlogModule) categories(c *gin.Context) {
	var categories []models.Category
	b.db.Find(&categories)

	c.HTML(http.StatusOK, "blog_categories.html", gin.H{
		"categories": categories,
	})
}

func (b *BlogModule) categoryArticles(c *gin.Context) {
	slug := c.Param("slug")

	var category models.Category
	if err := b.db.Where("slug = ?", slug).First(&category).Error; err != nil {
		b.notFound(c)
		return
	}

	var articles []models.Article
	b.db.Where("status = ? AND category_id = ?", models.StatusPublished, category.ID).
		Order("created_at DESC").
		Find(&articles)

	c.HTML(http.StatusOK, "blog_category.html", gin.H{
		"category": category,
		"articles": articles,
	})
}

func (b *BlogModule) authorArticles(c *gin.Context) {
	username := c.Param("username")

	var author models.User
	if err := b.db.Where("username = ?", username).First(&author).Error; err != nil {
		b.notFound(c)
		return
	}

	var profile models.Profile
	b.db.Where("user_id = ?", author.ID).First(&profile)

	var articles []models.Article
	b.db.Where("status = ? AND author_id = ?", models.StatusPublished, author.ID).
		Order("created_at DESC").
		Find(&articles)

	c.HTML(http.StatusOK, "blog_author.html", gin.H{
		"author":   author,
		"profile":  profile,
		"articles": articles,
	})
}

func (b *BlogModule) notFound(c *gin.Context) {
	c.HTML(http.StatusNotFound, "blog_error.html", gin.H{
		"error": "Article not found",
	})
}

// RenderBody converts an article's markdown to HTML, going through the disk
// cache keyed by slug and content fingerprint.
func (b *BlogModule) RenderBody(article *models.Article) template.HTML {
	if cached, found := cache.ReadCache(article.Slug, article.Content); found {
		return template.HTML(cached)
	}

	html := RenderMarkdown(article.Content)
	if err := cache.WriteCache(article.Slug, article.Content, html); err != nil {
		b.log.Warn().Err(err).Str("slug", article.Slug).Msg("failed to cache rendered body")
	}

	return template.HTML(html)
}

// RenderMarkdown converts markdown to sanitized HTML without touching the
// cache; the writer preview uses it directly on drafts.
func RenderMarkdown(content string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(content), &buf); err != nil {
		// on render failure, fall back to the raw content so the page still loads
		return sanitizer.Sanitize(content)
	}
	return sanitizer.Sanitize(buf.String())
}
