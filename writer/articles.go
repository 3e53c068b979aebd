package writer

import (
	"html/template"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"inkpress/blog"
	"inkpress/cache"
	"inkpress/models"
	"inkpress/upload"
)

// getOwnArticle loads the article behind :id and enforces authorship. On a
// missing id or a foreign article it flashes a notice, redirects to the
// dashboard, and returns false; the two cases read the same to the caller on
// purpose.
func (w *WriterModule) getOwnArticle(c *gin.Context) (*models.Article, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		w.flashRedirect(c, "error", "Article not found!", "/writer/")
		return nil, false
	}

	var article models.Article
	if err := w.db.First(&article, id).Error; err != nil {
		w.flashRedirect(c, "error", "Article not found!", "/writer/")
		return nil, false
	}

	if article.AuthorID != c.GetInt("user_id") {
		w.flashRedirect(c, "error", "You can only access your own articles!", "/writer/")
		return nil, false
	}

	return &article, true
}

func (w *WriterModule) categoriesByName() []models.Category {
	var categories []models.Category
	w.db.Order("name").Find(&categories)
	return categories
}

func (w *WriterModule) createPage(c *gin.Context) {
	c.HTML(http.StatusOK, "writer_create.html", w.withFlashes(c, gin.H{
		"categories": w.categoriesByName(),
	}))
}

func (w *WriterModule) createArticle(c *gin.Context) {
	title := strings.TrimSpace(c.PostForm("title"))
	slug := strings.TrimSpace(c.PostForm("slug"))
	categoryID := c.PostForm("category")
	content := strings.TrimSpace(c.PostForm("content"))
	status := c.PostForm("status")
	if status != models.StatusPublished {
		status = models.StatusDraft
	}

	// Form data to re-render on any validation failure. The file input is
	// never echoed back; browsers won't refill it anyway.
	formData := gin.H{
		"categories":       w.categoriesByName(),
		"title":            title,
		"slug":             slug,
		"content":          content,
		"selectedCategory": categoryID,
		"selectedStatus":   status,
	}

	var errors []string
	if title == "" {
		errors = append(errors, "Title is required.")
	}
	catID, catErr := strconv.Atoi(categoryID)
	if categoryID == "" || catErr != nil {
		errors = append(errors, "Please select a category.")
	}
	if content == "" {
		errors = append(errors, "Content is required.")
	}

	var imageFile *multipart.FileHeader
	if file, err := c.FormFile("image"); err == nil {
		if err := upload.ValidateImage(file); err != nil {
			errors = append(errors, err.Error())
		} else {
			imageFile = file
		}
	}

	if slug != "" {
		if !validSlug(slug) {
			errors = append(errors, "Slug may only contain lowercase letters, numbers, and hyphens.")
		} else {
			var count int64
			w.db.Model(&models.Article{}).Where("slug = ?", slug).Count(&count)
			if count > 0 {
				errors = append(errors, `Slug "`+slug+`" already exists.`)
			}
		}
	}

	if len(errors) > 0 {
		formData["errors"] = errors
		c.HTML(http.StatusBadRequest, "writer_create.html", formData)
		return
	}

	if slug == "" {
		slug = generateSlug(title)
	}

	article := models.Article{
		Title:      title,
		Slug:       slug,
		Content:    content,
		AuthorID:   c.GetInt("user_id"),
		CategoryID: catID,
		Status:     status,
	}

	if err := w.db.Create(&article).Error; err != nil {
		// unique constraint backs up the pre-check; a losing race surfaces as
		// the same correctable error
		if isUniqueViolation(err) {
			formData["errors"] = []string{`Slug "` + slug + `" already exists.`}
			c.HTML(http.StatusBadRequest, "writer_create.html", formData)
			return
		}
		c.HTML(http.StatusInternalServerError, "writer_error.html", gin.H{
			"error": "Error creating article",
		})
		return
	}

	if imageFile != nil {
		rel, err := w.store.Save(imageFile, "posts")
		if err != nil {
			w.log.Error().Err(err).Int("article_id", article.ID).Msg("failed to store cover image")
			w.flashRedirect(c, "warning", "Article saved, but the cover image could not be stored.", "/writer/")
			return
		}
		if err := w.db.Model(&article).Update("image", rel).Error; err != nil {
			w.log.Error().Err(err).Int("article_id", article.ID).Msg("failed to attach cover image")
		}
	}

	w.log.Info().Int("article_id", article.ID).Str("slug", article.Slug).
		Str("status", article.Status).Msg("article created")

	if status == models.StatusPublished {
		w.flashRedirect(c, "success", `Article "`+title+`" published successfully!`, "/writer/")
	} else {
		w.flashRedirect(c, "success", `Article "`+title+`" saved as draft.`, "/writer/")
	}
}

func (w *WriterModule) editPage(c *gin.Context) {
	article, ok := w.getOwnArticle(c)
	if !ok {
		return
	}

	c.HTML(http.StatusOK, "writer_edit.html", w.withFlashes(c, gin.H{
		"article":    article,
		"categories": w.categoriesByName(),
	}))
}

// updateArticle re-validates everything and reports all problems at once.
// The one exception to all-or-nothing is the slug: a requested slug that
// collides with another article is silently kept at its previous value,
// with a warning, while every other change still applies.
func (w *WriterModule) updateArticle(c *gin.Context) {
	article, ok := w.getOwnArticle(c)
	if !ok {
		return
	}

	title := strings.TrimSpace(c.PostForm("title"))
	slug := strings.TrimSpace(c.PostForm("slug"))
	categoryID := c.PostForm("category")
	content := strings.TrimSpace(c.PostForm("content"))
	status := c.PostForm("status")
	if status != models.StatusPublished {
		status = models.StatusDraft
	}

	var errors []string
	if title == "" {
		errors = append(errors, "Title is required.")
	}
	catID, catErr := strconv.Atoi(categoryID)
	if categoryID == "" || catErr != nil {
		errors = append(errors, "Please select a category.")
	}
	if content == "" {
		errors = append(errors, "Content is required.")
	}
	if slug != "" && slug != article.Slug && !validSlug(slug) {
		errors = append(errors, "Slug may only contain lowercase letters, numbers, and hyphens.")
	}

	var imageFile *multipart.FileHeader
	if file, err := c.FormFile("image"); err == nil {
		if err := upload.ValidateImage(file); err != nil {
			errors = append(errors, err.Error())
		} else {
			imageFile = file
		}
	}

	if len(errors) > 0 {
		c.HTML(http.StatusBadRequest, "writer_edit.html", gin.H{
			"article":    article,
			"categories": w.categoriesByName(),
			"errors":     errors,
		})
		return
	}

	oldSlug := article.Slug

	article.Title = title
	article.CategoryID = catID
	article.Content = content
	article.Status = status

	slugWarning := ""
	if slug != "" && slug != article.Slug {
		var count int64
		w.db.Model(&models.Article{}).
			Where("slug = ? AND id != ?", slug, article.ID).
			Count(&count)
		if count > 0 {
			slugWarning = `Slug "` + slug + `" already exists. Keeping original.`
		} else {
			article.Slug = slug
		}
	}

	// Replacement image: store the new file before touching the old one, so
	// a failed save leaves the article with its previous cover.
	oldImage := ""
	if imageFile != nil {
		rel, err := w.store.Save(imageFile, "posts")
		if err != nil {
			w.log.Error().Err(err).Int("article_id", article.ID).Msg("failed to store cover image")
			c.HTML(http.StatusInternalServerError, "writer_error.html", gin.H{
				"error": "Error storing cover image",
			})
			return
		}
		oldImage = article.Image
		article.Image = rel
	}

	// Only the edited columns are written. Views moves underneath us on every
	// public read and must not be set back to the value loaded above.
	updates := map[string]interface{}{
		"title":       article.Title,
		"slug":        article.Slug,
		"content":     article.Content,
		"category_id": article.CategoryID,
		"status":      article.Status,
	}
	if imageFile != nil {
		updates["image"] = article.Image
	}

	if err := w.db.Model(article).Updates(updates).Error; err != nil {
		c.HTML(http.StatusInternalServerError, "writer_error.html", gin.H{
			"error": "Error updating article",
		})
		return
	}

	// old cover cleanup is advisory; a leftover file never fails the edit
	if imageFile != nil && oldImage != "" {
		if err := w.store.Delete(oldImage); err != nil {
			w.log.Warn().Err(err).Str("path", oldImage).Msg("failed to delete old cover image")
		}
	}

	cache.ClearCache(oldSlug)
	if article.Slug != oldSlug {
		cache.ClearCache(article.Slug)
	}

	if slugWarning != "" {
		w.addFlash(c, "warning", slugWarning)
	}
	if imageFile != nil {
		w.addFlash(c, "success", `Article "`+title+`" updated with new cover image!`)
	} else {
		w.addFlash(c, "success", `Article "`+title+`" updated successfully!`)
	}

	c.Redirect(http.StatusFound, "/writer/preview/"+strconv.Itoa(article.ID))
}

func (w *WriterModule) deleteArticle(c *gin.Context) {
	article, ok := w.getOwnArticle(c)
	if !ok {
		return
	}

	// article and its stored cover go together
	if article.Image != "" {
		if err := w.store.Delete(article.Image); err != nil {
			w.log.Warn().Err(err).Str("path", article.Image).Msg("failed to delete cover image")
		}
	}
	cache.ClearCache(article.Slug)

	title := article.Title
	if err := w.db.Delete(article).Error; err != nil {
		c.HTML(http.StatusInternalServerError, "writer_error.html", gin.H{
			"error": "Error deleting article",
		})
		return
	}

	w.log.Info().Int("article_id", article.ID).Str("slug", article.Slug).Msg("article deleted")

	w.flashRedirect(c, "success", `Article "`+title+`" has been deleted.`, "/writer/")
}

// previewArticle renders an article for its author as it would appear once
// published. Drafts included; the markdown is rendered fresh, skipping the
// public cache.
func (w *WriterModule) previewArticle(c *gin.Context) {
	article, ok := w.getOwnArticle(c)
	if !ok {
		return
	}

	var category models.Category
	w.db.First(&category, article.CategoryID)

	c.HTML(http.StatusOK, "writer_preview.html", w.withFlashes(c, gin.H{
		"article":     article,
		"category":    category,
		"contentHTML": template.HTML(blog.RenderMarkdown(article.Content)),
	}))
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToUpper(err.Error()), "UNIQUE")
}
