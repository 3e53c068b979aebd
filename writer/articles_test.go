package writer

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"inkpress/models"
)

type testUpload struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

func postMultipart(router *gin.Engine, path string, fields map[string]string, file *testUpload, cookies []*http.Cookie) *httptest.ResponseRecorder {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if file != nil {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="%s"; filename="%s"`, file.field, file.filename))
		header.Set("Content-Type", file.contentType)
		part, _ := mw.CreatePart(header)
		part.Write(file.data)
	}
	mw.Close()

	req, _ := http.NewRequest("POST", path, body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

var jpegBytes = append([]byte{0xff, 0xd8, 0xff, 0xe0}, []byte("fake jpeg payload")...)

func TestCreateArticle_GeneratesSlug(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(setupTestModule(t, db))
	user := createTestUser(db, "alice")
	category := createTestCategory(db)

	cookies := loginAs(t, router, "alice")

	w := postMultipart(router, "/writer/create", map[string]string{
		"title":    "Hello World!",
		"category": strconv.Itoa(category.ID),
		"content":  "First post.",
		"status":   "draft",
	}, nil, cookies)

	assert.Equal(t, http.StatusFound, w.Code)

	var article models.Article
	assert.NoError(t, db.Where("author_id = ?", user.ID).First(&article).Error)
	assert.True(t, strings.HasPrefix(article.Slug, "hello-world-"), "got %q", article.Slug)
	assert.Equal(t, models.StatusDraft, article.Status)
	assert.Equal(t, int64(0), article.Views)
}

func TestCreateArticle_MissingFields(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(setupTestModule(t, db))
	createTestUser(db, "alice")

	cookies := loginAs(t, router, "alice")

	w := postMultipart(router, "/writer/create", map[string]string{
		"title":    "",
		"category": "",
		"content":  "",
	}, nil, cookies)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Title is required.")
	assert.Contains(t, body, "Please select a category.")
	assert.Contains(t, body, "Content is required.")
}

func TestCreateArticle_RejectedImagePreservesForm(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(setupTestModule(t, db))
	createTestUser(db, "alice")
	category := createTestCategory(db)

	cookies := loginAs(t, router, "alice")

	w := postMultipart(router, "/writer/create", map[string]string{
		"title":    "My Article",
		"category": strconv.Itoa(category.ID),
		"content":  "Body text.",
		"status":   "published",
	}, &testUpload{"image", "not-an-image.exe", "application/octet-stream", []byte("MZ")}, cookies)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid file type!")
	// entered fields come back for correction
	assert.Contains(t, w.Body.String(), "My Article")
	assert.Contains(t, w.Body.String(), "Body text.")

	var count int64
	db.Model(&models.Article{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestCreateArticle_WithCoverImage(t *testing.T) {
	db := setupTestDB(t)
	module := setupTestModule(t, db)
	router := setupTestRouter(module)
	user := createTestUser(db, "alice")
	category := createTestCategory(db)

	cookies := loginAs(t, router, "alice")

	w := postMultipart(router, "/writer/create", map[string]string{
		"title":    "With Cover",
		"category": strconv.Itoa(category.ID),
		"content":  "Body.",
		"status":   "published",
	}, &testUpload{"image", "cover.jpg", "image/jpeg", jpegBytes}, cookies)

	assert.Equal(t, http.StatusFound, w.Code)

	var article models.Article
	assert.NoError(t, db.Where("author_id = ?", user.ID).First(&article).Error)
	assert.NotEmpty(t, article.Image)

	_, err := os.Stat(module.store.Path(article.Image))
	assert.NoError(t, err)
}

func TestCreateArticle_SuppliedSlugConflict(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(setupTestModule(t, db))
	user := createTestUser(db, "alice")
	category := createTestCategory(db)
	existing := createTestArticle(db, user.ID, category.ID, models.StatusPublished)

	cookies := loginAs(t, router, "alice")

	w := postMultipart(router, "/writer/create", map[string]string{
		"title":    "Another",
		"slug":     existing.Slug,
		"category": strconv.Itoa(category.ID),
		"content":  "Body.",
	}, nil, cookies)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "already exists")
}

func TestEditArticle_OtherUserRejected(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(setupTestModule(t, db))
	alice := createTestUser(db, "alice")
	createTestUser(db, "bob")
	category := createTestCategory(db)
	article := createTestArticle(db, alice.ID, category.ID, models.StatusPublished)

	cookies := loginAs(t, router, "bob")

	w := postMultipart(router, "/writer/edit/"+strconv.Itoa(article.ID), map[string]string{
		"title":    "Hijacked",
		"category": strconv.Itoa(category.ID),
		"content":  "Changed.",
	}, nil, cookies)

	// authorization failure redirects away without touching the article
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/writer/", w.Header().Get("Location"))

	var unchanged models.Article
	db.First(&unchanged, article.ID)
	assert.Equal(t, article.Title, unchanged.Title)
	assert.Equal(t, article.Content, unchanged.Content)
}

func TestEditArticle_SlugConflictKeepsOriginal(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(setupTestModule(t, db))
	alice := createTestUser(db, "alice")
	category := createTestCategory(db)

	first := createTestArticle(db, alice.ID, category.ID, models.StatusPublished)
	second := &models.Article{
		Title: "Second", Slug: "second-post-b2c3d4", Content: "Second body.",
		AuthorID: alice.ID, CategoryID: category.ID, Status: models.StatusDraft,
	}
	db.Create(second)

	cookies := loginAs(t, router, "alice")

	w := postMultipart(router, "/writer/edit/"+strconv.Itoa(second.ID), map[string]string{
		"title":    "Second, Revised",
		"slug":     first.Slug, // taken
		"category": strconv.Itoa(category.ID),
		"content":  "Revised body.",
		"status":   "published",
	}, nil, cookies)

	assert.Equal(t, http.StatusFound, w.Code)

	// every other field applied; the slug silently kept its old value
	var updated models.Article
	db.First(&updated, second.ID)
	assert.Equal(t, "Second, Revised", updated.Title)
	assert.Equal(t, "Revised body.", updated.Content)
	assert.Equal(t, models.StatusPublished, updated.Status)
	assert.Equal(t, "second-post-b2c3d4", updated.Slug)

	// the warning travels in the session cookie set on the redirect
	if fresh := w.Result().Cookies(); len(fresh) > 0 {
		cookies = fresh
	}
	preview := getPage(router, w.Header().Get("Location"), cookies)
	assert.Contains(t, preview.Body.String(), "already exists. Keeping original.")
}

func TestEditArticle_ReplacingImageDeletesOldFile(t *testing.T) {
	db := setupTestDB(t)
	module := setupTestModule(t, db)
	router := setupTestRouter(module)
	alice := createTestUser(db, "alice")
	category := createTestCategory(db)

	cookies := loginAs(t, router, "alice")

	w := postMultipart(router, "/writer/create", map[string]string{
		"title":    "Covered",
		"category": strconv.Itoa(category.ID),
		"content":  "Body.",
	}, &testUpload{"image", "old.jpg", "image/jpeg", jpegBytes}, cookies)
	assert.Equal(t, http.StatusFound, w.Code)

	var article models.Article
	db.Where("author_id = ?", alice.ID).First(&article)
	oldPath := module.store.Path(article.Image)

	w = postMultipart(router, "/writer/edit/"+strconv.Itoa(article.ID), map[string]string{
		"title":    "Covered",
		"category": strconv.Itoa(category.ID),
		"content":  "Body.",
	}, &testUpload{"image", "new.png", "image/png", []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}}, cookies)
	assert.Equal(t, http.StatusFound, w.Code)

	db.First(&article, article.ID)
	assert.NotEqual(t, oldPath, module.store.Path(article.Image))

	_, err := os.Stat(oldPath)
	assert.True(t, os.IsNotExist(err), "old cover should be gone")
	_, err = os.Stat(module.store.Path(article.Image))
	assert.NoError(t, err)
}

func TestDeleteArticle_OtherUserRejected(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(setupTestModule(t, db))
	alice := createTestUser(db, "alice")
	createTestUser(db, "bob")
	category := createTestCategory(db)
	article := createTestArticle(db, alice.ID, category.ID, models.StatusPublished)

	cookies := loginAs(t, router, "bob")

	w := postForm(router, "/writer/delete/"+strconv.Itoa(article.ID), url.Values{}, cookies)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/writer/", w.Header().Get("Location"))

	var count int64
	db.Model(&models.Article{}).Where("id = ?", article.ID).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestDeleteArticle_RemovesArticleAndImage(t *testing.T) {
	db := setupTestDB(t)
	module := setupTestModule(t, db)
	router := setupTestRouter(module)
	alice := createTestUser(db, "alice")
	category := createTestCategory(db)

	cookies := loginAs(t, router, "alice")

	postMultipart(router, "/writer/create", map[string]string{
		"title":    "Doomed",
		"category": strconv.Itoa(category.ID),
		"content":  "Body.",
	}, &testUpload{"image", "cover.jpg", "image/jpeg", jpegBytes}, cookies)

	var article models.Article
	db.Where("author_id = ?", alice.ID).First(&article)
	imagePath := module.store.Path(article.Image)

	w := postForm(router, "/writer/delete/"+strconv.Itoa(article.ID), url.Values{}, cookies)
	assert.Equal(t, http.StatusFound, w.Code)

	var count int64
	db.Model(&models.Article{}).Where("id = ?", article.ID).Count(&count)
	assert.Equal(t, int64(0), count)

	_, err := os.Stat(imagePath)
	assert.True(t, os.IsNotExist(err), "stored cover should be deleted with the article")
}

func TestPreview_AuthorSeesDraft(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(setupTestModule(t, db))
	alice := createTestUser(db, "alice")
	category := createTestCategory(db)
	article := createTestArticle(db, alice.ID, category.ID, models.StatusDraft)

	cookies := loginAs(t, router, "alice")
	w := getPage(router, "/writer/preview/"+strconv.Itoa(article.ID), cookies)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), article.Title)
	assert.Contains(t, w.Body.String(), "<strong>markdown</strong>")
}

func TestPreview_OtherUserRejected(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(setupTestModule(t, db))
	alice := createTestUser(db, "alice")
	createTestUser(db, "bob")
	category := createTestCategory(db)
	article := createTestArticle(db, alice.ID, category.ID, models.StatusDraft)

	cookies := loginAs(t, router, "bob")
	w := getPage(router, "/writer/preview/"+strconv.Itoa(article.ID), cookies)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/writer/", w.Header().Get("Location"))
}

func TestGetOwnArticle_MissingAndForeignLookUnchanged(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(setupTestModule(t, db))
	alice := createTestUser(db, "alice")
	createTestUser(db, "bob")
	category := createTestCategory(db)
	article := createTestArticle(db, alice.ID, category.ID, models.StatusDraft)

	cookies := loginAs(t, router, "bob")

	missing := getPage(router, "/writer/preview/99999", cookies)
	foreign := getPage(router, "/writer/preview/"+strconv.Itoa(article.ID), cookies)

	// both redirect to the dashboard; nothing distinguishes them beyond the notice
	assert.Equal(t, missing.Code, foreign.Code)
	assert.Equal(t, missing.Header().Get("Location"), foreign.Header().Get("Location"))
}

func TestCreateArticle_RejectsMalformedSlug(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(setupTestModule(t, db))
	createTestUser(db, "alice")
	category := createTestCategory(db)

	cookies := loginAs(t, router, "alice")

	for _, slug := range []string{"../evil", "bad[slug", "Upper-Case", "dot.dot"} {
		w := postMultipart(router, "/writer/create", map[string]string{
			"title":    "Escaping",
			"slug":     slug,
			"category": strconv.Itoa(category.ID),
			"content":  "Body.",
		}, nil, cookies)

		assert.Equal(t, http.StatusBadRequest, w.Code, "slug %q", slug)
		assert.Contains(t, w.Body.String(), "Slug may only contain lowercase letters, numbers, and hyphens.")
	}

	var count int64
	db.Model(&models.Article{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestEditArticle_RejectsMalformedSlug(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(setupTestModule(t, db))
	alice := createTestUser(db, "alice")
	category := createTestCategory(db)
	article := createTestArticle(db, alice.ID, category.ID, models.StatusPublished)

	cookies := loginAs(t, router, "alice")

	w := postMultipart(router, "/writer/edit/"+strconv.Itoa(article.ID), map[string]string{
		"title":    "Edited",
		"slug":     "../evil",
		"category": strconv.Itoa(category.ID),
		"content":  "Edited body.",
	}, nil, cookies)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Slug may only contain lowercase letters, numbers, and hyphens.")

	var unchanged models.Article
	db.First(&unchanged, article.ID)
	assert.Equal(t, article.Slug, unchanged.Slug)
	assert.Equal(t, article.Title, unchanged.Title)
}

func TestCreateArticle_NonNumericCategory(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(setupTestModule(t, db))
	createTestUser(db, "alice")
	createTestCategory(db)

	cookies := loginAs(t, router, "alice")

	w := postMultipart(router, "/writer/create", map[string]string{
		"title":    "Categorized",
		"category": "banana",
		"content":  "Body.",
	}, nil, cookies)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Please select a category.")

	var count int64
	db.Model(&models.Article{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestEditArticle_DoesNotClobberConcurrentViews(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(setupTestModule(t, db))
	alice := createTestUser(db, "alice")
	category := createTestCategory(db)
	article := createTestArticle(db, alice.ID, category.ID, models.StatusPublished)
	db.Model(article).UpdateColumn("views", 10)

	// a reader lands between the edit's load and its write
	raced := false
	db.Callback().Update().Before("gorm:update").Register("reader_during_edit", func(tx *gorm.DB) {
		if raced || tx.Statement.Table != "articles" {
			return
		}
		raced = true
		tx.Session(&gorm.Session{NewDB: true}).Model(&models.Article{}).
			Where("id = ?", article.ID).
			UpdateColumn("views", gorm.Expr("views + ?", 1))
	})

	cookies := loginAs(t, router, "alice")
	w := postMultipart(router, "/writer/edit/"+strconv.Itoa(article.ID), map[string]string{
		"title":    "Edited",
		"category": strconv.Itoa(category.ID),
		"content":  "Edited body.",
	}, nil, cookies)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.True(t, raced)

	var reread models.Article
	db.First(&reread, article.ID)
	assert.Equal(t, "Edited", reread.Title)
	assert.Equal(t, int64(11), reread.Views)
}
