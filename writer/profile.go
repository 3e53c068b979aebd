package writer

import (
	"net/http"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"inkpress/models"
	"inkpress/upload"
)

const maxBioLength = 500

// getOrCreateProfile returns the acting user's profile, creating it on first
// touch. Registration already creates one, so this only fires for accounts
// that predate profiles.
func (w *WriterModule) getOrCreateProfile(userID int) (*models.Profile, error) {
	var profile models.Profile
	err := w.db.Where(models.Profile{UserID: userID}).FirstOrCreate(&profile).Error
	return &profile, err
}

func (w *WriterModule) profileSettings(c *gin.Context) {
	user, err := w.currentUser(c)
	if err != nil {
		c.Redirect(http.StatusFound, "/writer/login")
		return
	}

	profile, err := w.getOrCreateProfile(user.ID)
	if err != nil {
		c.HTML(http.StatusInternalServerError, "writer_error.html", gin.H{
			"error": "Error loading profile",
		})
		return
	}

	c.HTML(http.StatusOK, "writer_profile.html", w.withFlashes(c, gin.H{
		"user":    user,
		"profile": profile,
	}))
}

func (w *WriterModule) updateProfile(c *gin.Context) {
	user, err := w.currentUser(c)
	if err != nil {
		c.Redirect(http.StatusFound, "/writer/login")
		return
	}

	profile, err := w.getOrCreateProfile(user.ID)
	if err != nil {
		c.HTML(http.StatusInternalServerError, "writer_error.html", gin.H{
			"error": "Error loading profile",
		})
		return
	}

	bio := c.PostForm("bio")
	if utf8.RuneCountInString(bio) > maxBioLength {
		c.HTML(http.StatusBadRequest, "writer_profile.html", gin.H{
			"user":    user,
			"profile": profile,
			"errors":  []string{"Bio must be 500 characters or less"},
			"bio":     bio,
		})
		return
	}
	profile.Bio = bio

	// Avatars run the same upload gate as article covers, plus the
	// magic-byte sniff: extension and declared type are client-supplied, the
	// leading bytes are not.
	if file, fErr := c.FormFile("avatar"); fErr == nil {
		if err := upload.ValidateImage(file); err != nil {
			c.HTML(http.StatusBadRequest, "writer_profile.html", gin.H{
				"user":    user,
				"profile": profile,
				"errors":  []string{err.Error()},
			})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.HTML(http.StatusInternalServerError, "writer_error.html", gin.H{
				"error": "Error reading avatar",
			})
			return
		}
		format, recognized := upload.DetectFormat(src)
		src.Close()
		if !recognized {
			c.HTML(http.StatusBadRequest, "writer_profile.html", gin.H{
				"user":    user,
				"profile": profile,
				"errors":  []string{"Unrecognized image content: " + format},
			})
			return
		}

		rel, err := w.store.Save(file, "avatars")
		if err != nil {
			w.log.Error().Err(err).Int("user_id", user.ID).Msg("failed to store avatar")
			c.HTML(http.StatusInternalServerError, "writer_error.html", gin.H{
				"error": "Error storing avatar",
			})
			return
		}

		if profile.Avatar != "" {
			if err := w.store.Delete(profile.Avatar); err != nil {
				w.log.Warn().Err(err).Str("path", profile.Avatar).Msg("failed to delete old avatar")
			}
		}
		profile.Avatar = rel
	}

	if err := w.db.Save(profile).Error; err != nil {
		c.HTML(http.StatusInternalServerError, "writer_error.html", gin.H{
			"error": "Error saving profile",
		})
		return
	}

	w.flashRedirect(c, "success", "Profile updated successfully!", "/writer/profile")
}
