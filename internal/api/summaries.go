package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"scribeit/internal/auth"
	"scribeit/internal/summary"
)

// getSummary renders the summary page state. Every view, including a load
// error, is a 200 with its document; without a credential no fetch is made.
func (h *Handler) getSummary(c *gin.Context) {
	view := h.viewer.Load(c.Request.Context(), auth.CredentialFromContext(c), c.Param("id"))
	c.JSON(http.StatusOK, summary.Render(view))
}

// summaryEvents polls the backend and streams status documents until the
// summary is completed or failed.
func (h *Handler) summaryEvents(c *gin.Context) {
	cred := auth.CredentialFromContext(c)
	stream, err := openEventStream(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	_ = h.poller.Watch(c.Request.Context(), cred, c.Param("id"), func(v summary.View) error {
		event := "status"
		switch v.(type) {
		case summary.LoadError:
			event = "error"
		case summary.Completed, summary.Failed:
			event = "done"
		}
		return stream.send(event, summary.Render(v))
	})
}

func (h *Handler) exportSummary(c *gin.Context) {
	view := h.viewer.Load(c.Request.Context(), auth.CredentialFromContext(c), c.Param("id"))
	text, err := summary.ExportText(view)
	if err != nil {
		if errors.Is(err, summary.ErrNotExportable) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "state": view.State()})
			return
		}
		writeError(c, err)
		return
	}
	done := view.(summary.Completed)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, summary.ExportFileName(done)))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(text))
}
