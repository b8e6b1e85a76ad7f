package api

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"scribeit/internal/auth"
	"scribeit/internal/logger"
	"scribeit/internal/media"
	"scribeit/internal/models"
	"scribeit/internal/upload"
)

const (
	maxTitleBytes = 1 << 10
	// room for the multipart envelope and form fields around the file
	multipartSlack = 1 << 20
)

type selectionRequest struct {
	Title  string           `json:"title"`
	Source string           `json:"source"` // picker | drop
	File   media.Descriptor `json:"file"`
}

func (h *Handler) previewSelection(c *gin.Context) {
	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	form := media.NewForm(req.Title)
	if sess, ok := auth.SessionFromContext(c); ok {
		if job, ok := h.uploads.Current(sess.ID); ok && job.Phase.InFlight() {
			form.SetBusy(true)
		}
	}
	if req.Source == "drop" {
		_ = form.Drop(req.File)
	} else {
		_ = form.Pick(req.File)
	}
	c.JSON(http.StatusOK, form.State())
}

func (h *Handler) uploadMedia(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, media.MaxUploadBytes+multipartSlack)
	reader, err := c.Request.MultipartReader()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}

	title, spool, err := h.readUploadForm(reader)
	if ve, ok := media.AsValidationError(err); ok {
		status, body := errorResponse(ve)
		c.JSON(status, body)
		return
	}
	if err != nil {
		logger.Warn(c.Request.Context(), "read upload form failed", logger.Fields{"error": err.Error()})
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	snap, err := h.uploads.SubmitFile(sess.ID, auth.CredentialFromContext(c), title, spool)
	if err != nil {
		h.writeSubmitError(c, snap, err)
		return
	}
	h.dashboard.InvalidateUsage(c.Request.Context(), sess.ID)
	c.JSON(http.StatusAccepted, jobResponse(snap))
}

// readUploadForm streams the file part to the spool and collects the title.
// A file part whose declared type is known and not allowed is rejected from
// its header before any of it is read. A body cut off past the size limit
// still yields the spooled prefix so the caller can report it as too large.
func (h *Handler) readUploadForm(reader *multipart.Reader) (string, *models.SpooledMedia, error) {
	var (
		title string
		spool *models.SpooledMedia
	)
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return title, spool, nil
		}
		if err != nil {
			if spool != nil && spool.Size > media.MaxUploadBytes {
				return title, spool, nil
			}
			discard(spool)
			return "", nil, err
		}
		switch part.FormName() {
		case "title":
			raw, err := io.ReadAll(io.LimitReader(part, maxTitleBytes))
			if err != nil {
				discard(spool)
				return "", nil, err
			}
			title = truncateTitle(raw)
		case "file":
			if spool != nil {
				part.Close()
				continue
			}
			declared := part.Header.Get("Content-Type")
			if !media.NeedsSniffing(declared) && !media.IsAllowedMimeType(declared) {
				// the part is left unread, Close would drain it
				return "", nil, media.NewValidationError(media.UnsupportedType)
			}
			spool, err = upload.Spool(h.spoolDir, part.FileName(), declared, part)
			if err != nil {
				return "", nil, err
			}
			if spool.Size > media.MaxUploadBytes {
				return title, spool, nil
			}
		}
		part.Close()
	}
}

// truncateTitle drops a trailing partial rune left by the length limit.
func truncateTitle(raw []byte) string {
	if len(raw) < maxTitleBytes {
		return string(raw)
	}
	for i := 0; i < utf8.UTFMax-1 && len(raw) > 0; i++ {
		if r, size := utf8.DecodeLastRune(raw); r != utf8.RuneError || size != 1 {
			break
		}
		raw = raw[:len(raw)-1]
	}
	return string(raw)
}

func discard(spool *models.SpooledMedia) {
	if spool != nil {
		_ = os.Remove(spool.StoredPath)
	}
}

type youtubeRequest struct {
	URL   string `json:"url" form:"url"`
	Title string `json:"title" form:"title"`
}

func (h *Handler) submitYouTube(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req youtubeRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	snap, err := h.uploads.SubmitYouTube(sess.ID, auth.CredentialFromContext(c), req.URL, req.Title)
	if err != nil {
		h.writeSubmitError(c, snap, err)
		return
	}
	h.dashboard.InvalidateUsage(c.Request.Context(), sess.ID)
	c.JSON(http.StatusAccepted, jobResponse(snap))
}

func (h *Handler) writeSubmitError(c *gin.Context, snap upload.Snapshot, err error) {
	status, body := errorResponse(err)
	if snap.JobID != "" {
		body["job"] = snap
	}
	c.JSON(status, body)
}

func jobResponse(snap upload.Snapshot) gin.H {
	return gin.H{
		"job":         snap,
		"events_path": "/api/jobs/" + snap.JobID + "/events",
	}
}

func (h *Handler) getJob(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	snap, err := h.uploads.Get(sess.ID, c.Param("job_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": snap})
}

func (h *Handler) abandonJob(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if err := h.uploads.Abandon(sess.ID, c.Param("job_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// jobEvents streams job snapshots: phase on every phase change, progress on
// every increase while uploading, then done or error once the job ends.
func (h *Handler) jobEvents(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	updates, stop, err := h.uploads.Subscribe(sess.ID, c.Param("job_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	defer stop()

	stream, err := openEventStream(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	var last *upload.Snapshot
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := sendJobEvents(stream, last, snap); err != nil {
				return
			}
			last = &snap
		}
	}
}

func sendJobEvents(stream *eventStream, last *upload.Snapshot, snap upload.Snapshot) error {
	if last == nil || last.Phase != snap.Phase {
		if err := stream.send("phase", gin.H{"phase": snap.Phase, "progress": snap.Progress}); err != nil {
			return err
		}
	}
	if snap.Phase == upload.PhaseUploading && (last == nil || snap.Progress > last.Progress) {
		if err := stream.send("progress", gin.H{"progress": snap.Progress}); err != nil {
			return err
		}
	}
	switch snap.Phase {
	case upload.PhaseSucceeded:
		return stream.send("done", snap)
	case upload.PhaseFailed:
		return stream.send("error", gin.H{"message": snap.Error, "kind": snap.ErrorKind})
	}
	return nil
}
