package api

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"sectiondesk/internal/models"
	"sectiondesk/internal/processor"
	"sectiondesk/internal/store"
	"sectiondesk/internal/worker"
)

const defaultMaxUploadBytes = 10 << 20 // 10 MB

// pdfContentType is the only declared type the upload slots accept.
const pdfContentType = "application/pdf"

// Submitter runs one validated submission, returning the optimistic records.
type Submitter interface {
	Submit(form models.SectionForm) ([]models.SubmissionRecord, error)
}

// Handler wires the page and the JSON API to the record store, the upload
// staging, and the submission controller.
type Handler struct {
	records        *store.RecordStore
	uploads        *store.UploadStore
	submitter      Submitter
	maxUploadBytes int64
}

// NewHandler constructs a Handler instance.
func NewHandler(records *store.RecordStore, uploads *store.UploadStore, submitter Submitter, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &Handler{
		records:        records,
		uploads:        uploads,
		submitter:      submitter,
		maxUploadBytes: maxUploadBytes,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.index)
	api := router.Group("/api")
	api.POST("/uploads", h.stageUpload)
	api.GET("/uploads", h.listUploads)
	api.POST("/submissions", h.createSubmission)
	api.GET("/submissions", h.listSubmissions)
}

func (h *Handler) index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexPage)
}

// stageUpload accepts one PDF for a slot. A non-PDF file is ignored without
// an error and the slot keeps its previous staging.
func (h *Handler) stageUpload(c *gin.Context) {
	slot, err := models.ParseSlot(c.PostForm("slot"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid upload slot"})
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if file.Size > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	declared := file.Header.Get("Content-Type")
	if declared != pdfContentType {
		log.Debug().Str("slot", string(slot)).Str("type", declared).Msg("non-pdf upload ignored")
		c.JSON(http.StatusOK, h.slotState(slot))
		return
	}

	filename := filepath.Base(file.Filename)
	destDir, destPath, finalName := h.uniqueFilePath(slot, filename)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create directory failed"})
		return
	}
	if err := c.SaveUploadedFile(file, destPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save file failed"})
		return
	}
	h.uploads.Stage(&models.StagedFile{
		ID:         uuid.NewString(),
		Slot:       slot,
		FileName:   finalName,
		StoredPath: destPath,
		Size:       file.Size,
		CreatedAt:  time.Now(),
	})
	c.JSON(http.StatusCreated, h.slotState(slot))
}

func (h *Handler) listUploads(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"primary":   h.slotState(models.SlotPrimary),
		"secondary": h.slotState(models.SlotSecondary),
	})
}

type submissionRequest struct {
	Sections map[string]models.SectionEntry `json:"sections"`
}

func (h *Handler) createSubmission(c *gin.Context) {
	var req submissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	form := make(models.SectionForm, len(models.Labels))
	for _, label := range models.Labels {
		entry := req.Sections[string(label)]
		entry.Number = strings.TrimSpace(entry.Number)
		entry.Date = strings.TrimSpace(entry.Date)
		form[label] = entry
	}

	records, err := h.submitter.Submit(form)
	if err != nil {
		switch {
		case errors.Is(err, processor.ErrMissingFile), errors.Is(err, processor.ErrIncompleteSection):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, processor.ErrSubmissionInFlight):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, worker.ErrDispatcherBusy):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"records": records})
}

func (h *Handler) listSubmissions(c *gin.Context) {
	var label models.Label
	if raw := c.DefaultQuery("label", "all"); raw != "all" {
		parsed, err := models.ParseLabel(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid label filter"})
			return
		}
		label = parsed
	}
	c.JSON(http.StatusOK, gin.H{
		"records":   h.records.List(label),
		"in_flight": h.records.InFlight(),
	})
}

func (h *Handler) slotState(slot models.Slot) gin.H {
	staged, ok := h.uploads.Get(slot)
	if !ok {
		return gin.H{"slot": slot, "staged": false}
	}
	return gin.H{
		"slot":      slot,
		"staged":    true,
		"file_name": staged.FileName,
		"size":      staged.Size,
	}
}

func (h *Handler) getFilePath(slot models.Slot, filename string) (string, string) {
	destDir := filepath.Join(h.uploads.Dir(), string(slot))
	destPath := filepath.Join(destDir, filename)
	return destDir, destPath
}

func (h *Handler) uniqueFilePath(slot models.Slot, filename string) (string, string, string) {
	destDir, destPath := h.getFilePath(slot, filename)
	if _, err := os.Stat(destPath); os.IsNotExist(err) {
		return destDir, destPath, filename
	}
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	for idx := 1; idx <= 1000; idx++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, idx, ext)
		dir, path := h.getFilePath(slot, candidate)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return dir, path, candidate
		}
	}
	fallback := fmt.Sprintf("%s-%d%s", base, time.Now().UnixNano(), ext)
	return destDir, filepath.Join(destDir, fallback), fallback
}
