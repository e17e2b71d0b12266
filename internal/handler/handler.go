package handler

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/celiboy93/supaimage/internal/config"
	"github.com/celiboy93/supaimage/internal/domain"
	"github.com/celiboy93/supaimage/internal/service"
)

type Handler struct {
	uploads service.UploadService
	drafts  service.DraftService
	cfg     *config.Config
	log     *zap.Logger
}

func NewHandler(uploads service.UploadService, drafts service.DraftService, cfg *config.Config, log *zap.Logger) *Handler {
	return &Handler{
		uploads: uploads,
		drafts:  drafts,
		cfg:     cfg,
		log:     log,
	}
}

func (h *Handler) UploadImage(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image file provided"})
		return
	}

	if file.Size > h.cfg.App.MaxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File too large"})
		return
	}

	src, err := file.Open()
	if err != nil {
		h.log.Error("Failed to open uploaded file", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process file"})
		return
	}
	defer src.Close()

	fileBytes, err := io.ReadAll(src)
	if err != nil {
		h.log.Error("Failed to read uploaded file", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file"})
		return
	}

	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		if strings.ToLower(filepath.Ext(file.Filename)) == ".png" {
			contentType = "image/png"
		} else {
			contentType = "image/jpeg"
		}
	}

	image, err := h.uploads.Upload(c.Request.Context(), fileBytes, file.Filename, contentType)
	if err != nil {
		h.log.Error("Failed to upload image", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":  image.PublicURL,
		"name": image.Name,
		"size": image.Size,
	})
}

func (h *Handler) ProxyImage(c *gin.Context) {
	rawURL := c.Query("url")
	if rawURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing 'url' query parameter"})
		return
	}

	data, contentType, err := h.uploads.FetchRemote(c.Request.Context(), rawURL)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidURL):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, domain.ErrHostNotAllowed):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		default:
			h.log.Error("Proxy fetch failed", zap.String("url", rawURL), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		}
		return
	}

	c.Data(http.StatusOK, contentType, data)
}

type saveDraftRequest struct {
	URL     string `json:"url" binding:"required"`
	Caption string `json:"caption"`
}

func (h *Handler) SaveDraft(c *gin.Context) {
	var req saveDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	draft, err := h.drafts.Save(c.Request.Context(), req.URL, req.Caption)
	if err != nil {
		h.log.Error("Failed to save draft", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "id": draft.ID})
}

func (h *Handler) ListDrafts(c *gin.Context) {
	drafts, err := h.drafts.List(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to list drafts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if drafts == nil {
		drafts = []domain.DraftPost{}
	}

	c.JSON(http.StatusOK, gin.H{"items": drafts})
}

type idRequest struct {
	ID string `json:"id" binding:"required"`
}

func (h *Handler) DeleteDraft(c *gin.Context) {
	var req idRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.drafts.Delete(c.Request.Context(), req.ID); err != nil {
		if errors.Is(err, domain.ErrDraftNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
			return
		}
		h.log.Error("Failed to delete draft", zap.String("id", req.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) SendDraft(c *gin.Context) {
	var req idRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.drafts.Send(c.Request.Context(), req.ID); err != nil {
		if errors.Is(err, domain.ErrDraftNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
			return
		}
		h.log.Error("Failed to send draft", zap.String("id", req.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) SendAllDrafts(c *gin.Context) {
	reports, err := h.drafts.SendAll(c.Request.Context())
	if err != nil && reports == nil {
		h.log.Error("Bulk send failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if reports == nil {
		reports = []domain.SendReport{}
	}

	c.JSON(http.StatusOK, gin.H{"items": reports})
}

func (h *Handler) ListHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	records, err := h.uploads.History(c.Request.Context(), limit)
	if err != nil {
		h.log.Error("Failed to list history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if records == nil {
		records = []domain.HistoryRecord{}
	}

	c.JSON(http.StatusOK, gin.H{"items": records})
}

func (h *Handler) DeleteHistory(c *gin.Context) {
	var req idRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.uploads.DeleteHistory(c.Request.Context(), req.ID); err != nil {
		if errors.Is(err, domain.ErrHistoryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
			return
		}
		h.log.Error("Failed to delete history record", zap.String("id", req.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}

func (h *Handler) GetUI(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{})
}
