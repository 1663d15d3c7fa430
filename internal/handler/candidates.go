package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"candor/internal/repo"
)

var errNoHistory = errors.New("candidate history is not configured")

func (h *Handler) listCandidates(c *gin.Context) {
	if h.history == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorResponse{Error: errNoHistory.Error()})
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	opts := repo.ListOptions{Page: page, Size: size, Sort: c.Query("sort")}

	items, total, err := h.history.List(c.Request.Context(), opts)
	if err != nil {
		h.abort(c, err, nil)
		return
	}
	if items == nil {
		items = []repo.Summary{}
	}
	c.JSON(http.StatusOK, gin.H{
		"page":       max(page, 1),
		"count":      len(items),
		"total":      total,
		"candidates": items,
	})
}

func (h *Handler) record(c *gin.Context) (*repo.Record, bool) {
	if h.history == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorResponse{Error: errNoHistory.Error()})
		return nil, false
	}
	rec, err := h.history.GetByEmail(c.Request.Context(), c.Param("email"))
	if err != nil {
		h.abort(c, err, nil)
		return nil, false
	}
	return rec, true
}

func (h *Handler) getCandidate(c *gin.Context) {
	if rec, ok := h.record(c); ok {
		c.JSON(http.StatusOK, rec)
	}
}

func (h *Handler) exportCandidate(c *gin.Context) {
	if rec, ok := h.record(c); ok {
		writeReport(c, rec.Submission)
	}
}
