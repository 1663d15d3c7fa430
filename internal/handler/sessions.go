package handler

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"candor/internal/export"
	"candor/internal/repo"
	"candor/internal/session"
)

const maxAudioBytes = 25 << 20

func (h *Handler) createSession(c *gin.Context) {
	v, err := h.interviewer.Create(c.Request.Context())
	if err != nil {
		h.abort(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (h *Handler) getSession(c *gin.Context) {
	v, err := h.interviewer.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.abort(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) currentQuestion(c *gin.Context) {
	v, err := h.interviewer.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.abort(c, err, nil)
		return
	}
	if v.Question == nil {
		c.JSON(http.StatusOK, gin.H{"stage": v.Stage, "question": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stage":             v.Stage,
		"question":          v.Question,
		"current_index":     v.CurrentIndex,
		"total_questions":   v.TotalQuestions,
		"remaining_seconds": v.RemainingSeconds,
	})
}

func (h *Handler) deleteSession(c *gin.Context) {
	if err := h.interviewer.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.abort(c, err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}

// command runs the command built by build against the session named in the path
func (h *Handler) command(build func(*gin.Context) (session.Command, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		cmd, err := build(c)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		if cmd == nil {
			return
		}
		res, err := h.interviewer.Handle(c.Request.Context(), c.Param("id"), cmd)
		if err != nil {
			h.abort(c, err, &res)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func (h *Handler) submitProfile(c *gin.Context) {
	h.command(func(c *gin.Context) (session.Command, error) {
		var req session.SubmitProfile
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, fmt.Errorf("invalid profile body: %w", err)
		}
		return req, nil
	})(c)
}

func (h *Handler) submitIntroduction(c *gin.Context) {
	h.command(func(c *gin.Context) (session.Command, error) {
		text, ok, err := h.audioText(c)
		if err != nil || ok {
			return session.SubmitIntroduction{Transcript: text}, err
		}
		var req session.SubmitIntroduction
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, fmt.Errorf("invalid introduction body: %w", err)
		}
		return req, nil
	})(c)
}

func (h *Handler) submitAnswer(c *gin.Context) {
	h.command(func(c *gin.Context) (session.Command, error) {
		text, ok, err := h.audioText(c)
		if err != nil {
			return nil, err
		}
		if ok {
			expected, err := formIndex(c)
			return session.SubmitAnswer{Answer: text, Expected: expected}, err
		}
		var req session.SubmitAnswer
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, fmt.Errorf("invalid answer body: %w", err)
		}
		return req, nil
	})(c)
}

func (h *Handler) skipQuestion(c *gin.Context) {
	h.command(func(c *gin.Context) (session.Command, error) {
		var req session.SkipQuestion
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
				return nil, fmt.Errorf("invalid skip body: %w", err)
			}
		}
		return req, nil
	})(c)
}

func (h *Handler) submitSecondary(c *gin.Context) {
	h.command(func(c *gin.Context) (session.Command, error) {
		text, ok, err := h.audioText(c)
		if err != nil || ok {
			return session.SubmitSecondary{Response: text}, err
		}
		var req session.SubmitSecondary
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, fmt.Errorf("invalid secondary body: %w", err)
		}
		return req, nil
	})(c)
}

// audioText transcribes a multipart "audio" upload. ok is false for non-multipart requests.
func (h *Handler) audioText(c *gin.Context) (text string, ok bool, err error) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		return "", false, nil
	}
	fh, err := c.FormFile("audio")
	if err != nil {
		return "", true, fmt.Errorf("missing audio file: %w", err)
	}
	if fh.Size > maxAudioBytes {
		return "", true, fmt.Errorf("audio file exceeds %d bytes", maxAudioBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return "", true, fmt.Errorf("failed to open audio: %w", err)
	}
	defer f.Close()
	audio, err := io.ReadAll(io.LimitReader(f, maxAudioBytes))
	if err != nil {
		return "", true, fmt.Errorf("failed to read audio: %w", err)
	}
	return h.interviewer.Transcribe(c.Request.Context(), c.Param("id"), audio, fh.Filename), true, nil
}

func formIndex(c *gin.Context) (*int, error) {
	raw := c.PostForm("expected_index")
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid expected_index %q", raw)
	}
	return &n, nil
}

func (h *Handler) export(c *gin.Context) {
	sub, err := h.interviewer.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.abort(c, err, nil)
		return
	}
	writeReport(c, sub)
}

func writeReport(c *gin.Context, sub repo.Submission) {
	var (
		buf         bytes.Buffer
		err         error
		contentType string
		format      = strings.ToLower(c.DefaultQuery("format", "csv"))
	)
	switch format {
	case "csv":
		contentType = "text/csv"
		err = export.WriteCSV(&buf, sub)
	case "xlsx":
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		err = export.WriteXLSX(&buf, sub)
	default:
		badRequest(c, fmt.Sprintf("unsupported format %q", format))
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "failed to render report"})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(sub, format)))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}
