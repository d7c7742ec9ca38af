package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"fileforge/internal/faults"
	"fileforge/internal/format"
	"fileforge/internal/logging"
	"fileforge/internal/orchestrator"
	"fileforge/internal/storage"
)

type convertRequest struct {
	FileID       string            `json:"fileId"`
	SourceFormat string            `json:"sourceFormat"`
	TargetFormat string            `json:"targetFormat"`
	Options      map[string]string `json:"options"`
}

type uploadResponse struct {
	FileID string `json:"fileId"`
	Size   int64  `json:"size"`
}

type formatResponse struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	MimeType      string   `json:"mimeType"`
	Category      string   `json:"category"`
	ConvertibleTo []string `json:"convertibleTo"`
}

func toFormatResponse(f format.Format) formatResponse {
	return formatResponse{
		ID:            f.ID,
		Name:          f.Name,
		MimeType:      f.MimeType,
		Category:      string(f.Category),
		ConvertibleTo: f.ConvertibleTo,
	}
}

func (s *Server) handleUpload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		respondError(c, faults.Wrap(faults.ErrValidation, "api", "upload", "missing file field", nil))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(c, faults.Wrap(faults.ErrTransient, "api", "upload", "read upload", err))
		return
	}

	fileID := uuid.NewString()
	contentType := header.Header.Get("Content-Type")
	if err := s.blobs.Put(c.Request.Context(), storage.UploadKey(fileID), data, contentType); err != nil {
		respondError(c, err)
		return
	}

	s.logger.Info("upload stored",
		logging.String("file_id", fileID),
		logging.Int("bytes", len(data)))
	respondData(c, http.StatusCreated, uploadResponse{FileID: fileID, Size: int64(len(data))})
}

func (s *Server) handleConvert(c *gin.Context) {
	var req convertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, faults.Wrap(faults.ErrValidation, "api", "convert", "invalid request body", nil))
		return
	}

	job, err := s.orch.Submit(c.Request.Context(), orchestrator.SubmitRequest{
		SourceFileID: req.FileID,
		SourceFormat: req.SourceFormat,
		TargetFormat: req.TargetFormat,
		Options:      req.Options,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusAccepted, job)
}

func (s *Server) handleStatus(c *gin.Context) {
	status, err := s.orch.Status(c.Request.Context(), c.Param("jobID"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, status)
}

func (s *Server) handleFormats(c *gin.Context) {
	all := format.All()
	out := make([]formatResponse, 0, len(all))
	for _, f := range all {
		out = append(out, toFormatResponse(f))
	}
	respondData(c, http.StatusOK, out)
}

func (s *Server) handleFormatsByCategory(c *gin.Context) {
	category := format.Category(c.Param("category"))
	known := false
	for _, cat := range format.Categories() {
		if cat == category {
			known = true
			break
		}
	}
	if !known {
		respondError(c, faults.Wrap(faults.ErrValidation, "api", "formats", "unknown category "+c.Param("category"), nil))
		return
	}

	matches := format.ByCategory(category)
	out := make([]formatResponse, 0, len(matches))
	for _, f := range matches {
		out = append(out, toFormatResponse(f))
	}
	respondData(c, http.StatusOK, out)
}

func (s *Server) handleDownload(c *gin.Context) {
	signed, err := s.orch.DownloadURL(c.Request.Context(), c.Param("jobID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, signed)
}

func (s *Server) handleFiles(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		respondError(c, faults.Wrap(faults.ErrValidation, "api", "files", "missing token", nil))
		return
	}

	key, err := s.signer.Verify(token)
	if err != nil {
		respondError(c, err)
		return
	}

	data, contentType, err := s.blobs.Get(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+path.Base(key)+`"`)
	c.Data(http.StatusOK, contentType, data)
}

type retryRequest struct {
	JobIDs []string `json:"jobIds"`
}

type countResponse struct {
	Count int64 `json:"count"`
}

func (s *Server) handleQueueList(c *gin.Context) {
	snapshot, err := s.orch.Queue(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, snapshot)
}

func (s *Server) handleQueueRetry(c *gin.Context) {
	var req retryRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, faults.Wrap(faults.ErrValidation, "api", "queue", "invalid request body", nil))
			return
		}
	}
	retried, err := s.orch.RetryDead(c.Request.Context(), req.JobIDs...)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, countResponse{Count: retried})
}

func (s *Server) handleQueueClear(c *gin.Context) {
	removed, err := s.orch.ClearQueue(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, countResponse{Count: removed})
}

func (s *Server) handleSubscribe(c *gin.Context) {
	sub, err := s.broadcaster.Subscribe(c.Request.Context(), c.Param("jobID"))
	if err != nil {
		respondError(c, err)
		return
	}
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case msg, ok := <-sub.Events():
			if !ok {
				return
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			fmt.Fprintf(c.Writer, "event: %s\n", msg.Type)
			fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
			c.Writer.Flush()

			// Terminal updates end the stream; the snapshot of an already
			// finished job counts.
			if msg.Status.IsTerminal() {
				return
			}
		}
	}
}
