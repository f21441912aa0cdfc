package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aihub-platform/backend/pkg/apperr"
	"github.com/aihub-platform/backend/pkg/models"
)

var acceptedExtensions = map[string]models.FileType{
	".pdf":  models.FileTypePDF,
	".docx": models.FileTypeDOCX,
	".txt":  models.FileTypeTXT,
	".md":   models.FileTypeMD,
}

func (s *Server) handleListFiles(c *gin.Context) {
	files, err := s.files.ListByAssistant(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

// handleUploadFile accepts a multipart file, validates its extension and
// size against the configured cap (spec §6), persists it under the
// file-store root, and enqueues it for the ingestion reaper to pick up.
func (s *Server) handleUploadFile(c *gin.Context) {
	assistantID := c.Param("id")

	header, err := c.FormFile("file")
	if err != nil {
		writeError(c, apperr.ValidationField("file", "no file uploaded"))
		return
	}
	if header.Size == 0 {
		writeError(c, apperr.ValidationField("file", "uploaded file is empty"))
		return
	}
	if header.Size > s.cfg.UploadSizeCapBytes() {
		writeError(c, apperr.ValidationField("file", fmt.Sprintf("file exceeds %d MiB limit", s.cfg.UploadSizeCapMB)))
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	fileType, ok := acceptedExtensions[ext]
	if !ok {
		writeError(c, apperr.ValidationField("file", "unsupported file extension: "+ext))
		return
	}

	src, err := header.Open()
	if err != nil {
		writeError(c, err)
		return
	}
	defer src.Close()

	storedName := uuid.NewString() + ext
	destPath := filepath.Join(s.cfg.FileStoreRoot, storedName)
	if err := os.MkdirAll(s.cfg.FileStoreRoot, 0o755); err != nil {
		writeError(c, fmt.Errorf("preparing file store: %w", err))
		return
	}
	dst, err := os.Create(destPath)
	if err != nil {
		writeError(c, fmt.Errorf("creating stored file: %w", err))
		return
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		writeError(c, fmt.Errorf("writing stored file: %w", err))
		return
	}

	file := &models.KnowledgeFile{
		AssistantID: assistantID,
		Filename:    header.Filename,
		FileType:    fileType,
		FilePath:    destPath,
		SizeBytes:   header.Size,
	}
	if err := s.files.Enqueue(c.Request.Context(), file); err != nil {
		writeError(c, err)
		return
	}

	claims, _ := sessionClaims(c)
	s.auditWriter.RecordSettingsAction("file.uploaded", file.ID, claims.Subject, &claims.Subject, clientAddr(c), c.Request.UserAgent(), nil)
	c.JSON(http.StatusCreated, file)
}

func (s *Server) handleDeleteFile(c *gin.Context) {
	id := c.Param("fileID")
	file, err := s.files.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := s.files.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	_ = os.Remove(file.FilePath)
	c.Status(http.StatusNoContent)
}

// handleReprocessFile clears the file's existing vector-store chunks and
// resets its state to pending with an immediate retry, restoring it to the
// reaper's claim queue (spec §8's reprocess round-trip property).
func (s *Server) handleReprocessFile(c *gin.Context) {
	id := c.Param("fileID")
	file, err := s.files.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := s.vectors.DeleteByFile(c.Request.Context(), file.ID); err != nil {
		writeError(c, err)
		return
	}
	if _, err := s.db.Pool.Exec(c.Request.Context(), `
		UPDATE knowledge_files SET status = 'pending', attempt_count = 0, next_retry_at = now(), error_message = NULL
		WHERE id = $1
	`, file.ID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}
