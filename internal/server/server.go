// Package server provides the HTTP API for the extraction pipeline.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lekompozer/wordai-aiservice-sub007/internal/queue"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/task"
	"github.com/lekompozer/wordai-aiservice-sub007/internal/vectorstore"
)

// TaskQueue is the slice of the queue layer the API depends on.
type TaskQueue interface {
	Enqueue(ctx context.Context, queue, taskID string, payload any) (bool, error)
	GetStatus(taskID string) (*queue.Status, error)
}

// Catalog is the slice of the registrar the maintenance endpoints depend on.
type Catalog interface {
	SoftRemove(ctx context.Context, companyID, itemID string) error
	RemoveByFile(ctx context.Context, companyID, fileID string) (int64, error)
}

// Server exposes task submission, status and catalog maintenance endpoints.
type Server struct {
	echo       *echo.Echo
	queue      TaskQueue
	catalog    Catalog
	vectors    vectorstore.Store
	collection string
	validate   *validator.Validate
	logger     *zap.Logger
	config     *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates the API server on the given task queue, catalog and
// vector store.
func NewServer(q TaskQueue, cat Catalog, vectors vectorstore.Store, collection string, logger *zap.Logger, cfg *Config) (*Server, error) {
	if q == nil {
		return nil, fmt.Errorf("task queue cannot be nil")
	}
	if cat == nil {
		return nil, fmt.Errorf("catalog cannot be nil")
	}
	if vectors == nil {
		return nil, fmt.Errorf("vector store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Port: 8000}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:       e,
		queue:      q,
		catalog:    cat,
		vectors:    vectors,
		collection: collection,
		validate:   validator.New(),
		logger:     logger,
		config:     cfg,
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api/extraction")
	api.POST("/process", s.handleProcess)
	api.GET("/status/:task_id", s.handleStatus)

	cat := s.echo.Group("/api/catalog")
	cat.DELETE("/items/:item_id", s.handleRemoveItem)
	cat.DELETE("/files/:file_id", s.handleRemoveFile)
}

// ProcessRequest is the request body for POST /api/extraction/process.
// R2URL points at the uploaded document in object storage; CallbackURL is
// where the pipeline reports the terminal result.
type ProcessRequest struct {
	CompanyID          string         `json:"company_id" validate:"required"`
	R2URL              string         `json:"r2_url" validate:"required,url"`
	FileName           string         `json:"file_name" validate:"required"`
	FileType           string         `json:"file_type"`
	FileSize           int64          `json:"file_size"`
	FileID             string         `json:"file_id"`
	Industry           string         `json:"industry"`
	Language           string         `json:"language"`
	DataType           string         `json:"data_type"`
	TargetCategories   []string       `json:"target_categories"`
	CallbackURL        string         `json:"callback_url" validate:"omitempty,url"`
	CompanyInfo        map[string]any `json:"company_info"`
	ProcessingMetadata map[string]any `json:"processing_metadata"`
}

// ProcessResponse is the response body for POST /api/extraction/process.
type ProcessResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleProcess validates the submission, mints a task id and enqueues an
// extraction task. Acceptance means durably queued, not processed.
func (s *Server) handleProcess(c echo.Context) error {
	var req ProcessRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid process request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, validationMessage(err))
	}

	t := task.ExtractionTask{
		TaskID:             task.NewTaskID(),
		CompanyID:          req.CompanyID,
		R2URL:              req.R2URL,
		FileName:           req.FileName,
		FileType:           req.FileType,
		FileSize:           req.FileSize,
		FileID:             req.FileID,
		Industry:           req.Industry,
		Language:           req.Language,
		DataType:           req.DataType,
		TargetCategories:   req.TargetCategories,
		CallbackURL:        req.CallbackURL,
		CompanyInfo:        req.CompanyInfo,
		ProcessingMetadata: req.ProcessingMetadata,
		CreatedAt:          time.Now().UTC(),
	}

	ok, err := s.queue.Enqueue(c.Request().Context(), queue.Extraction, t.TaskID, t)
	if err != nil {
		s.logger.Error("failed to enqueue extraction task", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to queue task")
	}
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "extraction queue is full, retry later")
	}

	s.logger.Info("extraction task accepted",
		zap.String("task_id", t.TaskID),
		zap.String("company_id", t.CompanyID),
		zap.String("file_name", t.FileName))

	return c.JSON(http.StatusAccepted, ProcessResponse{
		TaskID: t.TaskID,
		Status: string(queue.StateQueued),
	})
}

// handleStatus returns the status record for a task id. Unknown ids and
// records that already aged out are indistinguishable: both are 404.
func (s *Server) handleStatus(c echo.Context) error {
	taskID := c.Param("task_id")

	st, err := s.queue.GetStatus(taskID)
	if err != nil {
		s.logger.Error("failed to read task status", zap.String("task_id", taskID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read task status")
	}
	if st == nil {
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	}

	return c.JSON(http.StatusOK, st)
}

// RemoveItemResponse is the response body for DELETE /api/catalog/items/:item_id.
type RemoveItemResponse struct {
	ItemID string `json:"item_id"`
	Status string `json:"status"`
}

// handleRemoveItem soft-removes one catalog item: the record keeps its row,
// flagged removed.
func (s *Server) handleRemoveItem(c echo.Context) error {
	itemID := c.Param("item_id")
	companyID := c.QueryParam("company_id")
	if companyID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "company_id query parameter is required")
	}

	if err := s.catalog.SoftRemove(c.Request().Context(), companyID, itemID); err != nil {
		s.logger.Error("failed to remove catalog item",
			zap.String("company_id", companyID),
			zap.String("item_id", itemID),
			zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to remove item")
	}

	return c.JSON(http.StatusOK, RemoveItemResponse{ItemID: itemID, Status: "removed"})
}

// RemoveFileResponse is the response body for DELETE /api/catalog/files/:file_id.
type RemoveFileResponse struct {
	FileID         string `json:"file_id"`
	RecordsDeleted int64  `json:"records_deleted"`
	PointsDeleted  int    `json:"points_deleted"`
}

// maxCleanupScroll caps the pre-delete point count per cleanup request.
const maxCleanupScroll = 1000

// handleRemoveFile bulk-deletes everything one source file produced: vector
// points by filter and catalog records by file id. The two deletes are
// independent best-effort operations; there is no cross-store transaction.
func (s *Server) handleRemoveFile(c echo.Context) error {
	fileID := c.Param("file_id")
	companyID := c.QueryParam("company_id")
	if companyID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "company_id query parameter is required")
	}

	ctx := c.Request().Context()
	filter := vectorstore.Filter{"company_id": companyID, "file_id": fileID}

	points, err := s.vectors.Scroll(ctx, s.collection, filter, maxCleanupScroll)
	if err != nil {
		s.logger.Warn("failed to count points before cleanup",
			zap.String("file_id", fileID), zap.Error(err))
	}

	if err := s.vectors.Delete(ctx, s.collection, filter); err != nil {
		s.logger.Error("failed to delete vector points",
			zap.String("company_id", companyID),
			zap.String("file_id", fileID),
			zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete vector points")
	}

	records, err := s.catalog.RemoveByFile(ctx, companyID, fileID)
	if err != nil {
		s.logger.Error("failed to delete catalog records",
			zap.String("company_id", companyID),
			zap.String("file_id", fileID),
			zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete catalog records")
	}

	s.logger.Info("file cleanup complete",
		zap.String("company_id", companyID),
		zap.String("file_id", fileID),
		zap.Int64("records_deleted", records),
		zap.Int("points_deleted", len(points)))

	return c.JSON(http.StatusOK, RemoveFileResponse{
		FileID:         fileID,
		RecordsDeleted: records,
		PointsDeleted:  len(points),
	})
}

func validationMessage(err error) string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok || len(errs) == 0 {
		return "invalid request"
	}
	e := errs[0]
	return fmt.Sprintf("field %s failed on '%s'", e.Field(), e.Tag())
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
