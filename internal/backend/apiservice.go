package backend

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/jo-hoe/goscratch/internal/backend/imagescale"
	"github.com/jo-hoe/goscratch/internal/common"
	"github.com/jo-hoe/goscratch/internal/core"
	"github.com/jo-hoe/goscratch/internal/grid"
	"github.com/labstack/echo/v4"
)

const (
	warningPersist = "state changed but could not be saved"
	imageURL       = "/image"
)

type APIService struct {
	config      *core.ServiceConfig
	coreService *core.CoreService
}

// StateResponse is the JSON view of the grid.
type StateResponse struct {
	Rows        int    `json:"rows"`
	Cols        int    `json:"cols"`
	Covered     []int  `json:"covered"`
	Revealed    []int  `json:"revealed"`
	ClickCount  int    `json:"clickCount"`
	AllRevealed bool   `json:"allRevealed"`
	ImageURL    string `json:"imageUrl"`
	Warning     string `json:"warning,omitempty"`
}

type RevealResponse struct {
	Index int `json:"index"`
	StateResponse
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewAPIService(config *core.ServiceConfig, coreService *core.CoreService) *APIService {
	return &APIService{
		config:      config,
		coreService: coreService,
	}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	// Set probe route
	e.GET("/probe", func(c echo.Context) error {
		return c.String(http.StatusOK, "API Service is running")
	})

	e.GET("/api/state", s.getStateHandler)
	e.POST("/api/reveal", s.revealHandler)
	e.POST("/api/reveal-all", s.revealAllHandler)
	e.POST("/api/reset", s.resetHandler)
	e.POST("/api/image", s.uploadImageHandler)
}

func (s *APIService) getStateHandler(c echo.Context) error {
	state, err := s.coreService.Snapshot(c.Request().Context())
	if err != nil {
		return s.internalError(c, "getStateHandler", err)
	}
	return c.JSON(http.StatusOK, toStateResponse(state, nil))
}

func (s *APIService) revealHandler(c echo.Context) error {
	idx, state, err := s.coreService.RevealOne(c.Request().Context())
	if errors.Is(err, grid.ErrAllRevealed) {
		return c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	}
	if err != nil && !core.IsPersistError(err) {
		return s.internalError(c, "revealHandler", err)
	}
	return c.JSON(http.StatusOK, RevealResponse{Index: idx, StateResponse: toStateResponse(state, err)})
}

func (s *APIService) revealAllHandler(c echo.Context) error {
	if confirmed, err := s.requireConfirmation(c); !confirmed {
		return err
	}
	state, err := s.coreService.RevealAll(c.Request().Context())
	if err != nil && !core.IsPersistError(err) {
		return s.internalError(c, "revealAllHandler", err)
	}
	return c.JSON(http.StatusOK, toStateResponse(state, err))
}

func (s *APIService) resetHandler(c echo.Context) error {
	if confirmed, err := s.requireConfirmation(c); !confirmed {
		return err
	}
	state, err := s.coreService.Reset(c.Request().Context())
	if err != nil && !core.IsPersistError(err) {
		return s.internalError(c, "resetHandler", err)
	}
	return c.JSON(http.StatusOK, toStateResponse(state, err))
}

// uploadImageHandler accepts the raw image bytes or a base64 data URL as
// request body.
func (s *APIService) uploadImageHandler(c echo.Context) error {
	limit := s.config.Image.MaxUploadBytes
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, limit+1))
	if err != nil {
		slog.Error("uploadImageHandler: failed to read request body",
			"status", http.StatusBadRequest, "error", err)
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "failed to read request body"})
	}
	if len(body) == 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "empty request body"})
	}
	if int64(len(body)) > limit {
		return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "image too large"})
	}

	state, err := s.coreService.UploadImage(c.Request().Context(), body)
	if imagescale.IsDecodeError(err) {
		slog.Warn("uploadImageHandler: body is not an image", "error", err, "size_bytes", len(body))
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
	}
	if err != nil && !core.IsPersistError(err) {
		return s.internalError(c, "uploadImageHandler", err)
	}
	return c.JSON(http.StatusOK, toStateResponse(state, err))
}

func (s *APIService) requireConfirmation(c echo.Context) (bool, error) {
	var req common.ConfirmRequest
	if err := c.Bind(&req); err != nil {
		return false, c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return false, c.JSON(http.StatusBadRequest, ErrorResponse{Error: "operation requires {\"confirmed\": true}"})
	}
	return true, nil
}

func (s *APIService) internalError(c echo.Context, handler string, err error) error {
	slog.Error(handler+": request failed", "status", http.StatusInternalServerError, "error", err)
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

func toStateResponse(state grid.State, persistErr error) StateResponse {
	resp := StateResponse{
		Rows:        state.Rows,
		Cols:        state.Cols,
		Covered:     state.Covered,
		Revealed:    state.Revealed,
		ClickCount:  state.ClickCount,
		AllRevealed: state.AllRevealed(),
		ImageURL:    imageURL,
	}
	if persistErr != nil {
		resp.Warning = warningPersist
	}
	return resp
}
