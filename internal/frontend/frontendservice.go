package frontend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jo-hoe/goscratch/internal/backend/imagescale"
	"github.com/jo-hoe/goscratch/internal/common"
	"github.com/jo-hoe/goscratch/internal/core"
	"github.com/jo-hoe/goscratch/internal/grid"
	"github.com/labstack/echo/v4"
)

const (
	MainPageName     = "index.html"
	DefaultImagePath = "/assets/default.svg"
	NoticeEvent      = "scratchNotice"

	mimePNG = "image/png"
	mimeSVG = "image/svg+xml"

	noticeAllRevealed  = "All cells have been revealed!"
	noticeDecodeFailed = "The selected file could not be read as an image."
	noticePersistFail  = "Your progress could not be saved. It will be lost when the page is reloaded."
)

type FrontendService struct {
	coreService *core.CoreService
	config      *core.ServiceConfig
}

type cellView struct {
	grid.Cell
	OOB bool
}

type counterView struct {
	ClickCount int
	OOB        bool
}

type scratchcardView struct {
	Rows      int
	Cols      int
	Cells     []cellView
	Counter   counterView
	Timestamp string
}

type revealView struct {
	Cell    cellView
	Counter counterView
}

func NewFrontendService(config *core.ServiceConfig, coreService *core.CoreService) *FrontendService {
	return &FrontendService{
		coreService: coreService,
		config:      config,
	}
}

// rootRedirectHandler redirects root path to index.html
func (service *FrontendService) rootRedirectHandler(ctx echo.Context) error {
	return ctx.Redirect(http.StatusMovedPermanently, "/"+MainPageName)
}

func (service *FrontendService) SetRoutes(e *echo.Echo) {
	e.Renderer = NewTemplate()

	e.GET("/", service.rootRedirectHandler) // Redirect root to index.html
	e.GET("/"+MainPageName, service.indexHandler)

	e.POST("/htmx/image", service.htmxUploadImageHandler)
	e.POST("/htmx/reveal", service.htmxRevealHandler)
	e.POST("/htmx/reveal-all", service.htmxRevealAllHandler)
	e.POST("/htmx/reset", service.htmxResetHandler)

	e.GET("/image", service.imageHandler)
	e.GET(DefaultImagePath, service.defaultImageHandler)
}

func (service *FrontendService) indexHandler(ctx echo.Context) error {
	state, err := service.coreService.Snapshot(ctx.Request().Context())
	if err != nil {
		slog.Error("indexHandler: failed to read state",
			"status", http.StatusServiceUnavailable, "error", err)
		return ctx.String(http.StatusServiceUnavailable, "Scratch card is not available")
	}
	service.setNoCache(ctx)
	return ctx.Render(http.StatusOK, MainPageName, service.buildScratchcardView(state))
}

func (service *FrontendService) htmxUploadImageHandler(ctx echo.Context) error {
	// Get uploaded file
	file, err := ctx.FormFile("image")
	if err != nil {
		slog.Error("htmxUploadImageHandler: failed to get uploaded file",
			"status", http.StatusBadRequest, "error", err)
		return ctx.String(http.StatusBadRequest, "Failed to get uploaded file")
	}

	src, err := file.Open()
	if err != nil {
		slog.Error("htmxUploadImageHandler: failed to open uploaded file",
			"status", http.StatusInternalServerError, "error", err, "filename", file.Filename)
		return ctx.String(http.StatusInternalServerError, "Failed to open uploaded file")
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Error("htmxUploadImageHandler: failed to close uploaded file reader", "error", cerr, "filename", file.Filename)
		}
	}()

	image, err := io.ReadAll(src)
	if err != nil {
		slog.Error("htmxUploadImageHandler: failed to read uploaded file",
			"status", http.StatusInternalServerError, "error", err, "filename", file.Filename)
		return ctx.String(http.StatusInternalServerError, "Failed to read uploaded file")
	}

	state, err := service.coreService.UploadImage(ctx.Request().Context(), image)
	switch {
	case imagescale.IsDecodeError(err):
		slog.Warn("htmxUploadImageHandler: uploaded file is not an image",
			"error", err, "filename", file.Filename)
		return service.notice(ctx, noticeDecodeFailed)
	case core.IsPersistError(err):
		service.setNotice(ctx, noticePersistFail)
	case err != nil:
		slog.Error("htmxUploadImageHandler: failed to process uploaded image",
			"status", http.StatusInternalServerError, "error", err, "filename", file.Filename)
		return ctx.String(http.StatusInternalServerError, "Failed to process uploaded image")
	}

	slog.Info("htmxUploadImageHandler: image loaded", "filename", file.Filename)
	return service.renderScratchcard(ctx, state)
}

func (service *FrontendService) htmxRevealHandler(ctx echo.Context) error {
	idx, state, err := service.coreService.RevealOne(ctx.Request().Context())
	switch {
	case errors.Is(err, grid.ErrAllRevealed):
		return service.notice(ctx, noticeAllRevealed)
	case core.IsPersistError(err):
		service.setNotice(ctx, noticePersistFail)
	case err != nil:
		slog.Error("htmxRevealHandler: failed to reveal cell",
			"status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to reveal cell")
	}

	service.setNoCache(ctx)
	// Only the uncovered cell and the counter are swapped out of band.
	return ctx.Render(http.StatusOK, "reveal", revealView{
		Cell:    cellView{Cell: state.Cell(idx), OOB: true},
		Counter: counterView{ClickCount: state.ClickCount, OOB: true},
	})
}

func (service *FrontendService) htmxRevealAllHandler(ctx echo.Context) error {
	if confirmed, err := service.requireConfirmation(ctx); !confirmed {
		return err
	}

	state, err := service.coreService.RevealAll(ctx.Request().Context())
	if err != nil && !core.IsPersistError(err) {
		slog.Error("htmxRevealAllHandler: failed to reveal all cells",
			"status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to reveal all cells")
	}
	if err != nil {
		service.setNotice(ctx, noticePersistFail)
	}
	return service.renderScratchcard(ctx, state)
}

func (service *FrontendService) htmxResetHandler(ctx echo.Context) error {
	if confirmed, err := service.requireConfirmation(ctx); !confirmed {
		return err
	}

	state, err := service.coreService.Reset(ctx.Request().Context())
	if err != nil && !core.IsPersistError(err) {
		slog.Error("htmxResetHandler: failed to reset grid",
			"status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to reset grid")
	}
	if err != nil {
		service.setNotice(ctx, noticePersistFail)
	}
	return service.renderScratchcard(ctx, state)
}

func (service *FrontendService) imageHandler(ctx echo.Context) error {
	source, mime, data, ok, err := service.coreService.CurrentImage(ctx.Request().Context())
	if err != nil {
		slog.Error("imageHandler: image not available",
			"status", http.StatusNotFound, "error", err)
		return ctx.String(http.StatusNotFound, "Image not available")
	}

	// Prevent caching so a newly loaded image is shown right away
	service.setNoCache(ctx)

	if ok {
		if mime == "" {
			mime = mimePNG
		}
		return ctx.Blob(http.StatusOK, mime, data)
	}
	if source == DefaultImagePath {
		return service.defaultImageHandler(ctx)
	}
	return ctx.Redirect(http.StatusFound, source)
}

func (service *FrontendService) defaultImageHandler(ctx echo.Context) error {
	data, err := assetsFS.ReadFile("assets/default.svg")
	if err != nil {
		slog.Error("defaultImageHandler: failed to read default.svg", "status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to load default image")
	}
	return ctx.Blob(http.StatusOK, mimeSVG, data)
}

// requireConfirmation answers 400 and reports false when the user did not
// confirm the operation.
func (service *FrontendService) requireConfirmation(ctx echo.Context) (bool, error) {
	var req common.ConfirmRequest
	if err := ctx.Bind(&req); err != nil {
		slog.Warn("requireConfirmation: invalid request", "route", ctx.Path(), "error", err)
		return false, ctx.String(http.StatusBadRequest, "Invalid request")
	}
	if err := ctx.Validate(&req); err != nil {
		slog.Warn("requireConfirmation: operation not confirmed", "route", ctx.Path())
		return false, ctx.String(http.StatusBadRequest, "Operation requires confirmation")
	}
	return true, nil
}

func (service *FrontendService) renderScratchcard(ctx echo.Context, state grid.State) error {
	service.setNoCache(ctx)
	return ctx.Render(http.StatusOK, "scratchcard", service.buildScratchcardView(state))
}

func (service *FrontendService) buildScratchcardView(state grid.State) scratchcardView {
	cells := state.Cells()
	views := make([]cellView, len(cells))
	for i, c := range cells {
		views[i] = cellView{Cell: c}
	}
	return scratchcardView{
		Rows:      state.Rows,
		Cols:      state.Cols,
		Cells:     views,
		Counter:   counterView{ClickCount: state.ClickCount},
		Timestamp: service.timestampNanoStr(),
	}
}

// notice answers with an alert for the user and no swap.
func (service *FrontendService) notice(ctx echo.Context, message string) error {
	service.setNotice(ctx, message)
	ctx.Response().Header().Set("HX-Reswap", "none")
	return ctx.NoContent(http.StatusOK)
}

func (service *FrontendService) setNotice(ctx echo.Context, message string) {
	payload, err := json.Marshal(map[string]string{NoticeEvent: message})
	if err != nil {
		slog.Error("setNotice: failed to encode notice", "error", err)
		return
	}
	ctx.Response().Header().Set("HX-Trigger", string(payload))
}

func (service *FrontendService) setNoCache(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	ctx.Response().Header().Set("Pragma", "no-cache")
	ctx.Response().Header().Set("Expires", "0")
}

func (service *FrontendService) timestampNanoStr() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
