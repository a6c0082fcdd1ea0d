//go:build js && wasm

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"syscall/js"

	"github.com/jo-hoe/goscratch/internal/backend/commands"
	"github.com/jo-hoe/goscratch/internal/backend/imagescale"
	"github.com/jo-hoe/goscratch/internal/backend/store"
	"github.com/jo-hoe/goscratch/internal/core"
	"github.com/jo-hoe/goscratch/internal/grid"
)

const (
	defaultImage = "assets/default.svg"

	confirmRevealAll = "Are you sure you want to reveal all cells?"
	confirmReset     = "Are you sure you want to reset the grid?"

	noticeAllRevealed  = "All cells have been revealed!"
	noticeDecodeFailed = "The selected file could not be read as an image."
	noticePersistFail  = "Your progress could not be saved. It will be lost when the page is reloaded."
)

// Session binds one Controller to the page. Every callback is posted to the
// event loop so DOM updates and state changes never interleave.
type Session struct {
	ctx        context.Context
	controller *core.Controller
	scaler     *imagescale.Scaler
	loop       *core.EventLoop

	document js.Value
	gridEl   js.Value
	counter  js.Value
	cells    []js.Value
}

func NewSession(ctx context.Context, controller *core.Controller, scaler *imagescale.Scaler, loop *core.EventLoop) (*Session, error) {
	document := js.Global().Get("document")
	gridEl := document.Call("getElementById", "grid")
	counter := document.Call("getElementById", "clickCounter")
	if gridEl.IsNull() || counter.IsNull() {
		return nil, errors.New("page is missing #grid or #clickCounter")
	}
	return &Session{
		ctx:        ctx,
		controller: controller,
		scaler:     scaler,
		loop:       loop,
		document:   document,
		gridEl:     gridEl,
		counter:    counter,
	}, nil
}

// Render rebuilds every cell and the counter from the controller state.
func (s *Session) Render() {
	state := s.controller.State()

	s.gridEl.Set("innerHTML", "")
	style := s.gridEl.Get("style")
	style.Set("backgroundImage", fmt.Sprintf("url(%q)", state.ImageSource))
	style.Set("gridTemplateColumns", fmt.Sprintf("repeat(%d, 1fr)", state.Cols))
	style.Set("gridTemplateRows", fmt.Sprintf("repeat(%d, 1fr)", state.Rows))

	s.cells = make([]js.Value, 0, state.Total())
	for _, c := range state.Cells() {
		el := s.document.Call("createElement", "div")
		el.Get("classList").Call("add", "cell")
		if !c.Covered {
			el.Get("classList").Call("add", "revealed")
		}
		s.gridEl.Call("appendChild", el)
		s.cells = append(s.cells, el)
	}
	s.renderCounter(state)
}

func (s *Session) renderCounter(state grid.State) {
	s.counter.Set("textContent", "Clicks: "+strconv.Itoa(state.ClickCount))
}

func (s *Session) Reveal() {
	idx, err := s.controller.RevealOne(s.ctx)
	if errors.Is(err, grid.ErrAllRevealed) {
		alert(noticeAllRevealed)
		return
	}
	if idx >= 0 && idx < len(s.cells) {
		s.cells[idx].Get("classList").Call("add", "revealed")
	}
	s.renderCounter(s.controller.State())
	s.warnOnPersistError(err)
}

func (s *Session) RevealAll() {
	if !confirm(confirmRevealAll) {
		return
	}
	err := s.controller.RevealAll(s.ctx)
	for _, el := range s.cells {
		el.Get("classList").Call("add", "revealed")
	}
	s.warnOnPersistError(err)
}

func (s *Session) Reset() {
	if !confirm(confirmReset) {
		return
	}
	err := s.controller.Reset(s.ctx)
	s.Render()
	s.warnOnPersistError(err)
}

// LoadImage scales source off the loop; the result is applied as a separate
// event once scaling has finished.
func (s *Session) LoadImage(source string) {
	results := s.scaler.ScaleAsync([]byte(source))
	go func() {
		r := <-results
		s.loop.Post(func() {
			if r.Err != nil {
				slog.Warn("Session: image rejected", "error", r.Err)
				alert(noticeDecodeFailed)
				return
			}
			err := s.controller.LoadImage(s.ctx, r.Scaled.DataURL)
			s.Render()
			s.warnOnPersistError(err)
		})
	}()
}

func (s *Session) warnOnPersistError(err error) {
	if err == nil {
		return
	}
	slog.Warn("Session: operation not persisted", "error", err)
	if core.IsPersistError(err) {
		alert(noticePersistFail)
	}
}

// Bind exports the operations and wires the page controls.
func (s *Session) Bind() {
	post := func(fn func()) js.Func {
		return js.FuncOf(func(this js.Value, args []js.Value) interface{} {
			s.loop.Post(fn)
			return nil
		})
	}

	reveal := post(s.Reveal)
	revealAll := post(s.RevealAll)
	reset := post(s.Reset)
	loadImage := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) < 1 || args[0].Type() != js.TypeString {
			return nil
		}
		source := args[0].String()
		s.loop.Post(func() { s.LoadImage(source) })
		return nil
	})

	js.Global().Set("goScratchReveal", reveal)
	js.Global().Set("goScratchRevealAll", revealAll)
	js.Global().Set("goScratchReset", reset)
	js.Global().Set("goScratchLoadImage", loadImage)

	s.listen("revealButton", "click", reveal)
	s.listen("revealAllButton", "click", revealAll)
	s.listen("resetButton", "click", reset)
	s.listen("imageInput", "change", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		files := this.Get("files")
		if files.IsUndefined() || files.Get("length").Int() == 0 {
			return nil
		}
		reader := js.Global().Get("FileReader").New()
		var onload js.Func
		onload = js.FuncOf(func(js.Value, []js.Value) interface{} {
			defer onload.Release()
			loadImage.Invoke(reader.Get("result"))
			return nil
		})
		reader.Set("onload", onload)
		reader.Call("readAsDataURL", files.Index(0))
		return nil
	}))
}

func (s *Session) listen(id, event string, fn js.Func) {
	el := s.document.Call("getElementById", id)
	if el.IsNull() {
		return
	}
	el.Call("addEventListener", event, fn)
}

func alert(message string) {
	js.Global().Call("alert", message)
}

func confirm(message string) bool {
	return js.Global().Call("confirm", message).Bool()
}

func main() {
	ctx := context.Background()

	browserStore, err := store.NewBrowserStore("")
	if err != nil {
		slog.Error("failed to open localStorage", "error", err)
		return
	}
	s := store.NewQuotaStore(browserStore, store.DefaultQuotaBytes)

	scaler, err := imagescale.NewScaler(imagescale.DefaultCommands(commands.DefaultMaxWidth, commands.DefaultMaxHeight, commands.DefaultMaxPixels, commands.DefaultInterpolation))
	if err != nil {
		slog.Error("failed to build image scaler", "error", err)
		return
	}

	controller := core.NewController(s, nil, grid.DefaultRows, grid.DefaultCols, defaultImage)
	if err := controller.Load(ctx); err != nil {
		slog.Warn("failed to restore state; starting from default", "error", err)
	}

	loop := core.NewEventLoop(16)
	session, err := NewSession(ctx, controller, scaler, loop)
	if err != nil {
		slog.Error("failed to bind page", "error", err)
		return
	}
	session.Render()
	session.Bind()

	slog.Info("scratch card ready")
	if err := loop.Run(ctx); err != nil {
		slog.Error("event loop stopped", "error", err)
	}
}
