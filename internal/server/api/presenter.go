package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ayusman/airdeck/internal/app"
	"github.com/ayusman/airdeck/internal/keyboard"
	"github.com/ayusman/airdeck/internal/navigation"
)

// PresenterHandler drives a presenter session over HTTP: navigation, deck
// editing, gesture control and classifier settings.
type PresenterHandler struct {
	app *app.App
	mux *http.ServeMux
}

// NewPresenterHandler creates a PresenterHandler for a.
func NewPresenterHandler(a *app.App) *PresenterHandler {
	h := &PresenterHandler{app: a, mux: http.NewServeMux()}

	h.mux.HandleFunc("GET /api/status", h.status)
	h.mux.HandleFunc("GET /api/slides", h.slides)
	h.mux.HandleFunc("POST /api/slides/goto", h.goTo)
	h.mux.HandleFunc("POST /api/slides/{action}", h.navigate)
	h.mux.HandleFunc("GET /api/deck", h.getDeck)
	h.mux.HandleFunc("PUT /api/deck", h.putDeck)
	h.mux.HandleFunc("GET /api/settings", h.getSettings)
	h.mux.HandleFunc("PUT /api/settings", h.putSettings)
	h.mux.HandleFunc("POST /api/gesture/{op}", h.gesture)
	h.mux.HandleFunc("POST /api/keys", h.key)
	return h
}

// ServeHTTP implements http.Handler.
func (h *PresenterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type slidesResponse struct {
	Slides     []string         `json:"slides"`
	Navigation navigation.State `json:"navigation"`
}

type goToRequest struct {
	Index *int `json:"index"`
}

type deckRequest struct {
	Text *string `json:"text"`
}

type deckResponse struct {
	Text       string           `json:"text"`
	Navigation navigation.State `json:"navigation"`
}

type keyRequest struct {
	Key string `json:"key"`
}

type keyResponse struct {
	Action     keyboard.Action  `json:"action"`
	Navigation navigation.State `json:"navigation"`
}

func (h *PresenterHandler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Snapshot())
}

func (h *PresenterHandler) slides(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, slidesResponse{
		Slides:     h.app.Deck().Slides(),
		Navigation: h.app.Navigation(),
	})
}

func (h *PresenterHandler) navigate(w http.ResponseWriter, r *http.Request) {
	var state navigation.State
	switch r.PathValue("action") {
	case "next":
		state = h.app.Next(app.SourceHTTP)
	case "prev", "previous":
		state = h.app.Previous(app.SourceHTTP)
	case "first":
		state = h.app.First(app.SourceHTTP)
	case "last":
		state = h.app.Last(app.SourceHTTP)
	default:
		writeError(w, http.StatusNotFound, "Unknown navigation action")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *PresenterHandler) goTo(w http.ResponseWriter, r *http.Request) {
	var req goToRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Index == nil {
		writeError(w, http.StatusBadRequest, "index is required")
		return
	}
	writeJSON(w, http.StatusOK, h.app.GoTo(app.SourceHTTP, *req.Index))
}

func (h *PresenterHandler) getDeck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, deckResponse{Text: h.app.Deck().Text(), Navigation: h.app.Navigation()})
}

func (h *PresenterHandler) putDeck(w http.ResponseWriter, r *http.Request) {
	var req deckRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Text == nil {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	state := h.app.SetDeckText(*req.Text)
	writeJSON(w, http.StatusOK, deckResponse{Text: h.app.Deck().Text(), Navigation: state})
}

func (h *PresenterHandler) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, app.NewClassifierSettings(h.app.ClassifierConfig()))
}

func (h *PresenterHandler) putSettings(w http.ResponseWriter, r *http.Request) {
	settings := app.NewClassifierSettings(h.app.ClassifierConfig())
	if !decodeBody(w, r, &settings) {
		return
	}
	if err := h.app.UpdateClassifierConfig(settings.Config()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, app.NewClassifierSettings(h.app.ClassifierConfig()))
}

func (h *PresenterHandler) gesture(w http.ResponseWriter, r *http.Request) {
	// Model loading outlives a dropped request.
	ctx := context.WithoutCancel(r.Context())

	var err error
	switch r.PathValue("op") {
	case "start":
		err = h.app.StartGestures(ctx)
	case "stop":
		h.app.StopGestures()
	case "toggle":
		_, err = h.app.ToggleGestures(ctx)
	default:
		writeError(w, http.StatusNotFound, "Unknown gesture operation")
		return
	}

	if err != nil {
		writeError(w, gestureErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.app.Snapshot().Detection)
}

func gestureErrorStatus(err error) int {
	var camErr *app.CameraAccessError
	var timeoutErr *app.ModelInitTimeoutError
	switch {
	case errors.As(err, &camErr):
		return http.StatusServiceUnavailable
	case errors.As(err, &timeoutErr):
		return http.StatusGatewayTimeout
	case errors.Is(err, app.ErrStopped):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *PresenterHandler) key(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	action := h.app.HandleKey(keyboard.Normalize(req.Key))
	writeJSON(w, http.StatusOK, keyResponse{Action: action, Navigation: h.app.Navigation()})
}
