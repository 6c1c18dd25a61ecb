// Package cartapi exposes the cart service over an HTTP JSON API.
package cartapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/plaenen/cartstore/pkg/cartsvc"
	"github.com/plaenen/cartstore/pkg/catalog"
	"github.com/plaenen/cartstore/pkg/currency"
	"github.com/plaenen/cartstore/pkg/domain"
)

// Handler serves the cart HTTP API.
type Handler struct {
	svc    *cartsvc.Service
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewHandler builds the HTTP handler for the given service.
func NewHandler(svc *cartsvc.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{svc: svc, logger: logger, mux: http.NewServeMux()}

	h.mux.HandleFunc("GET /carts/{user}", h.getCart)
	h.mux.HandleFunc("POST /carts/{user}/items", h.addItems)
	h.mux.HandleFunc("DELETE /carts/{user}/items", h.removeItems)
	h.mux.HandleFunc("POST /carts/{user}/checkout", h.checkout)
	h.mux.HandleFunc("POST /carts/{user}/reopen", h.reopen)
	h.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// cartResponse is the wire form of a cart.
type cartResponse struct {
	UserID  string     `json:"user_id"`
	Status  string     `json:"status"`
	Version int64      `json:"version"`
	Epoch   int64      `json:"epoch"`
	Lines   []lineItem `json:"lines"`
	Total   string     `json:"total,omitempty"`
}

type lineItem struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Currency  string `json:"currency"`
}

type itemsRequest struct {
	ProductIDs []string `json:"product_ids"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.GetCart(r.Context(), r.PathValue("user"))
	h.respond(w, r, state, err)
}

func (h *Handler) addItems(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeItems(w, r)
	if !ok {
		return
	}
	state, err := h.svc.AddItems(r.Context(), r.PathValue("user"), req.ProductIDs)
	h.respond(w, r, state, err)
}

func (h *Handler) removeItems(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeItems(w, r)
	if !ok {
		return
	}
	state, err := h.svc.RemoveItems(r.Context(), r.PathValue("user"), req.ProductIDs)
	h.respond(w, r, state, err)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.Checkout(r.Context(), r.PathValue("user"))
	h.respond(w, r, state, err)
}

func (h *Handler) reopen(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.Reopen(r.Context(), r.PathValue("user"))
	h.respond(w, r, state, err)
}

func (h *Handler) decodeItems(w http.ResponseWriter, r *http.Request) (itemsRequest, bool) {
	var req itemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if len(req.ProductIDs) == 0 {
		h.writeError(w, http.StatusBadRequest, "product_ids is required")
		return req, false
	}
	return req, true
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, state *domain.CartState, err error) {
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "request failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
		}
		h.writeError(w, status, err.Error())
		return
	}

	resp := cartResponse{
		UserID:  state.UserID,
		Status:  string(state.Status),
		Version: state.Version,
		Epoch:   state.Epoch,
		Lines:   make([]lineItem, 0, len(state.Lines)),
	}
	for _, line := range state.Lines {
		resp.Lines = append(resp.Lines, lineItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice.StringFixed(2),
			Currency:  line.Currency,
		})
	}
	if !state.IsEmpty() {
		total, code := state.Total()
		resp.Total = currency.Format(total, code)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.ErrorContext(r.Context(), "encode response",
			slog.String("error", err.Error()))
	}
}

// statusFor maps the service error taxonomy onto HTTP status codes.
// Validation rejections are the client's fault (400), exhausted
// optimistic-concurrency retries are a conflict to retry (409), and a
// catalog outage is a dependency failure (503).
func statusFor(err error) int {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrWriteContention):
		return http.StatusConflict
	case errors.Is(err, catalog.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrCorruptedStream):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}

// Server wraps an http.Server as a runner-managed service.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer builds the HTTP server listening on addr.
func NewServer(addr string, handler http.Handler, logger *slog.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

func (s *Server) Name() string { return "http" }

// Start begins serving in the background. Listen errors after startup
// are logged, not returned; the runner observes them via shutdown.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()
	s.logger.Info("http server listening", slog.String("addr", s.srv.Addr))
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
