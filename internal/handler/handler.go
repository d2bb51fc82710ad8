// Package handler exposes cart sessions, sales and refunds over JSON HTTP.
package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/pos-pricing/internal/domain/refund"
	"github.com/xenking/pos-pricing/internal/domain/session"
)

// Handler routes register requests to the session and refund services.
type Handler struct {
	sessions *session.Service
	refunds  *refund.Service
}

func New(sessions *session.Service, refunds *refund.Service) *Handler {
	return &Handler{sessions: sessions, refunds: refunds}
}

// Register mounts the API on r under /api.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api", func(api chi.Router) {
		api.Route("/carts", func(c chi.Router) {
			c.Post("/", h.openCart)
			c.Route("/{id}", func(c chi.Router) {
				c.Get("/", h.getCart)
				c.Delete("/", h.discardCart)
				c.Post("/items", h.addItem)
				c.Delete("/items", h.clearCart)
				c.Route("/items/{index}", func(item chi.Router) {
					item.Patch("/", h.changeQuantity)
					item.Delete("/", h.removeItem)
					item.Put("/addons", h.setAddons)
				})
				c.Post("/bundles", h.addBundle)
				c.Delete("/bundles/{group}", h.removeBundle)
				c.Post("/discounts", h.applyDiscount)
				c.Delete("/discounts/{position}", h.removeDiscount)
				c.Post("/checkout", h.checkout)
			})
		})
		api.Route("/sales/{id}", func(s chi.Router) {
			s.Get("/", h.getSale)
			s.Post("/refunds", h.refund)
		})
	})
}

// badRequestError marks malformed input.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

const maxBodyBytes = 1 << 20

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ifMatch reads the expected cart version. A missing header disables the
// check.
func ifMatch(r *http.Request) (int64, error) {
	v := strings.TrimSpace(r.Header.Get("If-Match"))
	if v == "" || v == "*" {
		return 0, nil
	}
	v = strings.Trim(strings.TrimPrefix(v, "W/"), `"`)
	version, err := strconv.ParseInt(v, 10, 64)
	if err != nil || version <= 0 {
		return 0, badRequest("invalid If-Match %q", r.Header.Get("If-Match"))
	}
	return version, nil
}

func etag(version int64) string {
	return `"` + strconv.FormatInt(version, 10) + `"`
}

func pathIndex(r *http.Request, name string) (int, error) {
	i, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || i < 0 {
		return 0, badRequest("invalid %s %q", name, chi.URLParam(r, name))
	}
	return i, nil
}
