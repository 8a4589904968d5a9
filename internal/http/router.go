// Package http is the JSON API terminals talk to.
package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
}

// NewRouter wires every route behind the shared middleware stack and wraps
// the result in an OpenTelemetry server handler.
func NewRouter(cfg RouterConfig, barcodes *BarcodeHandler, terminals *TerminalHandler, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(AccessLog(log))
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	if cfg.MaxRequestBodySize > 0 {
		r.Use(middleware.RequestSize(cfg.MaxRequestBodySize))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/barcodes", func(r chi.Router) {
			r.Post("/", barcodes.Generate)
			r.Get("/{code}/validate", barcodes.Validate)
		})

		r.Get("/terminals", terminals.ListTerminals)
		r.Route("/terminals/{terminal_id}", func(r chi.Router) {
			r.Delete("/", terminals.CloseTerminal)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", terminals.GetCart)
				r.Delete("/", terminals.ClearCart)
				r.Post("/items", terminals.AddItem)
				r.Put("/items/{item_key}", terminals.UpdateQuantity)
				r.Delete("/items/{item_key}", terminals.RemoveItem)
				r.Post("/scan", terminals.Scan)
				r.Put("/manual-discount", terminals.SetManualDiscount)
				r.Put("/coupon", terminals.SetCoupon)
				r.Delete("/coupon", terminals.RemoveCoupon)
				r.Put("/customer", terminals.SetCustomer)
				r.Delete("/customer", terminals.RemoveCustomer)
				r.Put("/redemption", terminals.SetRedemption)
			})

			r.Route("/authorization", func(r chi.Router) {
				r.Post("/", terminals.Authorize)
				r.Get("/", terminals.GetAuthorization)
				r.Delete("/", terminals.ClearAuthorization)
			})
		})
	})

	return otelhttp.NewHandler(r, "pos-service",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}))
}
