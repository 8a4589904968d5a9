package http

import (
	"net/http"
	"strings"

	"github.com/fjod/go_cart/pos-service/internal/barcode"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxCode128Length = 48

type BarcodeHandler struct {
	log *zap.Logger
}

func NewBarcodeHandler(log *zap.Logger) *BarcodeHandler {
	return &BarcodeHandler{log: log}
}

type GenerateBarcodeRequestDTO struct {
	SKU        string            `json:"sku"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Format     string            `json:"format"`
	// Length applies to CODE128 only.
	Length int `json:"length,omitempty"`
}

type BarcodeResponse struct {
	Code   string         `json:"code"`
	Format barcode.Format `json:"format"`
	Valid  *bool          `json:"valid,omitempty"`
}

func (h *BarcodeHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateBarcodeRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.SKU) == "" {
		respondError(w, http.StatusBadRequest, "invalid_sku", "sku is required")
		return
	}
	if req.Length < 0 || req.Length > maxCode128Length {
		respondError(w, http.StatusBadRequest, "invalid_length", "length must be between 1 and 48")
		return
	}

	format := barcode.FormatEAN13
	if req.Format != "" {
		f, err := barcode.ParseFormat(req.Format)
		if err != nil {
			handleError(w, requestLogger(r, h.log), err)
			return
		}
		format = f
	}

	var code string
	if format == barcode.FormatCode128 && req.Length > 0 {
		code = barcode.GenerateProductCode128(req.SKU, req.Attributes, req.Length)
	} else {
		c, err := barcode.GenerateProductBarcode(req.SKU, req.Attributes, format)
		if err != nil {
			handleError(w, requestLogger(r, h.log), err)
			return
		}
		code = c
	}

	respondJSON(w, http.StatusCreated, BarcodeResponse{Code: code, Format: format})
}

// Validate checks the code against ?format=, or against the format detected
// from its shape when none is given.
func (h *BarcodeHandler) Validate(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	format := barcode.Detect(code)
	if raw := r.URL.Query().Get("format"); raw != "" {
		f, err := barcode.ParseFormat(raw)
		if err != nil {
			handleError(w, requestLogger(r, h.log), err)
			return
		}
		format = f
	}

	valid := barcode.Validate(code, format)
	respondJSON(w, http.StatusOK, BarcodeResponse{Code: code, Format: format, Valid: &valid})
}
