package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/voltmart/storefront/internal/domain/product"
)

// productResponse is the wire representation of a catalog product.
type productResponse struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Price         string        `json:"price"`
	Category      string        `json:"category"`
	Image         imageResponse `json:"image"`
	RatingAverage float64       `json:"rating_average"`
	RatingCount   int           `json:"rating_count"`
}

type imageResponse struct {
	Thumbnail string `json:"thumbnail"`
	Mobile    string `json:"mobile"`
	Tablet    string `json:"tablet"`
	Desktop   string `json:"desktop"`
}

// ListProducts returns the full catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]productResponse, len(products))
	for i := range products {
		resp[i] = h.toProductResponse(&products[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetProduct returns a single product by id.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toProductResponse(p))
}

func (h *Handler) toProductResponse(p *product.Product) productResponse {
	return productResponse{
		ID:            p.ID,
		Name:          p.Name,
		Price:         p.Price.StringFixed(2),
		Category:      p.Category,
		Image:         h.toImageResponse(p.Image),
		RatingAverage: p.RatingAverage,
		RatingCount:   p.RatingCount,
	}
}

func (h *Handler) toImageResponse(img product.Image) imageResponse {
	return imageResponse{
		Thumbnail: h.imageURL(img.Thumbnail),
		Mobile:    h.imageURL(img.Mobile),
		Tablet:    h.imageURL(img.Tablet),
		Desktop:   h.imageURL(img.Desktop),
	}
}

// imageURL prefixes relative image paths with the configured base URL.
// Absolute URLs and empty paths pass through unchanged.
func (h *Handler) imageURL(path string) string {
	if path == "" || h.imageBaseURL == "" {
		return path
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimSuffix(h.imageBaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}
