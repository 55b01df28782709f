package clients

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"libraloan/internal/circulation"
)

// CatalogClient implements circulation.Books against the catalog service.
type CatalogClient struct {
	*remote
}

func NewCatalogClient(baseURL string, logger *slog.Logger) *CatalogClient {
	return &CatalogClient{remote: newRemote("catalog", baseURL, logger)}
}

func (c *CatalogClient) Get(ctx context.Context, id uuid.UUID) (*circulation.Book, error) {
	var book circulation.Book
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/books/%s", id), nil, &book)
	if IsStatus(err, http.StatusNotFound) {
		return nil, circulation.ErrBookNotFound
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *CatalogClient) AdjustBorrowedCopies(ctx context.Context, id uuid.UUID, delta int) error {
	req := struct {
		Delta int `json:"delta"`
	}{Delta: delta}

	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/books/%s/borrowed-copies", id), req, nil)
	switch {
	case IsStatus(err, http.StatusNotFound):
		return circulation.ErrBookNotFound
	case IsStatus(err, http.StatusConflict):
		return fmt.Errorf("%w: %w", circulation.ErrCopyBounds, err)
	}
	return err
}

var _ circulation.Books = (*CatalogClient)(nil)
