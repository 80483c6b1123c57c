package apiclient

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
)

// Record is one catalog row as returned by the backend. The dashboard renders
// rows generically, so unknown columns are kept.
type Record map[string]any

// Records is a list of catalog rows
type Records []Record

// Columns returns the union of keys across all rows, sorted, with "id"-like
// keys first so tables read naturally.
func (rs Records) Columns() []string {
	seen := make(map[string]bool)
	var cols []string
	for _, r := range rs {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.SliceStable(cols, func(i, j int) bool {
		pi, pj := columnRank(cols[i]), columnRank(cols[j])
		if pi != pj {
			return pi < pj
		}
		return cols[i] < cols[j]
	})
	return cols
}

func columnRank(col string) int {
	switch {
	case col == "id":
		return 0
	case len(col) > 3 && col[:3] == "id_":
		return 1
	default:
		return 2
	}
}

// SKUInput represents the SKU creation request
type SKUInput struct {
	SupplierID int    `json:"id_proveedor"`
	CategoryID int    `json:"id_categoria"`
	FormatID   *int   `json:"id_formato"`
	SegmentID  *int   `json:"id_segmento"`
	SKU        string `json:"sku"`
	Name       string `json:"nombre"`
}

// ListQuery holds the paging and search parameters shared by list endpoints
type ListQuery struct {
	Q       string
	Limit   int
	Offset  int
	Order   string
	MacroID int // categories only, 0 = no filter
}

func (q ListQuery) values() url.Values {
	v := url.Values{}
	if q.Q != "" {
		v.Set("q", q.Q)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.Order != "" {
		v.Set("orden", q.Order)
	}
	if q.MacroID > 0 {
		v.Set("macro_id", strconv.Itoa(q.MacroID))
	}
	return v
}

// ListSKUs returns catalog SKUs
func (c *Client) ListSKUs(ctx context.Context, limit int, opts ...RequestOption) (Records, error) {
	var rows Records
	opts = append(opts, WithParams(ListQuery{Limit: limit}.values()))
	if err := c.GetJSON(ctx, "/catalogo/skus", &rows, opts...); err != nil {
		return nil, fmt.Errorf("failed to list SKUs: %w", err)
	}
	return rows, nil
}

// GetSKU returns a single SKU by its barcode
func (c *Client) GetSKU(ctx context.Context, code string, opts ...RequestOption) (Record, error) {
	var row Record
	if err := c.GetJSON(ctx, "/catalogo/skus/"+url.PathEscape(code), &row, opts...); err != nil {
		return nil, fmt.Errorf("failed to get SKU %s: %w", code, err)
	}
	return row, nil
}

// CreateSKU creates a SKU and returns the created row
func (c *Client) CreateSKU(ctx context.Context, in SKUInput, opts ...RequestOption) (Record, error) {
	opts = append(opts, WithJSON(in))
	resp, err := c.Post(ctx, "/catalogo/skus", opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SKU: %w", err)
	}
	if err := resp.Err(); err != nil {
		return nil, fmt.Errorf("failed to create SKU: %w", err)
	}

	var row Record
	if err := resp.JSON(&row); err != nil {
		return nil, err
	}
	return row, nil
}

// ListSuppliers returns catalog suppliers
func (c *Client) ListSuppliers(ctx context.Context, q ListQuery, opts ...RequestOption) (Records, error) {
	var rows Records
	opts = append(opts, WithParams(q.values()))
	if err := c.GetJSON(ctx, "/catalogo/proveedores", &rows, opts...); err != nil {
		return nil, fmt.Errorf("failed to list suppliers: %w", err)
	}
	return rows, nil
}

// GetSupplier returns a single supplier
func (c *Client) GetSupplier(ctx context.Context, id int, opts ...RequestOption) (Record, error) {
	var row Record
	if err := c.GetJSON(ctx, fmt.Sprintf("/catalogo/proveedores/%d", id), &row, opts...); err != nil {
		return nil, fmt.Errorf("failed to get supplier %d: %w", id, err)
	}
	return row, nil
}

// ListCategories returns catalog categories
func (c *Client) ListCategories(ctx context.Context, q ListQuery, opts ...RequestOption) (Records, error) {
	var rows Records
	opts = append(opts, WithParams(q.values()))
	if err := c.GetJSON(ctx, "/catalogo/categorias", &rows, opts...); err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return rows, nil
}

// GetCategory returns a single category
func (c *Client) GetCategory(ctx context.Context, id int, opts ...RequestOption) (Record, error) {
	var row Record
	if err := c.GetJSON(ctx, fmt.Sprintf("/catalogo/categorias/%d", id), &row, opts...); err != nil {
		return nil, fmt.Errorf("failed to get category %d: %w", id, err)
	}
	return row, nil
}
