package dashboard

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pricedash/pricedash/internal/apiclient"
)

const (
	defaultSKULimit  = 50
	defaultListLimit = 10
)

var (
	supplierOrders = []string{"nombre", "-nombre", "id", "-id"}
	categoryOrders = []string{"macrocategoria", "categoria", "-macrocategoria", "-categoria"}
)

// listForm is the query string of the list pages
type listForm struct {
	Q       string `form:"q"`
	Limit   int    `form:"limit" binding:"omitempty,min=1,max=1000"`
	Offset  int    `form:"offset" binding:"omitempty,min=0"`
	Order   string `form:"order"`
	MacroID int    `form:"macro_id" binding:"omitempty,min=0"`
}

// skuForm is the SKU creation form. Optional ids stay strings so that an
// empty field means "not set" rather than zero.
type skuForm struct {
	SKU        string `form:"sku" binding:"required"`
	Name       string `form:"nombre" binding:"required"`
	SupplierID int    `form:"id_proveedor" binding:"required,min=1"`
	CategoryID int    `form:"id_categoria" binding:"required,min=1"`
	FormatID   string `form:"id_formato" binding:"omitempty,numeric"`
	SegmentID  string `form:"id_segmento" binding:"omitempty,numeric"`
}

func (f skuForm) input() apiclient.SKUInput {
	return apiclient.SKUInput{
		SupplierID: f.SupplierID,
		CategoryID: f.CategoryID,
		FormatID:   optionalInt(f.FormatID),
		SegmentID:  optionalInt(f.SegmentID),
		SKU:        strings.TrimSpace(f.SKU),
		Name:       strings.TrimSpace(f.Name),
	}
}

func optionalInt(s string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &n
}

func (s *Server) page(c *gin.Context, r *render, title string) pageData {
	return pageData{
		Title:   title,
		Path:    c.Request.URL.RequestURI(),
		Auth:    r.auth,
		BaseURL: s.client.BaseURL(),
	}
}

func (s *Server) home(c *gin.Context) {
	r, ok := s.authenticate(c)
	if !ok {
		return
	}

	data := s.page(c, r, "Pricing dashboard")
	data.Visits = r.state.Visit()
	c.HTML(http.StatusOK, "home.html", data)
}

func (s *Server) skus(c *gin.Context) {
	r, ok := s.authenticate(c)
	if !ok {
		return
	}

	if s.refreshed(c, r) {
		return
	}
	if code := strings.TrimSpace(c.Query("code")); code != "" {
		target := "/catalog/skus/" + url.PathEscape(code)
		if settings := settingsQuery(c); settings != "" {
			target += "?" + settings
		}
		c.Redirect(http.StatusSeeOther, target)
		return
	}

	data := s.page(c, r, "SKUs")
	s.bindSettings(c, &data)
	ctx := c.Request.Context()

	if c.Request.Method == http.MethodPost && c.PostForm("_action") == "create" {
		var form skuForm
		if err := c.ShouldBind(&form); err != nil {
			data.Error = "SKU, name, supplier id and category id are required; optional ids must be numbers."
		} else if row, err := r.client.CreateSKU(ctx, form.input(), data.Settings.options()...); err != nil {
			msg, ok := s.fetchFailed(c, err)
			if !ok {
				return
			}
			data.Error = msg
		} else {
			data.Flash = "SKU " + cell(row["sku"]) + " created."
			r.state.Lists().Clear()
		}
	}

	data.Query.Limit = defaultSKULimit
	if err := c.ShouldBindQuery(&data.Query); err != nil {
		data.Error = "Limit must be between 1 and 1000."
		data.Query.Limit = defaultSKULimit
	}
	if data.Query.Limit == 0 {
		data.Query.Limit = defaultSKULimit
	}

	rows, err := s.listRows(c, r, &data, func(opts ...apiclient.RequestOption) (apiclient.Records, error) {
		return r.client.ListSKUs(ctx, data.Query.Limit, opts...)
	})
	if err != nil {
		msg, ok := s.fetchFailed(c, err)
		if !ok {
			return
		}
		data.Error = msg
	} else {
		data.Table = newTable(rows)
	}

	c.HTML(http.StatusOK, "skus.html", data)
}

func (s *Server) skuDetail(c *gin.Context) {
	r, ok := s.authenticate(c)
	if !ok {
		return
	}

	code := c.Param("code")
	data := s.page(c, r, "SKU "+code)
	data.Back = "/catalog/skus"
	s.bindSettings(c, &data)

	row, err := r.client.GetSKU(c.Request.Context(), code, data.Settings.options()...)
	if err != nil {
		msg, ok := s.fetchFailed(c, err)
		if !ok {
			return
		}
		data.Error = msg
	}
	data.Record = row
	c.HTML(http.StatusOK, "record.html", data)
}

func (s *Server) suppliers(c *gin.Context) {
	r, ok := s.authenticate(c)
	if !ok {
		return
	}

	if s.refreshed(c, r) {
		return
	}

	data := s.page(c, r, "Suppliers")
	data.Orders = supplierOrders
	s.bindSettings(c, &data)
	s.bindList(c, &data)

	rows, err := s.listRows(c, r, &data, func(opts ...apiclient.RequestOption) (apiclient.Records, error) {
		return r.client.ListSuppliers(c.Request.Context(), apiclient.ListQuery{
			Q:      strings.TrimSpace(data.Query.Q),
			Limit:  data.Query.Limit,
			Offset: data.Query.Offset,
			Order:  data.Query.Order,
		}, opts...)
	})
	if err != nil {
		msg, ok := s.fetchFailed(c, err)
		if !ok {
			return
		}
		data.Error = msg
	} else {
		data.Table = newTable(rows)
	}

	c.HTML(http.StatusOK, "list.html", data)
}

func (s *Server) categories(c *gin.Context) {
	r, ok := s.authenticate(c)
	if !ok {
		return
	}

	if s.refreshed(c, r) {
		return
	}

	data := s.page(c, r, "Categories")
	data.Orders = categoryOrders
	data.ShowMacro = true
	s.bindSettings(c, &data)
	s.bindList(c, &data)

	rows, err := s.listRows(c, r, &data, func(opts ...apiclient.RequestOption) (apiclient.Records, error) {
		return r.client.ListCategories(c.Request.Context(), apiclient.ListQuery{
			Q:       strings.TrimSpace(data.Query.Q),
			Limit:   data.Query.Limit,
			Offset:  data.Query.Offset,
			Order:   data.Query.Order,
			MacroID: data.Query.MacroID,
		}, opts...)
	})
	if err != nil {
		msg, ok := s.fetchFailed(c, err)
		if !ok {
			return
		}
		data.Error = msg
	} else {
		data.Table = newTable(rows)
	}

	c.HTML(http.StatusOK, "list.html", data)
}

// bindList fills data.Query from the query string, falling back to defaults
// for anything missing or invalid.
func (s *Server) bindList(c *gin.Context, data *pageData) {
	if err := c.ShouldBindQuery(&data.Query); err != nil {
		data.Error = "Invalid filters, showing defaults."
		data.Query = listForm{}
	}
	if data.Query.Limit == 0 || data.Query.Limit > 100 {
		data.Query.Limit = defaultListLimit
	}
	if !contains(data.Orders, data.Query.Order) {
		data.Query.Order = data.Orders[0]
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func (s *Server) supplierDetail(c *gin.Context) {
	s.recordDetail(c, "Supplier", "/catalog/suppliers", func(r *render, id int, opts []apiclient.RequestOption) (apiclient.Record, error) {
		return r.client.GetSupplier(c.Request.Context(), id, opts...)
	})
}

func (s *Server) categoryDetail(c *gin.Context) {
	s.recordDetail(c, "Category", "/catalog/categories", func(r *render, id int, opts []apiclient.RequestOption) (apiclient.Record, error) {
		return r.client.GetCategory(c.Request.Context(), id, opts...)
	})
}

func (s *Server) recordDetail(c *gin.Context, kind, back string, fetch func(*render, int, []apiclient.RequestOption) (apiclient.Record, error)) {
	r, ok := s.authenticate(c)
	if !ok {
		return
	}

	data := s.page(c, r, kind+" "+c.Param("id"))
	data.Back = back
	s.bindSettings(c, &data)

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 {
		data.Error = "Invalid id."
		c.HTML(http.StatusBadRequest, "record.html", data)
		return
	}

	row, err := fetch(r, id, data.Settings.options())
	if err != nil {
		msg, ok := s.fetchFailed(c, err)
		if !ok {
			return
		}
		data.Error = msg
	}
	data.Record = row
	c.HTML(http.StatusOK, "record.html", data)
}
