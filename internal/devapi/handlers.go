package devapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// CreateSKURequest represents a SKU creation request
type CreateSKURequest struct {
	IDProveedor uint   `json:"id_proveedor" binding:"required"`
	IDCategoria uint   `json:"id_categoria" binding:"required"`
	IDFormato   *int   `json:"id_formato"`
	IDSegmento  *int   `json:"id_segmento"`
	SKU         string `json:"sku" binding:"required,max=64"`
	Nombre      string `json:"nombre" binding:"required,max=255"`
}

// listParams are the paging and search parameters of list endpoints
type listParams struct {
	Q       string `form:"q"`
	Limit   int    `form:"limit,default=10" binding:"min=1,max=1000"`
	Offset  int    `form:"offset" binding:"min=0"`
	Orden   string `form:"orden"`
	MacroID *uint  `form:"macro_id"`
}

var (
	supplierOrder = map[string]string{
		"nombre": "nombre", "-nombre": "nombre DESC",
		"id": "id", "-id": "id DESC",
	}
	categoryOrder = map[string]string{
		"macrocategoria": "macrocategoria, categoria", "-macrocategoria": "macrocategoria DESC, categoria",
		"categoria": "categoria", "-categoria": "categoria DESC",
	}
)

func (s *Server) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user User
	if err := s.db.Where("email = ?", strings.ToLower(req.Email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}
		s.logger.Error().Err(err).Msg("Failed to find user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if err := VerifyPassword(req.Password, user.PasswordHash); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	token, err := s.tokens.Generate(&user)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	s.logger.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("User logged in")
	c.JSON(http.StatusOK, LoginResponse{AccessToken: token, TokenType: "bearer"})
}

func (s *Server) getCurrentUser(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) listSKUs(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 1000"})
			return
		}
		limit = n
	}

	var rows []SKU
	if err := s.db.Order("id").Limit(limit).Find(&rows).Error; err != nil {
		s.internalError(c, err, "Failed to list SKUs")
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) getSKU(c *gin.Context) {
	var row SKU
	if err := s.db.Where("sku = ?", c.Param("sku")).First(&row).Error; err != nil {
		s.notFoundOr500(c, err, "SKU not found")
		return
	}
	c.JSON(http.StatusOK, row)
}

func (s *Server) createSKU(c *gin.Context) {
	var req CreateSKURequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	row := SKU{
		Code:        strings.TrimSpace(req.SKU),
		Nombre:      strings.TrimSpace(req.Nombre),
		IDProveedor: req.IDProveedor,
		IDCategoria: req.IDCategoria,
		IDFormato:   req.IDFormato,
		IDSegmento:  req.IDSegmento,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&SKU{}).Where("sku = ?", row.Code).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return errConflict
		}
		if err := tx.First(&Supplier{}, row.IDProveedor).Error; err != nil {
			return unknownRef(err, "Unknown supplier")
		}
		if err := tx.First(&Category{}, row.IDCategoria).Error; err != nil {
			return unknownRef(err, "Unknown category")
		}
		return tx.Create(&row).Error
	})

	var ref refError
	switch {
	case err == nil:
		s.logger.Info().Str("sku", row.Code).Uint("id", row.ID).Msg("SKU created")
		c.JSON(http.StatusCreated, row)
	case errors.Is(err, errConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "SKU already exists"})
	case errors.As(err, &ref):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": ref.message})
	default:
		s.internalError(c, err, "Failed to create SKU")
	}
}

var errConflict = errors.New("conflict")

type refError struct{ message string }

func (e refError) Error() string { return e.message }

func unknownRef(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return refError{message: message}
	}
	return err
}

func (s *Server) listSuppliers(c *gin.Context) {
	var p listParams
	if err := c.ShouldBindQuery(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, ok := orderBy(p.Orden, "nombre", supplierOrder)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid orden"})
		return
	}

	q := s.db.Model(&Supplier{})
	if term := strings.TrimSpace(p.Q); term != "" {
		q = q.Where("nombre LIKE ?", "%"+term+"%")
	}

	var rows []Supplier
	if err := q.Order(order).Limit(p.Limit).Offset(p.Offset).Find(&rows).Error; err != nil {
		s.internalError(c, err, "Failed to list suppliers")
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) getSupplier(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var row Supplier
	if err := s.db.First(&row, id).Error; err != nil {
		s.notFoundOr500(c, err, "Supplier not found")
		return
	}
	c.JSON(http.StatusOK, row)
}

func (s *Server) listCategories(c *gin.Context) {
	var p listParams
	if err := c.ShouldBindQuery(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, ok := orderBy(p.Orden, "macrocategoria", categoryOrder)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid orden"})
		return
	}

	q := s.db.Model(&Category{})
	if term := strings.TrimSpace(p.Q); term != "" {
		like := "%" + term + "%"
		q = q.Where("categoria LIKE ? OR macrocategoria LIKE ?", like, like)
	}
	if p.MacroID != nil {
		q = q.Where("macro_id = ?", *p.MacroID)
	}

	var rows []Category
	if err := q.Order(order).Limit(p.Limit).Offset(p.Offset).Find(&rows).Error; err != nil {
		s.internalError(c, err, "Failed to list categories")
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) getCategory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var row Category
	if err := s.db.First(&row, id).Error; err != nil {
		s.notFoundOr500(c, err, "Category not found")
		return
	}
	c.JSON(http.StatusOK, row)
}

// orderBy maps an orden parameter onto a whitelisted ORDER BY clause
func orderBy(orden, fallback string, allowed map[string]string) (string, bool) {
	if orden == "" {
		orden = fallback
	}
	clause, ok := allowed[orden]
	return clause, ok
}

func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

func (s *Server) notFoundOr500(c *gin.Context, err error, message string) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": message})
		return
	}
	s.internalError(c, err, message)
}

func (s *Server) internalError(c *gin.Context, err error, message string) {
	s.logger.Error().Err(err).Msg(message)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
