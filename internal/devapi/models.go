package devapi

import (
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// BaseModel provides common fields and auto-generated ULID
type BaseModel struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(26)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// BeforeCreate generates a ULID for the ID field if it's empty
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = ulid.Make().String()
	}
	return nil
}

// User can sign in to the API
type User struct {
	BaseModel
	Email        string    `json:"email" gorm:"unique;not null"`
	PasswordHash string    `json:"-" gorm:"not null"`
	Name         string    `json:"name"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Catalog rows use numeric ids; the dashboard links to them by number.

// Supplier is a catalog supplier (proveedor)
type Supplier struct {
	ID     uint   `json:"id" gorm:"primaryKey"`
	Nombre string `json:"nombre" gorm:"not null;index"`
	RUT    string `json:"rut"`
}

// Category is a catalog category grouped under a macro category
type Category struct {
	ID             uint   `json:"id" gorm:"primaryKey"`
	Categoria      string `json:"categoria" gorm:"not null"`
	MacroID        uint   `json:"macro_id" gorm:"not null;index"`
	Macrocategoria string `json:"macrocategoria" gorm:"not null"`
}

// SKU is a sellable product
type SKU struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Code        string    `json:"sku" gorm:"column:sku;uniqueIndex;not null"`
	Nombre      string    `json:"nombre" gorm:"not null"`
	IDProveedor uint      `json:"id_proveedor" gorm:"column:id_proveedor;not null;index"`
	IDCategoria uint      `json:"id_categoria" gorm:"column:id_categoria;not null;index"`
	IDFormato   *int      `json:"id_formato" gorm:"column:id_formato"`
	IDSegmento  *int      `json:"id_segmento" gorm:"column:id_segmento"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// AutoMigrate runs migrations for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &Supplier{}, &Category{}, &SKU{})
}
