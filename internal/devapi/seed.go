package devapi

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var (
	demoSuppliers = []Supplier{
		{ID: 1, Nombre: "Acme Foods", RUT: "76.123.456-7"},
		{ID: 2, Nombre: "Andes Distribuciones", RUT: "77.234.567-8"},
		{ID: 3, Nombre: "Pacific Beverages", RUT: "78.345.678-9"},
	}
	demoCategories = []Category{
		{ID: 1, Categoria: "Coffee", MacroID: 1, Macrocategoria: "Grocery"},
		{ID: 2, Categoria: "Pasta", MacroID: 1, Macrocategoria: "Grocery"},
		{ID: 3, Categoria: "Soft drinks", MacroID: 2, Macrocategoria: "Beverages"},
		{ID: 4, Categoria: "Juices", MacroID: 2, Macrocategoria: "Beverages"},
	}
	demoSKUs = []SKU{
		{Code: "7801234000011", Nombre: "Ground coffee 250g", IDProveedor: 1, IDCategoria: 1},
		{Code: "7801234000028", Nombre: "Spaghetti 400g", IDProveedor: 2, IDCategoria: 2},
		{Code: "7801234000035", Nombre: "Cola 1.5L", IDProveedor: 3, IDCategoria: 3},
		{Code: "7801234000042", Nombre: "Orange juice 1L", IDProveedor: 3, IDCategoria: 4},
	}
)

// Seed creates the sign-in user and the demo catalog when they are missing.
func Seed(db *gorm.DB, email, password string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if email != "" {
			if err := seedUser(tx, strings.ToLower(strings.TrimSpace(email)), password); err != nil {
				return err
			}
		}

		var count int64
		if err := tx.Model(&Supplier{}).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count suppliers: %w", err)
		}
		if count > 0 {
			return nil
		}

		// Create writes back into its argument, so seed from copies
		suppliers := append([]Supplier(nil), demoSuppliers...)
		if err := tx.Create(&suppliers).Error; err != nil {
			return fmt.Errorf("failed to seed suppliers: %w", err)
		}
		categories := append([]Category(nil), demoCategories...)
		if err := tx.Create(&categories).Error; err != nil {
			return fmt.Errorf("failed to seed categories: %w", err)
		}
		skus := append([]SKU(nil), demoSKUs...)
		if err := tx.Create(&skus).Error; err != nil {
			return fmt.Errorf("failed to seed SKUs: %w", err)
		}
		return nil
	})
}

func seedUser(tx *gorm.DB, email, password string) error {
	var existing User
	err := tx.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to look up seed user: %w", err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	if err := tx.Create(&User{Email: email, PasswordHash: hash, Name: "Admin"}).Error; err != nil {
		return fmt.Errorf("failed to create seed user: %w", err)
	}
	return nil
}
