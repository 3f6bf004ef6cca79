// Package seed loads the sample catalog and accounts shipped with the binary.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	"github.com/coffeeshop/shop/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed products.yaml
var defaultData []byte

type Data struct {
	Products []ProductRecord `yaml:"products"`
	Users    []UserRecord    `yaml:"users"`
}

type ProductRecord struct {
	Name        string  `yaml:"name"`
	Weight      string  `yaml:"weight"`
	Price       float64 `yaml:"price"`
	Description string  `yaml:"description"`
	Category    string  `yaml:"category"`
	ImageURL    string  `yaml:"image_url"`
}

type UserRecord struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	IsAdmin  bool   `yaml:"is_admin"`
}

type CatalogWriter interface {
	ReplaceCatalog(ctx context.Context, products []*domain.Product) (int, error)
}

type UserWriter interface {
	EnsureUser(ctx context.Context, name, email, password string, isAdmin bool) (bool, error)
}

// Default returns the embedded sample data.
func Default() (*Data, error) {
	return Parse(defaultData)
}

func Parse(raw []byte) (*Data, error) {
	var d Data
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parse seed data: %w", err)
	}
	for i, p := range d.Products {
		if p.Name == "" || p.Price < 0 {
			return nil, fmt.Errorf("seed product %d: name and non-negative price required", i)
		}
	}
	return &d, nil
}

// Run replaces the product catalog and creates any missing users.
func Run(ctx context.Context, d *Data, catalog CatalogWriter, users UserWriter, logger *slog.Logger) error {
	products := make([]*domain.Product, 0, len(d.Products))
	for _, p := range d.Products {
		products = append(products, &domain.Product{
			Name:        p.Name,
			Weight:      p.Weight,
			Price:       p.Price,
			Description: p.Description,
			Category:    p.Category,
			ImageURL:    p.ImageURL,
		})
	}

	n, err := catalog.ReplaceCatalog(ctx, products)
	if err != nil {
		return fmt.Errorf("seed products: %w", err)
	}
	logger.Info("products seeded", "count", n)

	for _, u := range d.Users {
		created, err := users.EnsureUser(ctx, u.Name, u.Email, u.Password, u.IsAdmin)
		if err != nil {
			return fmt.Errorf("seed user %s: %w", u.Email, err)
		}
		if created {
			logger.Info("user created", "email", u.Email, "admin", u.IsAdmin)
		} else {
			logger.Info("user exists, skipping", "email", u.Email)
		}
	}
	return nil
}
