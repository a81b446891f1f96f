// Package content keeps the portal's articles and categories.
package content

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("content: not found")
	ErrInvalid  = errors.New("content: invalid record")
)

// Store is the CRUD contract the portal's pages and admin screens rely on.
// Listings are newest-first.
type Store interface {
	ListArticles(ctx context.Context, filter ArticleFilter) ([]Article, error)
	SearchArticles(ctx context.Context, query string, filter ArticleFilter) ([]Article, error)
	GetArticle(ctx context.Context, id string) (Article, error)
	CreateArticle(ctx context.Context, article Article) (Article, error)
	UpdateArticle(ctx context.Context, id string, article Article) (Article, error)
	DeleteArticle(ctx context.Context, id string) error

	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, category Category) (Category, error)
	UpdateCategory(ctx context.Context, id string, category Category) (Category, error)
	DeleteCategory(ctx context.Context, id string) error
}
