package content

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu         sync.RWMutex
	now        func() time.Time
	articles   []Article // newest first
	categories []Category
}

// NewMemory returns an in-process Store. now may be nil.
func NewMemory(now func() time.Time) Store {
	if now == nil {
		now = time.Now
	}
	return &memoryStore{now: now}
}

func (m *memoryStore) ListArticles(_ context.Context, filter ArticleFilter) ([]Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return page(m.filter(m.articles, filter), filter), nil
}

func (m *memoryStore) SearchArticles(_ context.Context, query string, filter ArticleFilter) ([]Article, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	m.mu.RLock()
	defer m.mu.RUnlock()
	matched := make([]Article, 0)
	for _, a := range m.articles {
		if needle == "" || containsFold(a.Title, needle) || containsFold(a.Content, needle) {
			matched = append(matched, a)
		}
	}
	return page(m.filter(matched, filter), filter), nil
}

func (m *memoryStore) filter(in []Article, filter ArticleFilter) []Article {
	out := make([]Article, 0, len(in))
	for _, a := range in {
		if filter.CategoryID != "" && a.CategoryID != filter.CategoryID {
			continue
		}
		if filter.Featured && !a.Featured {
			continue
		}
		out = append(out, cloneArticle(a))
	}
	return out
}

func page(in []Article, filter ArticleFilter) []Article {
	if filter.Offset > 0 {
		if filter.Offset >= len(in) {
			return []Article{}
		}
		in = in[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(in) {
		in = in[:filter.Limit]
	}
	return in
}

func containsFold(t Text, needle string) bool {
	for _, v := range t.values() {
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}

func (m *memoryStore) GetArticle(_ context.Context, id string) (Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := m.articleIndex(id)
	if i < 0 {
		return Article{}, fmt.Errorf("article %q: %w", id, ErrNotFound)
	}
	return cloneArticle(m.articles[i]), nil
}

func (m *memoryStore) CreateArticle(_ context.Context, article Article) (Article, error) {
	if err := validateArticle(article); err != nil {
		return Article{}, err
	}
	now := m.now().UTC()
	article.ID = uuid.NewString()
	article.CreatedAt = now
	article.UpdatedAt = now
	article.Views = 0
	if article.PublishedAt.IsZero() {
		article.PublishedAt = now
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.articles = slices.Insert(m.articles, 0, cloneArticle(article))
	return article, nil
}

func (m *memoryStore) UpdateArticle(_ context.Context, id string, article Article) (Article, error) {
	if err := validateArticle(article); err != nil {
		return Article{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.articleIndex(id)
	if i < 0 {
		return Article{}, fmt.Errorf("article %q: %w", id, ErrNotFound)
	}
	current := m.articles[i]
	article.ID = current.ID
	article.CreatedAt = current.CreatedAt
	article.Views = current.Views
	if article.PublishedAt.IsZero() {
		article.PublishedAt = current.PublishedAt
	}
	article.UpdatedAt = m.now().UTC()
	m.articles[i] = cloneArticle(article)
	return article, nil
}

func (m *memoryStore) DeleteArticle(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.articleIndex(id)
	if i < 0 {
		return fmt.Errorf("article %q: %w", id, ErrNotFound)
	}
	m.articles = slices.Delete(m.articles, i, i+1)
	return nil
}

func (m *memoryStore) ListCategories(context.Context) ([]Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append(make([]Category, 0, len(m.categories)), m.categories...), nil
}

func (m *memoryStore) CreateCategory(_ context.Context, category Category) (Category, error) {
	if category.Name.empty() {
		return Category{}, fmt.Errorf("%w: category name required", ErrInvalid)
	}
	now := m.now().UTC()
	category.ID = uuid.NewString()
	category.CreatedAt = now
	category.UpdatedAt = now
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories = append(m.categories, category)
	return category, nil
}

func (m *memoryStore) UpdateCategory(_ context.Context, id string, category Category) (Category, error) {
	if category.Name.empty() {
		return Category{}, fmt.Errorf("%w: category name required", ErrInvalid)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.IndexFunc(m.categories, func(c Category) bool { return c.ID == id })
	if i < 0 {
		return Category{}, fmt.Errorf("category %q: %w", id, ErrNotFound)
	}
	category.ID = id
	category.CreatedAt = m.categories[i].CreatedAt
	category.UpdatedAt = m.now().UTC()
	m.categories[i] = category
	return category, nil
}

func (m *memoryStore) DeleteCategory(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.IndexFunc(m.categories, func(c Category) bool { return c.ID == id })
	if i < 0 {
		return fmt.Errorf("category %q: %w", id, ErrNotFound)
	}
	m.categories = slices.Delete(m.categories, i, i+1)
	return nil
}

func (m *memoryStore) articleIndex(id string) int {
	return slices.IndexFunc(m.articles, func(a Article) bool { return a.ID == id })
}

func validateArticle(a Article) error {
	if a.Title.empty() {
		return fmt.Errorf("%w: article title required", ErrInvalid)
	}
	if a.CategoryID == "" {
		return fmt.Errorf("%w: article category required", ErrInvalid)
	}
	return nil
}

func cloneArticle(a Article) Article {
	a.Tags = slices.Clone(a.Tags)
	if a.Excerpt != nil {
		excerpt := *a.Excerpt
		a.Excerpt = &excerpt
	}
	return a
}
