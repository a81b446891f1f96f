package content

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, store Store, articles ...Article) []Article {
	t.Helper()
	out := make([]Article, 0, len(articles))
	for _, a := range articles {
		created, err := store.CreateArticle(context.Background(), a)
		require.NoError(t, err)
		out = append(out, created)
	}
	return out
}

func TestListArticlesFilters(t *testing.T) {
	store := NewMemory(nil)
	seed(t, store,
		Article{Title: Text{EN: "one"}, CategoryID: "politics"},
		Article{Title: Text{EN: "two"}, CategoryID: "sports", Featured: true},
		Article{Title: Text{EN: "three"}, CategoryID: "politics", Featured: true},
		Article{Title: Text{EN: "four"}, CategoryID: "politics"},
	)
	ctx := context.Background()

	all, err := store.ListArticles(ctx, ArticleFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "four", all[0].Title.EN, "newest first")

	politics, err := store.ListArticles(ctx, ArticleFilter{CategoryID: "politics"})
	require.NoError(t, err)
	assert.Len(t, politics, 3)

	featured, err := store.ListArticles(ctx, ArticleFilter{CategoryID: "politics", Featured: true})
	require.NoError(t, err)
	require.Len(t, featured, 1)
	assert.Equal(t, "three", featured[0].Title.EN)

	paged, err := store.ListArticles(ctx, ArticleFilter{Offset: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, paged, 2)
	assert.Equal(t, "three", paged[0].Title.EN)
	assert.Equal(t, "two", paged[1].Title.EN)

	beyond, err := store.ListArticles(ctx, ArticleFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func TestSearchArticlesMatchesEveryTranslation(t *testing.T) {
	store := NewMemory(nil)
	seed(t, store,
		Article{Title: Text{UR: "خبر", EN: "Budget Debate"}, Content: Text{EN: "assembly"}, CategoryID: "politics"},
		Article{Title: Text{PS: "لوبه"}, Content: Text{EN: "The cricket BUDGET was cut"}, CategoryID: "sports"},
		Article{Title: Text{EN: "weather"}, CategoryID: "local"},
	)
	ctx := context.Background()

	hits, err := store.SearchArticles(ctx, "budget", ArticleFilter{})
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = store.SearchArticles(ctx, "budget", ArticleFilter{CategoryID: "sports", Limit: 5})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "sports", hits[0].CategoryID)

	hits, err = store.SearchArticles(ctx, "خبر", ArticleFilter{})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestArticleLifecycle(t *testing.T) {
	now := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	store := NewMemory(func() time.Time { return now })
	ctx := context.Background()

	created := seed(t, store, Article{Title: Text{EN: "draft"}, CategoryID: "c1", Tags: []string{"a"}})[0]
	require.NotEmpty(t, created.ID)
	assert.Equal(t, now, created.CreatedAt)
	assert.Equal(t, now, created.PublishedAt)

	now = now.Add(time.Hour)
	updated, err := store.UpdateArticle(ctx, created.ID, Article{Title: Text{EN: "final"}, CategoryID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, now, updated.UpdatedAt)

	got, err := store.GetArticle(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "final", got.Title.EN)

	require.NoError(t, store.DeleteArticle(ctx, created.ID))
	_, err = store.GetArticle(ctx, created.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, store.DeleteArticle(ctx, created.ID), ErrNotFound)
	_, err = store.UpdateArticle(ctx, created.ID, Article{Title: Text{EN: "x"}, CategoryID: "c1"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateArticleValidates(t *testing.T) {
	store := NewMemory(nil)
	_, err := store.CreateArticle(context.Background(), Article{CategoryID: "c1"})
	require.ErrorIs(t, err, ErrInvalid)
	_, err = store.CreateArticle(context.Background(), Article{Title: Text{UR: "x"}})
	require.ErrorIs(t, err, ErrInvalid)
}

func TestReturnedArticlesAreCopies(t *testing.T) {
	store := NewMemory(nil)
	created := seed(t, store, Article{Title: Text{EN: "t"}, CategoryID: "c", Tags: []string{"orig"}})[0]

	got, err := store.GetArticle(context.Background(), created.ID)
	require.NoError(t, err)
	got.Tags[0] = "mutated"

	again, err := store.GetArticle(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"orig"}, again.Tags)
}

func TestCategoryLifecycle(t *testing.T) {
	store := NewMemory(nil)
	ctx := context.Background()

	empty, err := store.ListCategories(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	_, err = store.CreateCategory(ctx, Category{})
	require.ErrorIs(t, err, ErrInvalid)

	created, err := store.CreateCategory(ctx, Category{Name: Text{EN: "Politics", UR: "سیاست"}})
	require.NoError(t, err)

	updated, err := store.UpdateCategory(ctx, created.ID, Category{Name: Text{EN: "World"}})
	require.NoError(t, err)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	list, err := store.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "World", list[0].Name.EN)

	require.NoError(t, store.DeleteCategory(ctx, created.ID))
	require.ErrorIs(t, store.DeleteCategory(ctx, created.ID), ErrNotFound)
	_, err = store.UpdateCategory(ctx, created.ID, Category{Name: Text{EN: "x"}})
	require.ErrorIs(t, err, ErrNotFound)
}
