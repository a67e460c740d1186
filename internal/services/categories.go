package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ivstefano/personal-finance-manager/internal/cache"
	"github.com/ivstefano/personal-finance-manager/internal/core"
	"github.com/ivstefano/personal-finance-manager/internal/storage"
)

var (
	// ErrCategoryCycle rejects a parent assignment that would make a
	// category its own ancestor.
	ErrCategoryCycle = errors.New("category parent would form a cycle")

	// ErrSystemCategory rejects edits to seeded default categories.
	ErrSystemCategory = errors.New("system category cannot be modified")
)

// maxCategoryDepth bounds the ancestor walk during cycle checks, so a
// corrupted parent chain cannot loop forever.
const maxCategoryDepth = 32

type defaultCategory struct {
	name  string
	kind  core.CategoryKind
	icon  string
	color string
}

var defaultCategories = []defaultCategory{
	{"Salary", core.CategoryIncome, "💼", "#10B981"},
	{"Freelance", core.CategoryIncome, "💻", "#3B82F6"},
	{"Investment", core.CategoryIncome, "📈", "#8B5CF6"},
	{"Other Income", core.CategoryIncome, "💰", "#06B6D4"},

	{"Food & Dining", core.CategoryExpense, "🍽️", "#F59E0B"},
	{"Groceries", core.CategoryExpense, "🛒", "#84CC16"},
	{"Transportation", core.CategoryExpense, "🚗", "#EF4444"},
	{"Gas & Fuel", core.CategoryExpense, "⛽", "#F97316"},
	{"Shopping", core.CategoryExpense, "🛍️", "#EC4899"},
	{"Entertainment", core.CategoryExpense, "🎬", "#8B5CF6"},
	{"Bills & Utilities", core.CategoryExpense, "📄", "#6B7280"},
	{"Health & Medical", core.CategoryExpense, "🏥", "#EF4444"},
	{"Home & Garden", core.CategoryExpense, "🏠", "#10B981"},
	{"Education", core.CategoryExpense, "📚", "#3B82F6"},
	{"Travel", core.CategoryExpense, "✈️", "#06B6D4"},
	{"Personal Care", core.CategoryExpense, "💄", "#EC4899"},
	{"Gifts & Donations", core.CategoryExpense, "🎁", "#F59E0B"},
	{"Bank Fees", core.CategoryExpense, "🏦", "#6B7280"},
	{"Other", core.CategoryExpense, "❓", "#9CA3AF"},
}

// CategoryService maintains each owner's category forest. An owner's
// first listing lazily seeds the default set.
type CategoryService struct {
	storage storage.Store
	cache   cache.Cache[[]core.Category]

	mu      sync.Mutex
	seeding map[string]*sync.Mutex
}

func NewCategoryService(store storage.Store, listCache cache.Cache[[]core.Category]) *CategoryService {
	if listCache == nil {
		listCache = cache.NewLRUCache[[]core.Category](256, 5*time.Minute)
	}
	return &CategoryService{
		storage: store,
		cache:   listCache,
		seeding: make(map[string]*sync.Mutex),
	}
}

// ListCategories returns the owner's active categories ordered by kind
// then name. Kind may be empty for all kinds. Seeds the defaults the
// first time an owner with no categories asks.
func (s *CategoryService) ListCategories(ctx context.Context, ownerID string, kind core.CategoryKind) ([]core.Category, error) {
	key := cacheKey(ownerID, kind)
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}

	categories, err := s.storage.ListCategories(ctx, ownerID, kind)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	if len(categories) == 0 {
		categories, err = s.ensureDefaults(ctx, ownerID, kind)
		if err != nil {
			return nil, err
		}
	}

	s.cache.Set(key, categories)
	return categories, nil
}

func (s *CategoryService) GetCategory(ctx context.Context, ownerID, id string) (*core.Category, error) {
	return s.storage.GetCategory(ctx, ownerID, id)
}

func (s *CategoryService) CreateCategory(ctx context.Context, c core.Category) (*core.Category, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if c.ParentID != "" {
		if _, err := s.storage.GetCategory(ctx, c.OwnerID, c.ParentID); err != nil {
			return nil, fmt.Errorf("resolve parent: %w", err)
		}
	}

	c.System = false
	if err := s.storage.CreateCategory(ctx, &c); err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}

	s.cache.DeletePrefix(ownerPrefix(c.OwnerID))
	slog.InfoContext(ctx, "Category created",
		"category_id", c.ID,
		"owner_id", c.OwnerID,
		"kind", c.Kind)

	return &c, nil
}

func (s *CategoryService) UpdateCategory(ctx context.Context, ownerID, id string, u storage.CategoryUpdate) (*core.Category, error) {
	existing, err := s.storage.GetCategory(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if existing.System && (u.Name != nil || u.Kind != nil) {
		return nil, ErrSystemCategory
	}

	if u.ParentID != nil && *u.ParentID != "" {
		if err := s.checkNoCycle(ctx, ownerID, id, *u.ParentID); err != nil {
			return nil, err
		}
	}

	updated, err := s.storage.UpdateCategory(ctx, ownerID, id, u)
	if err != nil {
		return nil, err
	}

	s.cache.DeletePrefix(ownerPrefix(ownerID))
	return updated, nil
}

// DeactivateCategory soft deletes a category. Transactions keep their
// category reference; children keep their parent reference.
func (s *CategoryService) DeactivateCategory(ctx context.Context, ownerID, id string) error {
	existing, err := s.storage.GetCategory(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if existing.System {
		return ErrSystemCategory
	}

	if err := s.storage.DeactivateCategory(ctx, ownerID, id); err != nil {
		return err
	}

	s.cache.DeletePrefix(ownerPrefix(ownerID))
	slog.InfoContext(ctx, "Category deactivated", "category_id", id, "owner_id", ownerID)
	return nil
}

// checkNoCycle walks from the proposed parent up to the roots and fails
// if it meets the category being re-parented.
func (s *CategoryService) checkNoCycle(ctx context.Context, ownerID, id, parentID string) error {
	if parentID == id {
		return ErrCategoryCycle
	}

	current := parentID
	for depth := 0; depth < maxCategoryDepth; depth++ {
		parent, err := s.storage.GetCategory(ctx, ownerID, current)
		if err != nil {
			return fmt.Errorf("resolve parent: %w", err)
		}
		if parent.ParentID == "" {
			return nil
		}
		if parent.ParentID == id {
			return ErrCategoryCycle
		}
		current = parent.ParentID
	}
	return ErrCategoryCycle
}

// ensureDefaults seeds the owner's default categories exactly once,
// even under concurrent first listings.
func (s *CategoryService) ensureDefaults(ctx context.Context, ownerID string, kind core.CategoryKind) ([]core.Category, error) {
	lock := s.ownerSeedLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	// Another listing may have seeded while we waited for the lock.
	categories, err := s.storage.ListCategories(ctx, ownerID, kind)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	if len(categories) > 0 {
		return categories, nil
	}

	// The kind filter could hide an already-seeded owner.
	if kind != "" {
		all, err := s.storage.ListCategories(ctx, ownerID, "")
		if err != nil {
			return nil, fmt.Errorf("list categories: %w", err)
		}
		if len(all) > 0 {
			return categories, nil
		}
	}

	for _, d := range defaultCategories {
		c := core.Category{
			OwnerID: ownerID,
			Name:    d.name,
			Kind:    d.kind,
			Icon:    d.icon,
			Color:   d.color,
			System:  true,
		}
		if err := s.storage.CreateCategory(ctx, &c); err != nil {
			slog.ErrorContext(ctx, "Failed to seed default category",
				"owner_id", ownerID,
				"name", d.name,
				"error", err)
		}
	}

	slog.InfoContext(ctx, "Seeded default categories", "owner_id", ownerID)

	categories, err = s.storage.ListCategories(ctx, ownerID, kind)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

func (s *CategoryService) ownerSeedLock(ownerID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.seeding[ownerID]
	if !ok {
		lock = &sync.Mutex{}
		s.seeding[ownerID] = lock
	}
	return lock
}

func ownerPrefix(ownerID string) string {
	return ownerID + "/"
}

func cacheKey(ownerID string, kind core.CategoryKind) string {
	return ownerPrefix(ownerID) + string(kind)
}
