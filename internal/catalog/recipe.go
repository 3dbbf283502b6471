package catalog

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// RecipeRegistry stores recipes with thread-safe access.
type RecipeRegistry struct {
	mu      sync.RWMutex
	recipes map[RecipeID]*Recipe
}

// NewRecipeRegistry creates an empty recipe registry.
func NewRecipeRegistry() *RecipeRegistry {
	return &RecipeRegistry{recipes: make(map[RecipeID]*Recipe)}
}

// Register adds or updates a recipe in the registry.
// Returns an error if the recipe is invalid.
func (r *RecipeRegistry) Register(recipe *Recipe) error {
	if recipe == nil {
		return errors.New("recipe cannot be nil")
	}
	if recipe.ID == "" {
		return errors.New("recipe ID cannot be empty")
	}
	if len(recipe.Inputs) == 0 {
		return fmt.Errorf("recipe %s: at least one input required", recipe.ID)
	}
	if recipe.Duration < 0 {
		return fmt.Errorf("recipe %s: duration cannot be negative", recipe.ID)
	}

	for i, input := range recipe.Inputs {
		if input.Item == 0 {
			return fmt.Errorf("input %d: item ID cannot be empty", i)
		}
		if input.Quantity <= 0 {
			return fmt.Errorf("input %d: quantity must be positive", i)
		}
	}

	for i, output := range recipe.Outputs {
		if output.Item == 0 {
			return fmt.Errorf("output %d: item ID cannot be empty", i)
		}
		if output.Quantity <= 0 {
			return fmt.Errorf("output %d: quantity must be positive", i)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.recipes[recipe.ID] = recipe
	return nil
}

// Lookup retrieves a recipe by ID. Returns nil if not found.
func (r *RecipeRegistry) Lookup(id RecipeID) *Recipe {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recipes[id]
}

// GetAll returns all recipes in the registry ordered by id.
func (r *RecipeRegistry) GetAll() []*Recipe {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Recipe, 0, len(r.recipes))
	for _, recipe := range r.recipes {
		result = append(result, recipe)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Count returns the number of recipes in the registry.
func (r *RecipeRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.recipes)
}
