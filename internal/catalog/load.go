package catalog

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gravitas-games/stationhost/internal/inventory"
	"github.com/gravitas-games/stationhost/pkg/models"
)

// Catalog bundles the item and recipe registries.
type Catalog struct {
	Items   *Registry
	Recipes *RecipeRegistry
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{Items: NewRegistry(), Recipes: NewRecipeRegistry()}
}

type fileItem struct {
	Key       string    `yaml:"key"`
	ID        uint32    `yaml:"id"`
	Name      string    `yaml:"name"`
	Category  string    `yaml:"category"`
	MaxStack  int       `yaml:"max_stack"`
	Price     int64     `yaml:"price"`
	Abilities []Ability `yaml:"abilities"`
}

type fileAmount struct {
	Item string `yaml:"item"`
	Qty  int    `yaml:"qty"`
}

type fileRecipe struct {
	ID       string        `yaml:"id"`
	Name     string        `yaml:"name"`
	Category string        `yaml:"category"`
	Duration time.Duration `yaml:"duration"`
	Inputs   []fileAmount  `yaml:"inputs"`
	Outputs  []fileAmount  `yaml:"outputs"`
}

type fileStation struct {
	ID         string       `yaml:"id"`
	Kind       string       `yaml:"kind"`
	Capacity   int          `yaml:"capacity"`
	Stock      []fileAmount `yaml:"stock"`
	CraftSpeed float64      `yaml:"craft_speed"`
	CraftYield float64      `yaml:"craft_yield"`
}

type file struct {
	Items    []fileItem    `yaml:"items"`
	Recipes  []fileRecipe  `yaml:"recipes"`
	Stations []fileStation `yaml:"stations"`
}

// Load reads a catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data)
}

// Parse builds a catalog from YAML bytes. Items are registered first so
// recipes and station stock can refer to them by key.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}

	c := New()
	for _, it := range f.Items {
		cat, err := ParseCategory(it.Category)
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", it.Key, err)
		}
		if it.MaxStack < 0 || it.MaxStack > 255 {
			return nil, fmt.Errorf("item %s: max_stack must be within 1..255", it.Key)
		}
		if _, dup := c.Items.LookupKey(it.Key); dup {
			return nil, fmt.Errorf("item %s: duplicate key", it.Key)
		}
		def := ItemDefinition{
			ID:        inventory.DefinitionID(it.ID),
			Key:       it.Key,
			Name:      it.Name,
			Category:  cat,
			MaxStack:  uint8(it.MaxStack),
			Price:     it.Price,
			Abilities: it.Abilities,
		}
		if err := c.Items.Register(def); err != nil {
			return nil, fmt.Errorf("item %s: %w", it.Key, err)
		}
	}

	for _, fr := range f.Recipes {
		recipe := &Recipe{
			ID:       RecipeID(fr.ID),
			Name:     fr.Name,
			Category: fr.Category,
			Duration: fr.Duration,
		}
		for _, in := range fr.Inputs {
			def, ok := c.Items.LookupKey(in.Item)
			if !ok {
				return nil, fmt.Errorf("recipe %s: unknown input %q", fr.ID, in.Item)
			}
			recipe.Inputs = append(recipe.Inputs, Requirement{Item: def.ID, Quantity: in.Qty})
		}
		for _, out := range fr.Outputs {
			def, ok := c.Items.LookupKey(out.Item)
			if !ok {
				return nil, fmt.Errorf("recipe %s: unknown output %q", fr.ID, out.Item)
			}
			recipe.Outputs = append(recipe.Outputs, Yield{Item: def.ID, Quantity: out.Qty})
		}
		if err := c.Recipes.Register(recipe); err != nil {
			return nil, err
		}
	}

	for _, fs := range f.Stations {
		st := Station{
			ID:         models.StationID(fs.ID),
			Kind:       StationKind(fs.Kind),
			Capacity:   fs.Capacity,
			CraftSpeed: fs.CraftSpeed,
			CraftYield: fs.CraftYield,
		}
		if st.CraftSpeed < 0 || st.CraftYield < 0 {
			return nil, fmt.Errorf("station %s: craft modifiers must not be negative", fs.ID)
		}
		if (st.CraftSpeed != 0 || st.CraftYield != 0) && st.Kind != StationCrafter {
			return nil, fmt.Errorf("station %s: craft modifiers only apply to crafters", fs.ID)
		}
		for _, s := range fs.Stock {
			def, ok := c.Items.LookupKey(s.Item)
			if !ok {
				return nil, fmt.Errorf("station %s: unknown stock item %q", fs.ID, s.Item)
			}
			if s.Qty <= 0 || s.Qty > int(def.MaxStack) {
				return nil, fmt.Errorf("station %s: stock %s qty out of range", fs.ID, s.Item)
			}
			st.Stock = append(st.Stock, inventory.ItemStack{Def: def.ID, Qty: uint8(s.Qty)})
		}
		if st.Kind == StationVendor && st.Capacity > 0 && len(st.Stock) > st.Capacity {
			return nil, fmt.Errorf("station %s: stock exceeds capacity", fs.ID)
		}
		if err := c.Items.AddStation(st); err != nil {
			return nil, err
		}
	}
	return c, nil
}
