package domain

// DietType selects how strictly a generated recipe sticks to animal products.
type DietType string

const (
	DietStrict   DietType = "strict"
	DietFlexible DietType = "flexible"
)

// RecipeCategory groups recipes on the browse screen.
type RecipeCategory string

const (
	CategoryQuickGrill  RecipeCategory = "quick-grill"
	CategoryBreakfast   RecipeCategory = "carnivore-breakfast"
	CategoryBBQ         RecipeCategory = "bbq"
	CategoryOffal       RecipeCategory = "offal"
	CategoryPanClassics RecipeCategory = "pan-classics"
)

// RecipeCategories lists the categories a generated recipe may use, in prompt form.
const RecipeCategories = "quick-grill, carnivore-breakfast, bbq, offal, pan-classics"

// CookingMethod is the primary heat source of a recipe.
type CookingMethod string

const (
	MethodGrill    CookingMethod = "grill"
	MethodPan      CookingMethod = "pan"
	MethodOven     CookingMethod = "oven"
	MethodSlowCook CookingMethod = "slow-cook"
)

// Macros are estimated grams per serving.
type Macros struct {
	Protein float64 `json:"protein" validate:"gte=0"`
	Fat     float64 `json:"fat" validate:"gte=0"`
	Carbs   float64 `json:"carbs" validate:"gte=0"`
}

// Recipe is the record produced by generation and stored by the recipe backend.
type Recipe struct {
	ID            string         `json:"id,omitempty"`
	Name          string         `json:"name" validate:"required"`
	Image         string         `json:"image,omitempty" validate:"omitempty,url"`
	Ingredients   []string       `json:"ingredients" validate:"required,min=1,dive,required"`
	Instructions  []string       `json:"instructions" validate:"required,min=1,dive,required"`
	Macros        *Macros        `json:"macros,omitempty"`
	DietType      DietType       `json:"dietType" validate:"required,oneof=strict flexible"`
	Category      RecipeCategory `json:"category" validate:"required,oneof=quick-grill carnivore-breakfast bbq offal pan-classics"`
	PrepTime      int            `json:"prepTime,omitempty" validate:"gte=0"`
	CookingMethod CookingMethod  `json:"cookingMethod,omitempty" validate:"omitempty,oneof=grill pan oven slow-cook"`
}

// ExtractedRecipe is what the OCR model reads off a photographed page.
type ExtractedRecipe struct {
	Name         string   `json:"name"`
	Ingredients  []string `json:"ingredients"`
	Instructions []string `json:"instructions"`
	PrepTime     int      `json:"prepTime,omitempty"`
	Notes        string   `json:"notes,omitempty"`
}
