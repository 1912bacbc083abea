package openaiapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"

	"github.com/filmarcelino/carnivore-kitchen-genie/internal/domain"
)

// ErrNoCompletion is returned when the model answered without any choices.
var ErrNoCompletion = errors.New("model returned no completion")

// Chef generates carnivore recipes from ingredient lists and reads recipes
// off photographed pages.
type Chef struct {
	cfg    Config
	client *openai.Client
}

func NewChef(cfg Config) *Chef {
	cfg = cfg.withDefaults()
	return &Chef{cfg: cfg, client: newClient(cfg)}
}

// Generate asks the chat model for a recipe built from ingredients. The
// result is not validated here; callers decide what they accept.
func (c *Chef) Generate(ctx context.Context, ingredients string, diet domain.DietType) (domain.Recipe, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return domain.Recipe{}, errMissingKey
	}
	if diet == "" {
		diet = domain.DietStrict
	}

	content, err := c.complete(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.ChatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(recipeSystemPrompt(diet)),
			openai.UserMessage("Create a carnivore recipe using these ingredients: " + ingredients),
		},
		ResponseFormat: jsonObjectFormat(),
	})
	if err != nil {
		return domain.Recipe{}, err
	}

	var recipe domain.Recipe
	if err := json.Unmarshal([]byte(content), &recipe); err != nil {
		return domain.Recipe{}, fmt.Errorf("failed to parse recipe data: %w", err)
	}
	if recipe.DietType == "" {
		recipe.DietType = diet
	}
	return recipe, nil
}

// ExtractRecipe reads a recipe from the image at imageURL.
func (c *Chef) ExtractRecipe(ctx context.Context, imageURL string) (domain.ExtractedRecipe, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return domain.ExtractedRecipe{}, errMissingKey
	}

	content, err := c.complete(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.VisionModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(ocrSystemPrompt),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart("Extract the recipe from this image:"),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: imageURL}),
			}),
		},
		ResponseFormat: jsonObjectFormat(),
	})
	if err != nil {
		return domain.ExtractedRecipe{}, err
	}

	var extracted domain.ExtractedRecipe
	if err := json.Unmarshal([]byte(content), &extracted); err != nil {
		return domain.ExtractedRecipe{}, fmt.Errorf("failed to parse recipe data: %w", err)
	}
	return extracted, nil
}

func (c *Chef) complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if message, _, ok := apiMessage(err); ok {
			return "", fmt.Errorf("%s: %w", message, err)
		}
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", ErrNoCompletion
	}
	return completion.Choices[0].Message.Content, nil
}

func jsonObjectFormat() openai.ChatCompletionNewParamsResponseFormatUnion {
	return openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
	}
}

func recipeSystemPrompt(diet domain.DietType) string {
	rule := "You can include minimal plant ingredients for flavor if needed."
	if diet == domain.DietStrict {
		rule = "Use only animal products in the recipe."
	}
	return fmt.Sprintf(`You are a specialized carnivore diet recipe creator.
Create a recipe using only the ingredients provided, focusing on animal products.
%s
Return the recipe in JSON format with the following structure:
{
  "name": "Recipe Name",
  "category": "one of: %s",
  "ingredients": ["ingredient 1", "ingredient 2", ...],
  "instructions": ["step 1", "step 2", ...],
  "prepTime": estimated preparation time in minutes,
  "cookingMethod": "one of: grill, pan, oven, slow-cook",
  "dietType": "%s",
  "macros": {
    "protein": estimated grams,
    "fat": estimated grams,
    "carbs": estimated grams
  }
}`, rule, domain.RecipeCategories, diet)
}

const ocrSystemPrompt = `You are a recipe OCR system. Extract the complete recipe from the image, including:
1. Recipe name/title
2. All ingredients with quantities
3. All preparation instructions
4. Any other recipe details like prep time, cooking method, etc.

Format your response as JSON:
{
  "name": "Recipe Name",
  "ingredients": ["ingredient 1 with quantity", "ingredient 2 with quantity", ...],
  "instructions": ["step 1", "step 2", ...],
  "prepTime": estimated preparation time in minutes (if visible),
  "notes": "any other details from the recipe"
}`
