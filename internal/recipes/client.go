// Package recipes hands a finished ingredient transcript to the recipe backend.
package recipes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/filmarcelino/carnivore-kitchen-genie/internal/domain"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/validation"
)

// ErrNoIngredients is returned before any request is made for an empty list.
var ErrNoIngredients = errors.New("ingredients are required")

// Config holds the generate-recipe endpoint and its credentials.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Client implements ports.RecipeGenerator against the generate-recipe function.
type Client struct {
	cfg    Config
	client *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type generateRequest struct {
	Ingredients string          `json:"ingredients"`
	DietType    domain.DietType `json:"dietType"`
}

// Generate posts the ingredient list and validates the recipe that comes back.
func (c *Client) Generate(ctx context.Context, ingredients string, diet domain.DietType) (domain.Recipe, error) {
	ingredients = strings.TrimSpace(ingredients)
	if ingredients == "" {
		return domain.Recipe{}, ErrNoIngredients
	}
	if diet == "" {
		diet = domain.DietStrict
	}
	if strings.TrimSpace(c.cfg.URL) == "" {
		return domain.Recipe{}, errors.New("recipe endpoint is not configured")
	}

	payload, err := json.Marshal(generateRequest{Ingredients: ingredients, DietType: diet})
	if err != nil {
		return domain.Recipe{}, fmt.Errorf("failed to encode recipe request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return domain.Recipe{}, fmt.Errorf("failed to build recipe request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(c.cfg.APIKey); key != "" {
		req.Header.Set("apikey", key)
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Recipe{}, fmt.Errorf("recipe request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Recipe{}, fmt.Errorf("failed to read recipe response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var failure struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &failure) == nil && strings.TrimSpace(failure.Error) != "" {
			return domain.Recipe{}, fmt.Errorf("recipe service returned %d: %s", resp.StatusCode, failure.Error)
		}
		return domain.Recipe{}, fmt.Errorf("recipe service returned %d", resp.StatusCode)
	}

	var recipe domain.Recipe
	if err := json.Unmarshal(body, &recipe); err != nil {
		return domain.Recipe{}, fmt.Errorf("failed to parse recipe data: %w", err)
	}
	if err := validation.Struct(recipe); err != nil {
		return domain.Recipe{}, fmt.Errorf("recipe service returned an invalid recipe: %w", err)
	}
	return recipe, nil
}
