package openaiapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/filmarcelino/carnivore-kitchen-genie/internal/domain"
)

type fakeOpenAI struct {
	*httptest.Server

	mu       sync.Mutex
	forms    []map[string]string
	files    []string
	requests []map[string]any
}

func newFakeOpenAI(t *testing.T, status int, transcription string, completion string) *fakeOpenAI {
	t.Helper()
	f := &fakeOpenAI{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `{"error":{"message":"quota exceeded","type":"insufficient_quota"}}`)
			return
		}

		switch {
		case strings.HasSuffix(r.URL.Path, "/audio/transcriptions"):
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			form := map[string]string{}
			for key, values := range r.MultipartForm.Value {
				form[key] = values[0]
			}
			f.mu.Lock()
			f.forms = append(f.forms, form)
			if headers := r.MultipartForm.File["file"]; len(headers) > 0 {
				f.files = append(f.files, headers[0].Filename)
			}
			f.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]string{"text": transcription})
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.mu.Lock()
			f.requests = append(f.requests, body)
			f.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion",
				"created": 0,
				"model":   body["model"],
				"choices": []map[string]any{{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": completion},
				}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.Server.Close)
	return f
}

func (f *fakeOpenAI) config() Config {
	return Config{APIKey: "sk-test", BaseURL: f.URL + "/v1/"}
}

func TestWhisperTranscribeUploadsNamedFile(t *testing.T) {
	server := newFakeOpenAI(t, http.StatusOK, " beef, salt, butter ", "")

	text, err := NewWhisper(server.config()).Transcribe(context.Background(), bytes.Repeat([]byte{1}, 500), domain.EncodingMP4)
	require.NoError(t, err)
	require.Equal(t, "beef, salt, butter", text)

	server.mu.Lock()
	defer server.mu.Unlock()
	require.Equal(t, []string{"recording.mp4"}, server.files)
	require.Equal(t, "whisper-1", server.forms[0]["model"])
	require.Equal(t, "en", server.forms[0]["language"])
}

func TestWhisperTranscribeFailures(t *testing.T) {
	_, err := NewWhisper(Config{}).Transcribe(context.Background(), []byte{1}, domain.EncodingWebM)
	require.True(t, domain.IsReason(err, domain.ReasonNotConfigured))

	_, err = NewWhisper(Config{APIKey: "k"}).Transcribe(context.Background(), nil, domain.EncodingWebM)
	require.True(t, domain.IsReason(err, domain.ReasonRecordingEmpty))

	_, err = NewWhisper(Config{APIKey: "k"}).Transcribe(context.Background(), []byte{1}, "audio/aiff")
	require.True(t, domain.IsReason(err, domain.ReasonUnsupportedEncoding))

	empty := newFakeOpenAI(t, http.StatusOK, "   ", "")
	_, err = NewWhisper(empty.config()).Transcribe(context.Background(), []byte{1, 2, 3}, domain.EncodingWebM)
	require.True(t, domain.IsReason(err, domain.ReasonEmptyTranscript))

	failing := newFakeOpenAI(t, http.StatusTooManyRequests, "", "")
	_, err = NewWhisper(failing.config()).Transcribe(context.Background(), []byte{1, 2, 3}, domain.EncodingWebM)
	recErr, ok := domain.AsRecorderError(err)
	require.True(t, ok)
	require.Equal(t, domain.ReasonServiceStatus, recErr.Reason)
	require.Equal(t, http.StatusTooManyRequests, recErr.Status)
	require.Contains(t, recErr.Message, "quota exceeded")
}

func TestChefGenerateRecipe(t *testing.T) {
	recipe := `{"name":"Butter Basted Ribeye","category":"pan-classics","ingredients":["ribeye","butter","salt"],` +
		`"instructions":["Salt the steak","Sear in butter"],"prepTime":20,"macros":{"protein":60,"fat":45,"carbs":0}}`
	server := newFakeOpenAI(t, http.StatusOK, "", recipe)

	got, err := NewChef(server.config()).Generate(context.Background(), "ribeye, butter, salt", domain.DietStrict)
	require.NoError(t, err)
	require.Equal(t, "Butter Basted Ribeye", got.Name)
	require.Equal(t, domain.CategoryPanClassics, got.Category)
	require.Equal(t, domain.DietStrict, got.DietType)
	require.NotNil(t, got.Macros)
	require.Equal(t, 60.0, got.Macros.Protein)

	server.mu.Lock()
	defer server.mu.Unlock()
	require.Len(t, server.requests, 1)
	body := server.requests[0]
	require.Equal(t, "gpt-4o-mini", body["model"])
	require.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])

	messages := body["messages"].([]any)
	require.Len(t, messages, 2)
	system := messages[0].(map[string]any)["content"].(string)
	require.Contains(t, system, "Use only animal products")
	require.Contains(t, system, domain.RecipeCategories)
	user := messages[1].(map[string]any)["content"].(string)
	require.Equal(t, "Create a carnivore recipe using these ingredients: ribeye, butter, salt", user)
}

func TestChefGenerateFlexiblePrompt(t *testing.T) {
	require.Contains(t, recipeSystemPrompt(domain.DietFlexible), "minimal plant ingredients")
	require.NotContains(t, recipeSystemPrompt(domain.DietFlexible), "Use only animal products")
}

func TestChefGenerateRejectsNonJSON(t *testing.T) {
	server := newFakeOpenAI(t, http.StatusOK, "", "here is your recipe!")

	_, err := NewChef(server.config()).Generate(context.Background(), "eggs", domain.DietStrict)
	require.ErrorContains(t, err, "failed to parse recipe data")
}

func TestChefGenerateServiceError(t *testing.T) {
	server := newFakeOpenAI(t, http.StatusInternalServerError, "", "")

	_, err := NewChef(server.config()).Generate(context.Background(), "eggs", domain.DietStrict)
	require.ErrorContains(t, err, "OpenAI API error: quota exceeded")
}

func TestChefExtractRecipeSendsImage(t *testing.T) {
	extracted := `{"name":"Bone Broth","ingredients":["2 lb beef bones"],"instructions":["Simmer 24h"],"prepTime":30,"notes":"salt to taste"}`
	server := newFakeOpenAI(t, http.StatusOK, "", extracted)

	got, err := NewChef(server.config()).ExtractRecipe(context.Background(), "https://example.com/page.jpg")
	require.NoError(t, err)
	require.Equal(t, "Bone Broth", got.Name)
	require.Equal(t, 30, got.PrepTime)
	require.Equal(t, "salt to taste", got.Notes)

	server.mu.Lock()
	defer server.mu.Unlock()
	body := server.requests[0]
	require.Equal(t, "gpt-4o", body["model"])
	messages := body["messages"].([]any)
	parts := messages[1].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	image := parts[1].(map[string]any)
	require.Equal(t, "image_url", image["type"])
	require.Equal(t, "https://example.com/page.jpg", image["image_url"].(map[string]any)["url"])
}

func TestChefRequiresKey(t *testing.T) {
	_, err := NewChef(Config{}).Generate(context.Background(), "eggs", domain.DietStrict)
	require.True(t, domain.IsReason(err, domain.ReasonNotConfigured))
}
