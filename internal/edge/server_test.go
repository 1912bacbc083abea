package edge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/filmarcelino/carnivore-kitchen-genie/internal/domain"
)

type fakeTranscriber struct {
	text     string
	err      error
	encoding string
	size     int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audio []byte, encoding string) (string, error) {
	f.encoding = encoding
	f.size = len(audio)
	return f.text, f.err
}

type fakeGenerator struct {
	recipe      domain.Recipe
	err         error
	ingredients string
	diet        domain.DietType
}

func (f *fakeGenerator) Generate(_ context.Context, ingredients string, diet domain.DietType) (domain.Recipe, error) {
	f.ingredients = ingredients
	f.diet = diet
	return f.recipe, f.err
}

type fakeReader struct {
	extracted domain.ExtractedRecipe
	err       error
	url       string
}

func (f *fakeReader) ExtractRecipe(_ context.Context, imageURL string) (domain.ExtractedRecipe, error) {
	f.url = imageURL
	return f.extracted, f.err
}

type harness struct {
	transcriber *fakeTranscriber
	generator   *fakeGenerator
	reader      *fakeReader
	handler     http.Handler
}

func newHarness(cfg Config) *harness {
	h := &harness{
		transcriber: &fakeTranscriber{text: "beef, salt, butter"},
		generator: &fakeGenerator{recipe: domain.Recipe{
			Name:         "Butter Basted Ribeye",
			Category:     domain.CategoryPanClassics,
			Ingredients:  []string{"ribeye", "butter"},
			Instructions: []string{"Sear", "Baste"},
		}},
		reader: &fakeReader{extracted: domain.ExtractedRecipe{Name: "Bone Broth"}},
	}
	server := NewServer(cfg, h.transcriber, h.generator, h.reader, zerolog.Nop())
	server.newID = func() string { return "00000000-0000-4000-8000-000000000001" }
	h.handler = server.Handler()
	return h
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func audioUpload(t *testing.T, field, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="recording.webm"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/functions/v1/transcribe-audio", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload["error"]
}

func TestTranscribeAudio(t *testing.T) {
	h := newHarness(Config{})

	rec := h.do(audioUpload(t, "audio", "audio/mp4", bytes.Repeat([]byte{1}, 10000)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"text":"beef, salt, butter"}`, rec.Body.String())
	require.Equal(t, domain.EncodingMP4, h.transcriber.encoding)
	require.Equal(t, 10000, h.transcriber.size)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestTranscribeAudioRejections(t *testing.T) {
	cases := []struct {
		name    string
		req     func(t *testing.T) *http.Request
		status  int
		message string
	}{
		{
			name: "wrong content type",
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/functions/v1/transcribe-audio", strings.NewReader("{}"))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			status: http.StatusBadRequest, message: "Invalid Content-Type. Must be multipart/form-data",
		},
		{
			name:   "missing audio field",
			req:    func(t *testing.T) *http.Request { return audioUpload(t, "file", "audio/webm", []byte{1, 2, 3}) },
			status: http.StatusBadRequest, message: "Audio file is required",
		},
		{
			name:   "empty audio",
			req:    func(t *testing.T) *http.Request { return audioUpload(t, "audio", "audio/webm", nil) },
			status: http.StatusBadRequest, message: "Audio file is empty",
		},
		{
			name:   "short audio",
			req:    func(t *testing.T) *http.Request { return audioUpload(t, "audio", "audio/webm", make([]byte, 99)) },
			status: http.StatusBadRequest, message: "Audio recording is too short. Please speak longer.",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(Config{})
			rec := h.do(tc.req(t))
			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, tc.message, errorBody(t, rec))
			require.Zero(t, h.transcriber.size, "transcriber must not be called")
		})
	}
}

func TestTranscribeAudioNoSpeech(t *testing.T) {
	h := newHarness(Config{})
	h.transcriber.text = "   "

	rec := h.do(audioUpload(t, "audio", "audio/webm", make([]byte, 500)))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "No speech detected. Please try speaking more clearly.", errorBody(t, rec))

	h.transcriber.text = ""
	h.transcriber.err = domain.NewTranscriptionError(domain.ReasonEmptyTranscript, 0, "whisper returned no text", nil)
	rec = h.do(audioUpload(t, "audio", "audio/webm", make([]byte, 500)))
	require.Equal(t, "No speech detected. Please try speaking more clearly.", errorBody(t, rec))
}

func TestTranscribeAudioUpstreamFailure(t *testing.T) {
	h := newHarness(Config{})
	h.transcriber.err = domain.NewTranscriptionError(domain.ReasonServiceStatus, 429, "OpenAI API error: quota exceeded", nil)

	rec := h.do(audioUpload(t, "audio", "audio/ogg", make([]byte, 500)))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "OpenAI API error: quota exceeded", errorBody(t, rec))
	require.Equal(t, domain.EncodingOgg, h.transcriber.encoding)
}

func TestPreflight(t *testing.T) {
	h := newHarness(Config{FunctionsKey: "anon"})

	rec := h.do(httptest.NewRequest(http.MethodOptions, "/functions/v1/generate-recipe", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "authorization, x-client-info, apikey, content-type", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestFunctionsKey(t *testing.T) {
	h := newHarness(Config{FunctionsKey: "anon"})

	body := `{"ingredients":"ribeye, butter"}`
	rec := h.do(httptest.NewRequest(http.MethodPost, "/functions/v1/generate-recipe", strings.NewReader(body)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodPost, "/functions/v1/generate-recipe", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer anon")
	require.Equal(t, http.StatusOK, h.do(req).Code)

	req = httptest.NewRequest(http.MethodPost, "/functions/v1/generate-recipe", strings.NewReader(body))
	req.Header.Set("apikey", "anon")
	require.Equal(t, http.StatusOK, h.do(req).Code)

	for _, key := range []string{"ano", "anon2", "ANON"} {
		req = httptest.NewRequest(http.MethodPost, "/functions/v1/generate-recipe", strings.NewReader(body))
		req.Header.Set("apikey", key)
		rec = h.do(req)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "key %q", key)
		require.JSONEq(t, `{"error":"Invalid API key"}`, rec.Body.String())
	}
}

func TestGenerateRecipe(t *testing.T) {
	h := newHarness(Config{})

	req := httptest.NewRequest(http.MethodPost, "/functions/v1/generate-recipe",
		strings.NewReader(`{"ingredients":" ribeye, butter ","dietType":"flexible"}`))
	rec := h.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var recipe domain.Recipe
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recipe))
	require.Equal(t, "00000000-0000-4000-8000-000000000001", recipe.ID)
	require.Equal(t, domain.DietFlexible, recipe.DietType)
	require.Equal(t, "ribeye, butter", h.generator.ingredients)
	require.Equal(t, domain.DietFlexible, h.generator.diet)
}

func TestGenerateRecipeDefaultsToStrict(t *testing.T) {
	h := newHarness(Config{})

	rec := h.do(httptest.NewRequest(http.MethodPost, "/functions/v1/generate-recipe", strings.NewReader(`{"ingredients":"eggs"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, domain.DietStrict, h.generator.diet)
}

func TestGenerateRecipeRejections(t *testing.T) {
	cases := map[string]struct {
		body    string
		message string
	}{
		"invalid json": {body: `{`, message: "Invalid JSON body"},
		"missing":      {body: `{}`, message: "Ingredients are required"},
		"blank":        {body: `{"ingredients":"   "}`, message: "Ingredients are required"},
		"unknown diet": {body: `{"ingredients":"eggs","dietType":"keto"}`, message: "dietType: must be one of: strict flexible"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(Config{})
			rec := h.do(httptest.NewRequest(http.MethodPost, "/functions/v1/generate-recipe", strings.NewReader(tc.body)))
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, tc.message, errorBody(t, rec))
			require.Empty(t, h.generator.ingredients)
		})
	}
}

func TestGenerateRecipeFailures(t *testing.T) {
	h := newHarness(Config{})
	h.generator.err = errors.New("OpenAI API error: quota exceeded")

	rec := h.do(httptest.NewRequest(http.MethodPost, "/functions/v1/generate-recipe", strings.NewReader(`{"ingredients":"eggs"}`)))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "OpenAI API error: quota exceeded", errorBody(t, rec))

	h.generator.err = nil
	h.generator.recipe = domain.Recipe{Name: "Mystery"}
	rec = h.do(httptest.NewRequest(http.MethodPost, "/functions/v1/generate-recipe", strings.NewReader(`{"ingredients":"eggs"}`)))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, errorBody(t, rec), "Generated recipe is invalid")
}

func TestProcessImageOCR(t *testing.T) {
	h := newHarness(Config{})

	rec := h.do(httptest.NewRequest(http.MethodPost, "/functions/v1/process-image-ocr",
		strings.NewReader(`{"imageUrl":"https://example.com/page.jpg"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://example.com/page.jpg", h.reader.url)

	var extracted domain.ExtractedRecipe
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &extracted))
	require.Equal(t, "Bone Broth", extracted.Name)
}

func TestProcessImageOCRRejections(t *testing.T) {
	h := newHarness(Config{})

	rec := h.do(httptest.NewRequest(http.MethodPost, "/functions/v1/process-image-ocr", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Image URL is required", errorBody(t, rec))

	rec = h.do(httptest.NewRequest(http.MethodPost, "/functions/v1/process-image-ocr", strings.NewReader(`{"imageUrl":"not a url"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "imageUrl: must be a valid URL", errorBody(t, rec))

	h.reader.err = errors.New("vision model unavailable")
	rec = h.do(httptest.NewRequest(http.MethodPost, "/functions/v1/process-image-ocr",
		strings.NewReader(`{"imageUrl":"https://example.com/page.jpg"}`)))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "vision model unavailable", errorBody(t, rec))
}

func TestRecovererTurnsPanicsInto500(t *testing.T) {
	h := newHarness(Config{})
	server := NewServer(Config{}, h.transcriber, h.generator, panicReader{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/functions/v1/process-image-ocr",
		strings.NewReader(`{"imageUrl":"https://example.com/page.jpg"}`)))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthz(t *testing.T) {
	h := newHarness(Config{FunctionsKey: "anon"})
	rec := h.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	require.JSONEq(t, `{"status":"ok"}`, string(body))
}

type panicReader struct{}

func (panicReader) ExtractRecipe(context.Context, string) (domain.ExtractedRecipe, error) {
	panic("boom")
}

func TestRequestLogCarriesComponent(t *testing.T) {
	var out bytes.Buffer
	server := NewServer(Config{}, &fakeTranscriber{}, &fakeGenerator{}, &fakeReader{}, zerolog.New(&out))

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &entry))
	require.Equal(t, "edge", entry["component"])
	require.Equal(t, "/healthz", entry["path"])
	require.Equal(t, float64(http.StatusOK), entry["status"])
}
