package edge

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/filmarcelino/carnivore-kitchen-genie/internal/domain"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/validation"
)

const (
	msgNoSpeech    = "No speech detected. Please try speaking more clearly."
	msgTooShort    = "Audio recording is too short. Please speak longer."
	msgInvalidJSON = "Invalid JSON body"
)

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
		writeError(w, http.StatusBadRequest, "Invalid Content-Type. Must be multipart/form-data")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Audio file is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Audio file is required")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Audio file is required")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Audio file could not be read")
		return
	}
	switch {
	case len(audio) == 0:
		writeError(w, http.StatusBadRequest, "Audio file is empty")
		return
	case len(audio) < s.cfg.MinAudioBytes:
		writeError(w, http.StatusBadRequest, msgTooShort)
		return
	}

	upload := domain.AudioFileFromContentType(header.Header.Get("Content-Type"))
	log := s.logger.With().Int("bytes", len(audio)).Str("encoding", upload.ContentType).Logger()

	text, err := s.transcriber.Transcribe(r.Context(), audio, upload.ContentType)
	if err != nil {
		if domain.IsReason(err, domain.ReasonEmptyTranscript) {
			writeError(w, http.StatusInternalServerError, msgNoSpeech)
			return
		}
		log.Error().Err(err).Msg("transcription failed")
		writeError(w, http.StatusInternalServerError, errorMessage(err))
		return
	}

	text = strings.TrimSpace(text)
	if text == "" {
		writeError(w, http.StatusInternalServerError, msgNoSpeech)
		return
	}
	log.Info().Int("chars", len(text)).Msg("transcription complete")
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

type generateRecipeRequest struct {
	Ingredients string          `json:"ingredients" validate:"required"`
	DietType    domain.DietType `json:"dietType" validate:"omitempty,oneof=strict flexible"`
}

func (s *Server) handleGenerateRecipe(w http.ResponseWriter, r *http.Request) {
	var req generateRecipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	req.Ingredients = strings.TrimSpace(req.Ingredients)
	if err := validation.Struct(req); err != nil {
		if fields, ok := validation.AsError(err); ok && fields.Has("ingredients", "required") {
			writeError(w, http.StatusBadRequest, "Ingredients are required")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.DietType == "" {
		req.DietType = domain.DietStrict
	}

	recipe, err := s.generator.Generate(r.Context(), req.Ingredients, req.DietType)
	if err != nil {
		s.logger.Error().Err(err).Msg("recipe generation failed")
		writeError(w, http.StatusInternalServerError, errorMessage(err))
		return
	}
	if recipe.DietType == "" {
		recipe.DietType = req.DietType
	}
	if err := validation.Struct(recipe); err != nil {
		s.logger.Warn().Err(err).Msg("generated recipe rejected")
		writeError(w, http.StatusInternalServerError, "Generated recipe is invalid: "+err.Error())
		return
	}
	recipe.ID = s.newID()
	writeJSON(w, http.StatusOK, recipe)
}

type imageOCRRequest struct {
	ImageURL string `json:"imageUrl" validate:"required,url"`
}

func (s *Server) handleImageOCR(w http.ResponseWriter, r *http.Request) {
	var req imageOCRRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	if err := validation.Struct(req); err != nil {
		if fields, ok := validation.AsError(err); ok && fields.Has("imageUrl", "required") {
			writeError(w, http.StatusBadRequest, "Image URL is required")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	extracted, err := s.reader.ExtractRecipe(r.Context(), req.ImageURL)
	if err != nil {
		s.logger.Error().Err(err).Msg("recipe extraction failed")
		writeError(w, http.StatusInternalServerError, errorMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, extracted)
}

// errorMessage prefers the user-facing text of a structured failure.
func errorMessage(err error) string {
	if recErr, ok := domain.AsRecorderError(err); ok && recErr.Message != "" {
		return recErr.Message
	}
	return err.Error()
}
