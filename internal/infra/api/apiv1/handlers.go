package apiv1

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"mediaforge/internal/domain"
	"mediaforge/internal/domain/model"
	"mediaforge/internal/infra/api"
	"mediaforge/internal/infra/auth"
	"mediaforge/internal/infra/logging"
	"mediaforge/internal/usecase"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

type generateBody struct {
	UserID    string `json:"userId"`
	Prompt    string `json:"prompt"`
	StyleID   string `json:"styleId"`
	StyleKind string `json:"styleKind,omitempty"`
	BrandID   string `json:"brandId,omitempty"`
	StyleName string `json:"styleName,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

type generateResponse struct {
	Success          bool   `json:"success"`
	IllustrationID   string `json:"illustrationId"`
	Status           string `json:"status"`
	Message          string `json:"message"`
	CreditsUsed      int    `json:"creditsUsed"`
	RemainingCredits int    `json:"remainingCredits"`
}

type trainBody struct {
	UserID         string             `json:"userId"`
	BrandName      string             `json:"brandName"`
	BrandColors    []model.BrandColor `json:"brandColors,omitempty"`
	BrandStyle     string             `json:"brandStyle,omitempty"`
	TrainingImages []string           `json:"trainingImages"`
}

type trainResponse struct {
	Success       bool   `json:"success"`
	BrandID       string `json:"brandId"`
	Status        string `json:"status"`
	EstimatedTime int    `json:"estimatedTime"`
	TrainingJobID string `json:"trainingJobId,omitempty"`
	Message       string `json:"message"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body generateBody
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	id, _ := auth.IdentityFrom(r.Context())
	res, err := s.dispatch.Generate(r.Context(), id, usecase.GenerateRequest{
		UserID:    body.UserID,
		Prompt:    body.Prompt,
		StyleID:   body.StyleID,
		StyleKind: body.StyleKind,
		BrandID:   body.BrandID,
		StyleName: body.StyleName,
		Width:     body.Width,
		Height:    body.Height,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusAccepted, generateResponse{
		Success:          true,
		IllustrationID:   res.IllustrationID,
		Status:           string(res.Status),
		Message:          "Generation job queued successfully",
		CreditsUsed:      res.CreditsUsed,
		RemainingCredits: res.Remaining,
	})
}

func (s *Server) handleTrainBrand(w http.ResponseWriter, r *http.Request) {
	var body trainBody
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	id, _ := auth.IdentityFrom(r.Context())
	res, err := s.dispatch.TrainBrand(r.Context(), id, usecase.TrainRequest{
		UserID:         body.UserID,
		BrandName:      body.BrandName,
		BrandColors:    body.BrandColors,
		BrandStyle:     body.BrandStyle,
		TrainingImages: body.TrainingImages,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusAccepted, trainResponse{
		Success:       true,
		BrandID:       res.BrandID,
		Status:        string(res.Status),
		EstimatedTime: res.EstimatedTime,
		TrainingJobID: res.TrainingJobID,
		Message:       "Brand training job queued successfully",
	})
}

func (s *Server) handleGetIllustration(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	il, err := s.dispatch.GetIllustration(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, il)
}

func (s *Server) handleGetBrand(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	b, err := s.dispatch.GetBrand(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, b)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Invalid("", "request body is required")
		}
		return domain.Invalid("", "request body must be valid JSON")
	}
	return nil
}

// writeError maps err to a status and logs server-side failures.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := api.WriteError(w, err)
	l := logging.With(r.Context(), s.log)
	if status >= http.StatusInternalServerError {
		l.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		return
	}
	l.Debug().Err(err).Int("status", status).Str("path", r.URL.Path).Msg("request rejected")
}
