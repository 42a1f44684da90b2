package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/S3MTFoundationv0/s3mt.xyz/internal/chain"
	"github.com/S3MTFoundationv0/s3mt.xyz/internal/model"
	"github.com/S3MTFoundationv0/s3mt.xyz/internal/program"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

type historyResponse struct {
	Records      []model.PurchaseRecord `json:"records"`
	IsLoading    bool                   `json:"isLoading"`
	ErrorMessage string                 `json:"errorMessage"`
}

type configResponse struct {
	ProgramID      string              `json:"programId"`
	PresaleEndDate *time.Time          `json:"presaleEndDate,omitempty"`
	Config         model.PresaleConfig `json:"config"`
}

type refreshResponse struct {
	Status    string `json:"status"`
	IsLoading bool   `json:"isLoading"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, historyResponse{
		Records:      s.history.Records(),
		IsLoading:    s.history.IsLoading(),
		ErrorMessage: s.history.ErrorMessage(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.history.Stats())
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	address, err := program.ConfigAddress(s.opts.ProgramID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to derive config address")
		return
	}

	data, err := s.accounts.AccountData(r.Context(), address)
	if err != nil {
		if errors.Is(err, chain.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "presale config account not found")
			return
		}
		log.Error().Err(err).Str("component", "api").Str("address", address.String()).Msg("failed to read config account")
		writeError(w, http.StatusBadGateway, "failed to read config account")
		return
	}

	acc, err := program.DecodeConfigAccount(data)
	if err != nil {
		log.Warn().Err(err).Str("component", "api").Msg("failed to decode config account")
		writeError(w, http.StatusBadGateway, "failed to decode config account")
		return
	}

	resp := configResponse{
		ProgramID: s.opts.ProgramID.String(),
		Config: model.PresaleConfig{
			Address:  address.String(),
			Admin:    acc.Admin.String(),
			Treasury: acc.Treasury.String(),
			USDCMint: acc.USDCMint.String(),
			Paused:   acc.Paused,
		},
	}
	if !s.opts.PresaleEndDate.IsZero() {
		end := s.opts.PresaleEndDate
		resp.PresaleEndDate = &end
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh starts a fetch cycle detached from the request. A cycle that
// is already running absorbs the request.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	go s.history.Fetch(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusAccepted, refreshResponse{Status: "accepted", IsLoading: s.history.IsLoading()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Str("component", "api").Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
