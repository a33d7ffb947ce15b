package api

import (
	"io"
	"kvpaste/cfg"
	"kvpaste/pkg/domain"
	"kvpaste/svc/lim"
	"kvpaste/svc/svc"
	"kvpaste/svc/util"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
)

// NotFoundBody is served with status 200 for every failed lookup.
const NotFoundBody = "Value not found"

type Hdl struct {
	paste *svc.Paste
	cfg   *cfg.Cfg
	lim   *lim.Limiter
}

func (h *Hdl) Upload(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	if r.ContentLength > h.cfg.MaxPasteSize {
		log.Warn().Int64("content_length", r.ContentLength).Msg("Content-Length exceeds maximum")
		writeErr(w, domain.ErrPasteTooLarge, requestID)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxPasteSize)
	content, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warn().Int64("limit", tooLarge.Limit).Msg("body exceeds maximum size")
			writeErr(w, domain.ErrPasteTooLarge, requestID)
			return
		}
		log.Warn().Err(err).Msg("failed to read body")
		writeErr(w, domain.ErrBodyRead, requestID)
		return
	}
	paste, err := h.paste.Upload(r.Context(), content)
	if err != nil {
		log.Error().Err(err).Msg("failed to store paste")
		if errors.Is(err, domain.ErrPasteTooLarge) || errors.Is(err, domain.ErrStore) {
			writeErr(w, err, requestID)
			return
		}
		writeErr(w, domain.ErrInternalServer, requestID)
		return
	}
	log.Info().
		Str("paste_id", paste.ID.String()).
		Int("size", paste.Size).
		Bool("stored", paste.Stored).
		Str("preview", util.RedactPasteContent(content)).
		Msg("paste created")
	writeText(w, http.StatusOK, paste.URL)
}

func (h *Hdl) Retrieve(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	id, err := domain.ParsePasteID(chi.URLParam(r, "id"))
	if err != nil {
		log.Warn().Err(err).Msg("invalid paste id")
		writeErr(w, err, requestID)
		return
	}
	paste, err := h.paste.Retrieve(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrStore) {
			h.lim.RecordError()
			log.Error().Err(err).Str("paste_id", id.String()).Msg("lookup failed")
		} else {
			log.Info().Err(err).Str("paste_id", id.String()).Msg("lookup missed")
		}
		writeText(w, http.StatusOK, NotFoundBody)
		return
	}
	log.Info().
		Str("paste_id", id.String()).
		Int("size", paste.Size).
		Msg("paste retrieved")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(paste.Content)
}
