package endpoint

import (
	"context"
	"encoding/xml"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"
	"github.com/sirupsen/logrus"

	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/pmh"
)

// Handler serves the provider endpoint over HTTP. Protocol errors go
// out as a structured error element in a 200 body; infrastructure
// errors become a 500 and are logged. A cancelled request produces no
// response at all.
type Handler struct {
	Dispatcher *Dispatcher
	Log        *logrus.Logger
	// Now allows tests to pin the clock; defaults to time.Now.
	Now func() time.Time
}

// NewHandler wraps a dispatcher with gzip compression and logging.
func NewHandler(d *Dispatcher, log *logrus.Logger) http.Handler {
	return gzhttp.GzipHandler(&Handler{Dispatcher: d, Log: log})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var (
		start = time.Now()
		now   = start
	)
	if h.Now != nil {
		now = h.Now()
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	req := pmh.Request{Verb: r.Form.Get("verb"), Args: r.Form}
	logger := h.Log.WithFields(logrus.Fields{
		"id":   uuid.NewString(),
		"verb": req.Verb,
	})
	payload, perr, err := h.Dispatcher.Handle(r.Context(), req, now)
	switch {
	case errors.Is(err, context.Canceled) || r.Context().Err() != nil:
		// Client went away; the catalog operation has been abandoned
		// and its connection released. No response.
		logger.WithField("duration", time.Since(start)).Info("cancelled")
		return
	case err != nil:
		// Never downgraded to a protocol error: this is a server
		// fault, not the client's.
		logger.WithError(err).Error("request failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	case perr != nil:
		logger.WithFields(logrus.Fields{
			"code":     perr.Code,
			"duration": time.Since(start),
		}).Info("protocol error")
		payload = &ErrorPayload{Code: string(perr.Code), Message: perr.Message}
	default:
		logger.WithField("duration", time.Since(start)).Info("ok")
	}
	resp := NewResponse(h.Dispatcher.Config.BaseURL, req.Verb, now, payload)
	body, err := xml.MarshalIndent(resp, "", "  ")
	if err != nil {
		logger.WithError(err).Error("marshal response")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.Write([]byte(xml.Header))
	w.Write(body)
}
