package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/gorilla/mux"

	"stickerbridge/internal/gifcache"
	"stickerbridge/internal/guardian"
	"stickerbridge/internal/logging"
	"stickerbridge/internal/metrics"
	"stickerbridge/internal/sticker"
)

// DeliveryFailedMessage is shown to users when an animated sticker could not
// be produced.
const DeliveryFailedMessage = "could not deliver animated sticker, try again later"

const maxResolveBody = 16 << 10

// ResolveRequest is the body of POST /api/resolve.
type ResolveRequest struct {
	URL  string `json:"url"`
	Kind string `json:"kind,omitempty"`
}

// ResolveResponse is the result of POST /api/resolve.
type ResolveResponse struct {
	Outcome string `json:"outcome"`
	URL     string `json:"url"`
	Key     string `json:"key,omitempty"`
	Handle  string `json:"handle,omitempty"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Cache    *gifcache.Stats `json:"cache,omitempty"`
	Guardian *GuardianStatus `json:"guardian,omitempty"`
	Latency  []metrics.Stats `json:"latency,omitempty"`
}

// GuardianStatus describes the cache guardian.
type GuardianStatus struct {
	State       string           `json:"state"`
	BudgetBytes int64            `json:"budget_bytes"`
	Interval    string           `json:"interval"`
	LastSweep   *guardian.Report `json:"last_sweep,omitempty"`
}

func (s *Server) handleGIF(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	key, ok := sticker.KeyFromFileName(name)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid sticker name")
		return
	}
	file, err := os.Open(s.deps.Cache.PathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.writeError(w, http.StatusNotFound, "sticker not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to open sticker")
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
		s.writeError(w, http.StatusNotFound, "sticker not found")
		return
	}
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	http.ServeContent(w, r, name, info.ModTime(), file)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxResolveBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	asset, err := assetFromRequest(req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.deps.Resolver.Resolve(r.Context(), asset)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logging.WarnWithContext(r.Context(), s.logger, "sticker delivery failed", "sticker_delivery_failed",
			logging.String("source_url", asset.URL),
			logging.String(logging.FieldStickerKind, asset.Kind.String()),
			logging.Error(err),
			logging.String(logging.FieldImpact, "user was told to try again later"),
		)
		s.writeError(w, http.StatusBadGateway, DeliveryFailedMessage)
		return
	}
	s.writeJSON(w, http.StatusOK, ResolveResponse{
		Outcome: string(res.Outcome),
		URL:     res.URL,
		Key:     res.Key.String(),
		Handle:  res.Handle.Name(),
	})
}

func assetFromRequest(req ResolveRequest) (sticker.Asset, error) {
	raw := strings.TrimSpace(req.URL)
	parsed, err := url.Parse(raw)
	if raw == "" || err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return sticker.Asset{}, errors.New("url must be an absolute http(s) URL")
	}
	kind := sticker.KindFromExtension(parsed.Path)
	if strings.TrimSpace(req.Kind) != "" {
		kind, err = sticker.ParseKind(req.Kind)
		if err != nil {
			return sticker.Asset{}, err
		}
	}
	return sticker.Asset{URL: raw, Kind: kind}, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var resp StatusResponse
	if s.deps.Cache != nil {
		stats, err := s.deps.Cache.Stats(r.Context())
		if err != nil {
			s.logger.Debug("cache stats unavailable", logging.Error(err))
		} else {
			resp.Cache = &stats
		}
	}
	if g := s.deps.Guardian; g != nil {
		status := &GuardianStatus{
			State:       g.State().String(),
			BudgetBytes: g.Budget(),
			Interval:    g.Interval().String(),
		}
		if last, ok := g.LastReport(); ok {
			status.LastSweep = &last
		}
		resp.Guardian = status
	}
	resp.Latency = s.deps.Latency.Snapshot()
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
