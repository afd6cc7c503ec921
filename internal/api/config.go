package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"carnav/pkg/config"
	"carnav/pkg/focus"
	"carnav/pkg/logging"
)

// ConfigHandler handles configuration API requests.
type ConfigHandler struct {
	cfgProv config.Provider
	appCfg  *config.Config
	engine  *focus.Engine
}

// NewConfigHandler creates a new ConfigHandler. Changes are applied to
// engine immediately; engine may be nil.
func NewConfigHandler(cfg config.Provider, engine *focus.Engine) *ConfigHandler {
	return &ConfigHandler{
		cfgProv: cfg,
		appCfg:  cfg.AppConfig(),
		engine:  engine,
	}
}

// HomeResponse is the fixed anchor.
type HomeResponse struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// ConfigResponse represents the config API response.
type ConfigResponse struct {
	FocusPolicy  string       `json:"focus_policy"`
	Policies     []string     `json:"policies"`
	Animate      bool         `json:"animate"`
	DebugOverlay bool         `json:"debug_overlay"`
	MapMode      string       `json:"map_mode"`
	GPSSource    string       `json:"gps_source"`
	LogLevel     string       `json:"log_level"`
	Home         HomeResponse `json:"home"`
}

// ConfigRequest represents the config API request for updates.
type ConfigRequest struct {
	FocusPolicy  string `json:"focus_policy,omitempty"`
	Animate      *bool  `json:"animate,omitempty"`       // Pointer to detect false vs missing
	DebugOverlay *bool  `json:"debug_overlay,omitempty"` // Pointer to detect false vs missing
	LogLevel     string `json:"log_level,omitempty"`
}

// HandleConfig is a unified handler for all config-related methods, facilitating CORS/OPTIONS.
func (h *ConfigHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.HandleGetConfig(w, r)
	case http.MethodPut, http.MethodPost:
		h.HandleSetConfig(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleGetConfig returns the current configuration.
func (h *ConfigHandler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.getConfigResponse(r.Context()))
}

func (h *ConfigHandler) getConfigResponse(ctx context.Context) ConfigResponse {
	return ConfigResponse{
		FocusPolicy:  h.cfgProv.FocusPolicy(ctx),
		Policies:     []string{config.PolicyAgeWindow, config.PolicySecondRecent},
		Animate:      h.cfgProv.Animate(ctx),
		DebugOverlay: h.cfgProv.DebugOverlay(ctx),
		MapMode:      h.appCfg.Map.Mode,
		GPSSource:    h.appCfg.GPS.Source,
		LogLevel:     logLevelName(),
		Home: HomeResponse{
			Name: h.appCfg.Home.Name,
			Lat:  h.appCfg.Home.Lat,
			Lon:  h.appCfg.Home.Lon,
		},
	}
}

// HandleSetConfig updates the configuration.
func (h *ConfigHandler) HandleSetConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	defer func() { _ = r.Body.Close() }()

	var req ConfigRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.LogLevel != "" && !validLogLevel(req.LogLevel) {
		http.Error(w, fmt.Sprintf("unknown log level %q", req.LogLevel), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if err := h.applyFocusUpdates(ctx, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.applyUIUpdates(ctx, &req)

	// Return updated config
	h.HandleGetConfig(w, r)
}

func (h *ConfigHandler) applyFocusUpdates(ctx context.Context, req *ConfigRequest) error {
	if req.FocusPolicy != "" {
		p, err := focus.NewPolicy(req.FocusPolicy, h.appCfg.Focus)
		if err != nil {
			return err
		}
		if err := h.cfgProv.SetFocusPolicy(ctx, req.FocusPolicy); err != nil {
			slog.Error("Failed to save state", "key", config.KeyFocusPolicy, "error", err)
			return fmt.Errorf("failed to save focus policy: %w", err)
		}
		if h.engine != nil {
			h.engine.SetPolicy(p)
		}
		slog.Info("Config updated", config.KeyFocusPolicy, req.FocusPolicy)
	}

	if req.Animate != nil {
		if err := h.cfgProv.SetAnimate(ctx, *req.Animate); err != nil {
			slog.Error("Failed to save state", "key", config.KeyFocusAnimate, "error", err)
		}
		if h.engine != nil {
			h.engine.SetAnimate(*req.Animate)
		}
		slog.Debug("Config updated", config.KeyFocusAnimate, *req.Animate)
	}
	return nil
}

func (h *ConfigHandler) applyUIUpdates(ctx context.Context, req *ConfigRequest) {
	if req.LogLevel != "" {
		logging.SetLevel(req.LogLevel)
		slog.Info("Log level changed", "level", logLevelName())
	}
	if req.DebugOverlay != nil {
		if err := h.cfgProv.SetDebugOverlay(ctx, *req.DebugOverlay); err != nil {
			slog.Error("Failed to save state", "key", config.KeyDebugOverlay, "error", err)
		} else {
			slog.Debug("Config updated", config.KeyDebugOverlay, *req.DebugOverlay)
		}
	}
}

func validLogLevel(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE", "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
		return true
	}
	return false
}

// logLevelName is the runtime level; not persisted, a restart reverts to the file.
func logLevelName() string {
	if logging.TraceEnabled() {
		return "TRACE"
	}
	return logging.Level().String()
}
