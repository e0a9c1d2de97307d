package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/DoyleJ11/tap-race-backend/internal/lobby"
	"github.com/DoyleJ11/tap-race-backend/internal/types"
	"go.uber.org/zap"
)

const stateTimeout = 2 * time.Second

// State serves the same snapshot a websocket client gets on connect.
func State(lb *lobby.Lobby, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), stateTimeout)
		defer cancel()

		view, err := lb.State(ctx)
		if err != nil {
			log.Warn("state unavailable", zap.Error(err))
			http.Error(w, "state unavailable", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(types.NewGameUpdate(view.Session).Data)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
