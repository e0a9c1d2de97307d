package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/DoyleJ11/tap-race-backend/internal/engine"
	"github.com/DoyleJ11/tap-race-backend/internal/lobby"
	"github.com/DoyleJ11/tap-race-backend/internal/types"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	writeTimeout   = 3 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4096
	outboxSize     = 256
)

type Options struct {
	// OriginPatterns is passed to websocket.Accept. Empty means same-origin
	// only.
	OriginPatterns []string
}

func Handler(lb *lobby.Lobby, log *zap.Logger, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		conn.SetReadLimit(maxMessageSize)

		connID := uuid.NewString()
		log := log.With(zap.String("conn_id", connID))

		out := make(chan types.ServerMessage, outboxSize)
		if !lb.Post(lobby.Connect{ConnID: connID, Outbox: out}) {
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}
		defer lb.Post(lobby.Disconnect{ConnID: connID})
		log.Info("connection opened", zap.String("remote", r.RemoteAddr))

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go writeLoop(writeCtx, conn, out, log)

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				// Treat clean close/going-away as normal:
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					log.Info("connection closed")
				default:
					log.Debug("connection lost", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				log.Debug("bad json from client", zap.Error(err))
				continue
			}

			cmd, err := toEngineCommand(connID, cm)
			if err != nil {
				log.Debug("ignoring client message", zap.String("type", cm.Type), zap.Error(err))
				continue
			}

			if !lb.Post(lobby.FromClient{Cmd: cmd}) {
				return
			}
		}
	}
}

// writeLoop drains the outbox onto the socket. A closed outbox means the
// lobby dropped this connection or shut down, so the socket goes with it.
func writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan types.ServerMessage, log *zap.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-out:
			if !ok {
				conn.Close(websocket.StatusPolicyViolation, "closed by server")
				return
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				log.Error("failed to marshal message", zap.String("type", msg.Type), zap.Error(err))
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = conn.Write(wctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				log.Debug("write failed", zap.Error(err))
				conn.CloseNow()
				return
			}

		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				log.Debug("ping failed", zap.Error(err))
				conn.CloseNow()
				return
			}
		}
	}
}

func toEngineCommand(connID string, m types.ClientMessage) (engine.Command, error) {
	switch m.Type {
	case types.InHostClaim:
		return engine.Command{Type: engine.CmdClaimHost, ConnID: connID}, nil

	case types.InHostSetPlayers:
		var req types.SetPlayersRequest
		if err := decode(m.Data, &req); err != nil {
			return engine.Command{}, err
		}
		return engine.Command{Type: engine.CmdSetPlayers, ConnID: connID, RequiredPlayers: req.RequiredPlayers}, nil

	case types.InHostStartGame:
		return engine.Command{Type: engine.CmdStartGame, ConnID: connID}, nil

	case types.InHostResetToLobby:
		return engine.Command{Type: engine.CmdResetToLobby, ConnID: connID}, nil

	case types.InPlayerJoin:
		// A join that cannot be decoded still reaches the engine with no name,
		// so the caller gets an InvalidName result.
		var req types.JoinRequest
		if err := decode(m.Data, &req); err != nil {
			return engine.Command{Type: engine.CmdJoin, ConnID: connID}, nil
		}
		return engine.Command{Type: engine.CmdJoin, ConnID: connID, Name: req.Name, PlayerKey: req.PlayerKey}, nil

	case types.InPlayerTap:
		return engine.Command{Type: engine.CmdTap, ConnID: connID}, nil

	default:
		return engine.Command{}, types.ErrUnknownType
	}
}

// decode leaves v at its zero value when data is absent; the engine rejects
// zero names and counts on its own.
func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", types.ErrBadPayload, err)
	}
	return nil
}
