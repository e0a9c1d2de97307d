// Package types is the wire vocabulary between the server and its clients.
//
// Every frame is a JSON text message {"type": string, "data": object}.
//
// Client -> Server
//
//	host:claim        {}
//	host:setPlayers   { requiredPlayers: 2..8 }
//	host:startGame    {}
//	host:resetToLobby {}
//	player:join       { name: string, playerKey?: string }
//	player:tap        {}
//
// Server -> Client
//
//	game:update        { requiredPlayers, joinedPlayers, state, durationMs,
//	                     startedAt: ms | null, players: Player[], hasHost }
//	game:reset         {}
//	host:claimed       { ok }
//	host:error         { message }
//	host:left          {}
//	player:joinResult  { ok, reason?, name?, playerKey? }
//	game:countdown     { seconds }
//	game:started       { startedAt, durationMs }
//	game:progress      { id, progress }
//	game:ended         { winner: Player | null, leaderboard: Player[] }
//
// Player is { id, name, progress, connected, key } where id is the player's
// current connection id, empty while disconnected.
//
// startedAt is set when a round goes running and stays set while the session
// is ended, so clients can show the finished round's timing. A new countdown
// or a reset clears it back to null.
//
// Point events for an operation are always sent before the game:update that
// follows it.
package types
