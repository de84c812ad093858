package types

// Client -> Server (JSON over /ws)
//
// create-game:
//   name: string
//
// join-game:
//   joinCode: string (5 chars, unambiguous alphabet)
//   name: string
//
// rejoin:
//   sessionToken: string (minted at create/join; sole reconnection credential)
//
// propose-team:
//   teamPlayerIds: string[]
//   actionId: string (optional idempotency key)
//
// submit-vote:
//   vote: "approve" | "reject"
//   actionId: string (optional)
//
// submit-quest-action:
//   action: "success" | "fail"
//   actionId: string (optional)
//
// advance-phase (host only):
//   actionId: string (optional)
//
// heartbeat: {}
//
// Server -> Client
//
// connection-acknowledged:
//   connectionId: string
//   sessionToken / joinCode / gameId / playerId: set once hydrated
//
// lobby-state | game-state:
//   state: public projection (never contains roles)
//   private: viewer projection (adds role; spies also get knownSpies)
//
// team-proposed:
//   leaderId: string
//   teamPlayerIds: string[]
//
// vote-submitted | quest-submitted:
//   playerId: string (identity only; never the choice)
//
// phase-changed:
//   phase: "lobby" | "role_assignment" | "team_proposal" | "voting" | "quest" | "endgame"
//
// game-ended:
//   winner: "resistance" | "spy"
//
// player-joined | player-left | player-reconnected:
//   playerId: string
//
// error:
//   error: string (reported only to the initiating connection)
