package httpapi

import "net/http"

func registerSystemRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("GET /health", handler.Health)
}

func registerPublicRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("GET /api/sweep/status", handler.SweepStatus)

	mux.HandleFunc("GET /api/seasons/status", handler.SeasonsStatus)
	mux.HandleFunc("GET /api/leagues", handler.ListLeagues)
	mux.HandleFunc("GET /api/leagues/{leagueId}/table", handler.LeagueTable)
	mux.HandleFunc("GET /api/leagues/{leagueId}/fixtures", handler.LeagueFixtures)
	mux.HandleFunc("GET /api/leagues/{leagueId}/results", handler.LeagueResults)

	mux.HandleFunc("GET /api/squads/leaderboard", handler.SquadLeaderboard)
	mux.HandleFunc("GET /api/squads/search", handler.SearchSquads)
	mux.HandleFunc("GET /api/squads/{id}/profile", handler.SquadProfile)
}

func registerUserRoutes(mux *http.ServeMux, handler *Handler, auth AuthConfig) {
	user := func(h http.HandlerFunc) http.Handler {
		return RequireUser(auth, h)
	}

	mux.Handle("POST /api/players/create", user(handler.CreatePlayer))
	mux.Handle("GET /api/players/{id}", user(handler.GetPlayer))
	mux.Handle("POST /api/players/{id}/complete", user(handler.CompletePlayer))

	mux.Handle("POST /api/squads/create", user(handler.CreateSquad))
	mux.Handle("GET /api/squads/mine", user(handler.MySquad))
	mux.Handle("POST /api/squads/leave", user(handler.LeaveSquad))
	mux.Handle("POST /api/squads/{id}/join", user(handler.JoinSquad))
	mux.Handle("POST /api/squads/{id}/request-join", user(handler.RequestJoinSquad))
	mux.Handle("GET /api/squads/{id}/requests", user(handler.SquadRequests))
	mux.Handle("POST /api/squads/{id}/upgrade", user(handler.UpgradeSquadFacility))
	mux.Handle("POST /api/squads/{id}/set-role", user(handler.SetSquadMemberRole))
	mux.Handle("POST /api/squads/requests/{id}/resolve", user(handler.ResolveSquadRequest))

	mux.Handle("POST /api/groups/create", user(handler.CreateGroup))
	mux.Handle("POST /api/groups/join", user(handler.JoinGroup))
	mux.Handle("GET /api/groups/mine", user(handler.MyGroups))
	mux.Handle("GET /api/groups/{id}/leaderboard", user(handler.GroupLeaderboard))
	mux.Handle("POST /api/groups/{id}/leave", user(handler.LeaveGroup))

	mux.Handle("GET /api/leaderboard/global", user(handler.GlobalLeaderboard))
}

func registerIngestionRoutes(mux *http.ServeMux, handler *Handler, auth AuthConfig) {
	mux.Handle("POST /api/players/{id}/progress", RequireHMAC(auth, http.HandlerFunc(handler.PushPlayerProgress)))
}

func registerCronRoutes(mux *http.ServeMux, handler *Handler, auth AuthConfig) {
	mux.Handle("POST /api/sweep/run", RequireCron(auth, http.HandlerFunc(handler.RunSweep)))
	mux.Handle("POST /api/seasons/simulate-day", RequireCron(auth, http.HandlerFunc(handler.SimulateDay)))
	mux.Handle("POST /api/seasons/reset-sync", RequireCron(auth, http.HandlerFunc(handler.ResetSyncSeasons)))
}
