// Package presence keeps users' connect state in step with their open
// websocket connections.
//
// A socket is accepted only after the auth middleware has verified the access
// cookie, so an expired session is refused with "Session expired" before the
// upgrade. The first socket of a user marks them ONLINE and the last one to
// close marks them OFFLINE. Each transition is stored, evicts the cached user
// projection and is sent to every open socket as
//
//	{"event":"user-status:<id>","data":{"connectState":"ONLINE"}}
//
//	hub := presence.NewHub(store, sessions, origins, logger, metrics)
//	router.Handle("/auth/presence", authMW.Handler(hub.Handler()))
package presence
