package websocket

type ConnectParams struct {
	// jwt for browsers, which cannot set headers on the upgrade request
	Token string `form:"token"`
}
