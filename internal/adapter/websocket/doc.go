// Package websocket is the relay's transport: it upgrades HTTP requests with
// gorilla/websocket, registers each connection with the relay and pumps its
// frames into the broadcast engine.
package websocket
