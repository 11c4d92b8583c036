package ws

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// Handler subscribes the connection to the call named by the :call_id route
// parameter.
func Handler(hub *Hub) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		callID := c.Params("call_id")
		if callID == "" {
			_ = c.Close()
			return
		}

		client := &Client{
			hub:    hub,
			conn:   c,
			callID: callID,
			send:   make(chan []byte, 256),
		}

		if !hub.Register(client) {
			_ = c.Close()
			return
		}

		go client.WritePump()
		client.ReadPump()
	})
}

func UpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}
