package exchange

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// sleepFeed — пауза перед повторным подключением фида.
func sleepFeed(ctx context.Context) bool {
	t := time.NewTimer(time.Second)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// keepAlive шлёт ping-кадры, пока соединение живо: иначе биржа рвёт
// сокет по таймауту простоя. Останавливается по stop или контексту.
func keepAlive(ctx context.Context, conn *websocket.Conn, every time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-t.C:
			_ = conn.WriteMessage(websocket.PingMessage, nil)
		}
	}
}
