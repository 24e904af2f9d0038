package api

import (
	"context"
	"io"
	"time"

	"DocQA/backend/go/internal/rag_service/console"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// wsWriter sends every Write as one text message.
type wsWriter struct {
	conn *websocket.Conn
}

func (w wsWriter) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// console runs a console session over a websocket: each text message is
// one command line and the output comes back as text messages.
func (h *Handler) console(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	pr, pw := io.Pipe()
	go func() {
		defer cancel()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				_ = pw.Close()
				return
			}
			if _, err := pw.Write(append(msg, '\n')); err != nil {
				return
			}
		}
	}()

	log := h.log.With("remote", c.ClientIP())
	log.Info("Console session opened")
	if err := console.Run(ctx, pr, wsWriter{conn: conn}, h.svc, console.Options{Log: log}); err != nil && ctx.Err() == nil {
		log.WithError(err).Warn("Console session ended with error")
	}
	_ = pr.Close()

	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	log.Info("Console session closed")
}
