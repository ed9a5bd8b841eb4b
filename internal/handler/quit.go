package handler

import (
	"go.uber.org/zap"

	"github.com/worldforge/server/internal/net"
	"github.com/worldforge/server/internal/net/packet"
)

// HandleQuit processes C_QUIT. The session closes after pending output is
// written; InputSystem cancels its jobs on disconnect.
func HandleQuit(sess *net.Session, _ *packet.Reader, deps *Deps) {
	deps.Log.Info("client quit", zap.Uint64("session", sess.ID), zap.String("client", sess.ClientName))
	sess.CloseAfterFlush()
}
