package handler

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/worldforge/server/internal/net"
	"github.com/worldforge/server/internal/net/packet"
)

// HandleHello processes C_HELLO: [D version][S client name].
// A matching version answers S_HELLO and moves the session to Ready.
func HandleHello(sess *net.Session, r *packet.Reader, deps *Deps) {
	version := r.ReadD()
	client := r.ReadS()
	if r.Err() != nil {
		SendError(sess, packet.ErrCodeBadRequest, "malformed hello")
		return
	}
	if version != packet.ProtocolVersion {
		deps.Log.Info("protocol mismatch",
			zap.Uint64("session", sess.ID), zap.Int32("client_version", version))
		SendError(sess, packet.ErrCodeVersion,
			fmt.Sprintf("protocol version %d not supported, server speaks %d", version, packet.ProtocolVersion))
		sess.CloseAfterFlush()
		return
	}
	sess.ClientName = client
	deps.Log.Info("client ready", zap.Uint64("session", sess.ID), zap.String("client", client))

	cfg := deps.Config
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_HELLO)
	w.WriteS(cfg.Server.Name)
	w.WriteD(packet.ProtocolVersion)
	w.WriteH(uint16(cfg.Generation.MaxWidth))
	w.WriteH(uint16(cfg.Generation.MaxHeight))
	w.WriteS(cfg.Generation.DefaultPreset)
	writeNames(w, deps.Presets.Names())
	writeNames(w, deps.Sims.Names())
	sess.Send(w.Bytes())
	sess.SetState(packet.StateReady)
}
