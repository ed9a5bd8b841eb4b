package handler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/worldforge/server/internal/net"
	"github.com/worldforge/server/internal/net/packet"
	"github.com/worldforge/server/internal/persist"
	"github.com/worldforge/server/internal/world"
)

// HandleListWorlds processes C_LIST_WORLDS (no body).
func HandleListWorlds(sess *net.Session, _ *packet.Reader, deps *Deps) {
	ctx, cancel := context.WithTimeout(context.Background(), catalogTimeout)
	defer cancel()
	list, err := deps.Catalog.List(ctx)
	if err != nil {
		deps.Log.Error("list worlds failed", zap.Error(err))
		SendError(sess, packet.ErrCodeInternal, "world list unavailable")
		return
	}
	sendWorldList(sess, list)
}

// HandleOpenWorld processes C_OPEN_WORLD: [S name]. The world becomes the
// session's open world and S_WORLD_INFO describes it.
func HandleOpenWorld(sess *net.Session, r *packet.Reader, deps *Deps) {
	name := r.ReadS()
	if r.Err() != nil || name == "" {
		SendError(sess, packet.ErrCodeBadRequest, "world name required")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), catalogTimeout)
	defer cancel()
	w, err := deps.Catalog.Get(ctx, name)
	if err != nil {
		sendCatalogError(sess, err, deps)
		return
	}
	sess.OpenWorld = w.Name
	SendWorldInfo(sess, w)
}

// openWorld resolves the session's open world, answering S_ERROR itself
// when there is none.
func openWorld(sess *net.Session, deps *Deps) *world.World {
	if sess.OpenWorld == "" {
		SendError(sess, packet.ErrCodeNotOpen, "no world open")
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), catalogTimeout)
	defer cancel()
	w, err := deps.Catalog.Get(ctx, sess.OpenWorld)
	if err != nil {
		sendCatalogError(sess, err, deps)
		return nil
	}
	return w
}

// HandleQueryPoint processes C_QUERY_POINT: [H x][H y].
func HandleQueryPoint(sess *net.Session, r *packet.Reader, deps *Deps) {
	x := int(r.ReadH())
	y := int(r.ReadH())
	if r.Err() != nil {
		SendError(sess, packet.ErrCodeBadRequest, "malformed point query")
		return
	}
	w := openWorld(sess, deps)
	if w == nil {
		return
	}
	ro, err := w.ReadoutAt(x, y)
	if err != nil {
		SendError(sess, packet.ErrCodeBadRequest, err.Error())
		return
	}
	sendPointInfo(sess, ro)
}

// layerRowsHeader is the fixed part of S_LAYER_ROWS besides the layer name.
const layerRowsHeader = 1 + 2 + 2 + 1 + 1

// HandleLayerRows processes C_LAYER_ROWS: [S layer][H from][H to].
// Answers S_LAYER_ROWS: [S layer][H from][H to][C kind][cells, LE row-major].
func HandleLayerRows(sess *net.Session, r *packet.Reader, deps *Deps) {
	layer := r.ReadS()
	from := int(r.ReadH())
	to := int(r.ReadH())
	if r.Err() != nil {
		SendError(sess, packet.ErrCodeBadRequest, "malformed layer request")
		return
	}
	w := openWorld(sess, deps)
	if w == nil {
		return
	}
	kind, cells, err := persist.EncodeRows(w, layer, from, to)
	if err != nil {
		SendError(sess, packet.ErrCodeBadRequest, err.Error())
		return
	}
	if layerRowsHeader+len(layer)+len(cells) > net.MaxPayload {
		SendError(sess, packet.ErrCodeBadRequest,
			fmt.Sprintf("%d rows of %s do not fit one packet, request fewer", to-from, layer))
		return
	}

	pw := packet.NewWriterWithOpcode(packet.S_OPCODE_LAYER_ROWS)
	pw.WriteS(layer)
	pw.WriteH(uint16(from))
	pw.WriteH(uint16(to))
	pw.WriteC(byte(kind))
	pw.WriteBytes(cells)
	sess.Send(pw.Bytes())
}

// HandleSaveWorld processes C_SAVE_WORLD: [S name, empty = open world].
// S_WORLD_SAVED or S_ERROR follows once the persistence system ran.
func HandleSaveWorld(sess *net.Session, r *packet.Reader, deps *Deps) {
	name := r.ReadS()
	if name == "" {
		name = sess.OpenWorld
	}
	if name == "" {
		SendError(sess, packet.ErrCodeNotOpen, "no world open")
		return
	}
	if _, ok := deps.Catalog.Peek(name); !ok {
		SendError(sess, packet.ErrCodeNotFound, fmt.Sprintf("world %q is not loaded", name))
		return
	}
	if err := deps.Saves.RequestSave(name, sess.ID); err != nil {
		SendError(sess, packet.ErrCodeUnavailable, err.Error())
	}
}
