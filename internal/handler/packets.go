package handler

import (
	"github.com/worldforge/server/internal/catalog"
	"github.com/worldforge/server/internal/jobs"
	"github.com/worldforge/server/internal/net"
	"github.com/worldforge/server/internal/net/packet"
	"github.com/worldforge/server/internal/world"
)

// World list flags.
const (
	WorldFlagStored byte = 1 << 0
	WorldFlagDirty  byte = 1 << 1
)

// BuildInit builds S_INIT, written to every client on connect.
func BuildInit(serverName string, startTime int64) []byte {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_INIT)
	w.WriteD(packet.ProtocolVersion)
	w.WriteQ(startTime)
	w.WriteS(serverName)
	return w.Bytes()
}

// SendError sends S_ERROR with a code and a human-readable reason.
func SendError(sess *net.Session, code uint16, msg string) {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_ERROR)
	w.WriteH(code)
	w.WriteS(msg)
	sess.Send(w.Bytes())
}

func sendJobAccepted(sess *net.Session, id string, kind jobs.Kind, worldName string) {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_JOB_ACCEPTED)
	w.WriteS(id)
	w.WriteS(string(kind))
	w.WriteS(worldName)
	sess.Send(w.Bytes())
}

// SendProgress sends S_PROGRESS for one job event. Step is -1 when the event
// does not carry a simulation step.
func SendProgress(sess *net.Session, e jobs.Event) {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_PROGRESS)
	w.WriteS(e.JobID)
	w.WriteS(string(e.Stage))
	w.WriteS(e.Message)
	if e.HasStep {
		w.WriteD(int32(e.Step))
	} else {
		w.WriteD(-1)
	}
	sess.Send(w.Bytes())
}

// SendJobDone sends S_JOB_DONE.
func SendJobDone(sess *net.Session, e jobs.Event) {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_JOB_DONE)
	w.WriteS(e.JobID)
	w.WriteS(string(e.Kind))
	w.WriteS(e.WorldName)
	w.WriteS(e.Outcome.String())
	if e.Err != nil {
		w.WriteS(e.Err.Error())
	} else {
		w.WriteS("")
	}
	sess.Send(w.Bytes())
}

// SendWorldSaved sends S_WORLD_SAVED.
func SendWorldSaved(sess *net.Session, name string) {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_WORLD_SAVED)
	w.WriteS(name)
	sess.Send(w.Bytes())
}

func sendWorldList(sess *net.Session, list []catalog.Summary) {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_WORLD_LIST)
	w.WriteH(uint16(len(list)))
	for _, s := range list {
		w.WriteS(s.Name)
		w.WriteQ(s.Seed)
		w.WriteH(uint16(s.Width))
		w.WriteH(uint16(s.Height))
		w.WriteS(s.Step)
		var flags byte
		if s.Stored {
			flags |= WorldFlagStored
		}
		if s.Dirty {
			flags |= WorldFlagDirty
		}
		w.WriteC(flags)
		writeNames(w, s.Layers)
	}
	sess.Send(w.Bytes())
}

// SendWorldInfo sends S_WORLD_INFO describing w.
func SendWorldInfo(sess *net.Session, wd *world.World) {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_WORLD_INFO)
	w.WriteS(wd.Name)
	w.WriteQ(wd.Seed)
	w.WriteH(uint16(wd.Width()))
	w.WriteH(uint16(wd.Height()))
	w.WriteC(byte(wd.Params.NumPlates))
	w.WriteF(wd.Params.OceanLevel)
	w.WriteS(wd.Params.Step.Name)
	writeNames(w, wd.Layers())
	writeThresholds(w, wd.ElevationThresholds())
	sess.Send(w.Bytes())
}

func sendPointInfo(sess *net.Session, ro world.Readout) {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_POINT_INFO)
	w.WriteH(uint16(ro.X))
	w.WriteH(uint16(ro.Y))
	writeNames(w, ro.Lines())
	sess.Send(w.Bytes())
}

func writeNames(w *packet.Writer, names []string) {
	w.WriteC(byte(len(names)))
	for _, n := range names {
		w.WriteS(n)
	}
}

func writeThresholds(w *packet.Writer, ths []world.Threshold) {
	w.WriteC(byte(len(ths)))
	for _, th := range ths {
		w.WriteS(th.Name)
		w.WriteF(th.Value)
		w.WriteBool(th.Open)
	}
}
