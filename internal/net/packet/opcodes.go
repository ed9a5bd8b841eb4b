package packet

// ProtocolVersion is sent in S_INIT and must be echoed by C_HELLO.
const ProtocolVersion = 1

// Client -> server opcodes.
const (
	C_OPCODE_HELLO       byte = 1
	C_OPCODE_GENERATE    byte = 2
	C_OPCODE_CANCEL      byte = 3
	C_OPCODE_SIMULATE    byte = 4
	C_OPCODE_LIST_WORLDS byte = 5
	C_OPCODE_OPEN_WORLD  byte = 6
	C_OPCODE_QUERY_POINT byte = 7
	C_OPCODE_LAYER_ROWS  byte = 8
	C_OPCODE_SAVE_WORLD  byte = 9
	C_OPCODE_QUIT        byte = 10
)

// Server -> client opcodes.
const (
	S_OPCODE_INIT         byte = 128
	S_OPCODE_HELLO        byte = 129
	S_OPCODE_JOB_ACCEPTED byte = 130
	S_OPCODE_PROGRESS     byte = 131
	S_OPCODE_JOB_DONE     byte = 132
	S_OPCODE_WORLD_LIST   byte = 133
	S_OPCODE_WORLD_INFO   byte = 134
	S_OPCODE_POINT_INFO   byte = 135
	S_OPCODE_LAYER_ROWS   byte = 136
	S_OPCODE_WORLD_SAVED  byte = 137
	S_OPCODE_ERROR        byte = 138
)

// Error codes carried by S_OPCODE_ERROR.
const (
	ErrCodeBadRequest   uint16 = 1
	ErrCodeNotFound     uint16 = 2
	ErrCodeBusy         uint16 = 3
	ErrCodeNotAllowed   uint16 = 4
	ErrCodeUnavailable  uint16 = 5
	ErrCodeInternal     uint16 = 6
	ErrCodeVersion      uint16 = 7
	ErrCodeNotOpen      uint16 = 8
	ErrCodeInapplicable uint16 = 9
)

// OpcodeName returns a readable opcode name for logs.
func OpcodeName(op byte) string {
	if n, ok := opcodeNames[op]; ok {
		return n
	}
	return "UNKNOWN"
}

var opcodeNames = map[byte]string{
	C_OPCODE_HELLO:        "C_HELLO",
	C_OPCODE_GENERATE:     "C_GENERATE",
	C_OPCODE_CANCEL:       "C_CANCEL",
	C_OPCODE_SIMULATE:     "C_SIMULATE",
	C_OPCODE_LIST_WORLDS:  "C_LIST_WORLDS",
	C_OPCODE_OPEN_WORLD:   "C_OPEN_WORLD",
	C_OPCODE_QUERY_POINT:  "C_QUERY_POINT",
	C_OPCODE_LAYER_ROWS:   "C_LAYER_ROWS",
	C_OPCODE_SAVE_WORLD:   "C_SAVE_WORLD",
	C_OPCODE_QUIT:         "C_QUIT",
	S_OPCODE_INIT:         "S_INIT",
	S_OPCODE_HELLO:        "S_HELLO",
	S_OPCODE_JOB_ACCEPTED: "S_JOB_ACCEPTED",
	S_OPCODE_PROGRESS:     "S_PROGRESS",
	S_OPCODE_JOB_DONE:     "S_JOB_DONE",
	S_OPCODE_WORLD_LIST:   "S_WORLD_LIST",
	S_OPCODE_WORLD_INFO:   "S_WORLD_INFO",
	S_OPCODE_POINT_INFO:   "S_POINT_INFO",
	S_OPCODE_LAYER_ROWS:   "S_LAYER_ROWS",
	S_OPCODE_WORLD_SAVED:  "S_WORLD_SAVED",
	S_OPCODE_ERROR:        "S_ERROR",
}
