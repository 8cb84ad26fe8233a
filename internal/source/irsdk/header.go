// Package irsdk reads live telemetry from the iRacing shared-memory file.
//
// The mapping starts with a fixed header, followed by an array of variable
// headers and a small ring of variable buffers. The simulator rotates
// through the buffers; the one with the highest tick count is the newest.
package irsdk

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	headerSize    = 112
	varHeaderSize = 144
	maxBufs       = 4
	maxNameLen    = 32
	maxDescLen    = 64
	maxUnitLen    = 32

	statusConnected = 1
)

var errShortMemory = errors.New("irsdk: shared memory too small")

// VarType is the storage type of one telemetry variable.
type VarType int32

const (
	TypeChar VarType = iota
	TypeBool
	TypeInt
	TypeBitField
	TypeFloat
	TypeDouble
)

func (t VarType) size() int {
	switch t {
	case TypeChar, TypeBool:
		return 1
	case TypeInt, TypeBitField, TypeFloat:
		return 4
	case TypeDouble:
		return 8
	}
	return 0
}

type varBuf struct {
	TickCount int32
	BufOffset int32
}

// Header mirrors the fixed-size block at the start of the mapping.
type Header struct {
	Version           int32
	Status            int32
	TickRate          int32
	SessionInfoUpdate int32
	SessionInfoLen    int32
	SessionInfoOffset int32
	NumVars           int32
	VarHeaderOffset   int32
	NumBuf            int32
	BufLen            int32
	bufs              [maxBufs]varBuf
}

func (h Header) Connected() bool {
	return h.Status&statusConnected != 0
}

// latest returns the buffer with the highest tick count.
func (h Header) latest() varBuf {
	n := int(h.NumBuf)
	if n < 1 || n > maxBufs {
		n = maxBufs
	}
	best := h.bufs[0]
	for _, b := range h.bufs[1:n] {
		if b.TickCount > best.TickCount {
			best = b
		}
	}
	return best
}

func readInt(mem []byte, off int) int32 {
	return int32(binary.LittleEndian.Uint32(mem[off:]))
}

func parseHeader(mem []byte) (Header, error) {
	if len(mem) < headerSize {
		return Header{}, errShortMemory
	}
	h := Header{
		Version:           readInt(mem, 0),
		Status:            readInt(mem, 4),
		TickRate:          readInt(mem, 8),
		SessionInfoUpdate: readInt(mem, 12),
		SessionInfoLen:    readInt(mem, 16),
		SessionInfoOffset: readInt(mem, 20),
		NumVars:           readInt(mem, 24),
		VarHeaderOffset:   readInt(mem, 28),
		NumBuf:            readInt(mem, 32),
		BufLen:            readInt(mem, 36),
	}
	// Two padding ints precede the buffer descriptors.
	for i := range h.bufs {
		off := 48 + i*16
		h.bufs[i] = varBuf{TickCount: readInt(mem, off), BufOffset: readInt(mem, off+4)}
	}
	return h, nil
}

// VarHeader describes one variable inside a variable buffer.
type VarHeader struct {
	Type        VarType
	Offset      int
	Count       int
	CountAsTime bool
	Name        string
	Desc        string
	Unit        string
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func parseVarHeaders(mem []byte, h Header) (map[string]VarHeader, error) {
	start := int(h.VarHeaderOffset)
	end := start + int(h.NumVars)*varHeaderSize
	if h.NumVars < 0 || start < 0 || end > len(mem) {
		return nil, fmt.Errorf("%w: %d variable headers at %d", errShortMemory, h.NumVars, start)
	}
	vars := make(map[string]VarHeader, h.NumVars)
	for i := 0; i < int(h.NumVars); i++ {
		b := mem[start+i*varHeaderSize:]
		name := 16
		desc := name + maxNameLen
		unit := desc + maxDescLen
		v := VarHeader{
			Type:        VarType(readInt(b, 0)),
			Offset:      int(readInt(b, 4)),
			Count:       int(readInt(b, 8)),
			CountAsTime: b[12] != 0,
			Name:        cString(b[name : name+maxNameLen]),
			Desc:        cString(b[desc : desc+maxDescLen]),
			Unit:        cString(b[unit : unit+maxUnitLen]),
		}
		vars[v.Name] = v
	}
	return vars, nil
}

// decode reads the first element of v from a variable buffer. Character
// arrays decode to a string.
func (v VarHeader) decode(buf []byte) (any, bool) {
	size := v.Type.size()
	if size == 0 || v.Offset < 0 || v.Offset+size > len(buf) {
		return nil, false
	}
	b := buf[v.Offset:]
	switch v.Type {
	case TypeChar:
		n := v.Count
		if n < 1 || v.Offset+n > len(buf) {
			n = 1
		}
		return cString(b[:n]), true
	case TypeBool:
		return b[0] != 0, true
	case TypeInt:
		return int32(binary.LittleEndian.Uint32(b)), true
	case TypeBitField:
		return binary.LittleEndian.Uint32(b), true
	case TypeFloat:
		return math.Float32frombits(binary.LittleEndian.Uint32(b)), true
	case TypeDouble:
		return math.Float64frombits(binary.LittleEndian.Uint64(b)), true
	}
	return nil, false
}
