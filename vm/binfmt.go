package vm

import "encoding/binary"

// headerMagic identifies a GVM executable image. Images that don't start
// with this value are rejected outright.
const headerMagic = 0xB111E7

// headerSize is the fixed 16-byte header every image carries: magic(4)
// entry_point(4) code_size(4) data_size(4).
const headerSize = 16

// dataSegmentOffset is the fixed file offset of the data section,
// independent of how large the code section is. Images whose code_size
// would overlap it are invalid.
const dataSegmentOffset = CodeReservedEnd

// Header is the decoded form of a GVM executable's 16-byte preamble.
type Header struct {
	Magic      uint32
	EntryPoint uint32
	CodeSize   uint32
	DataSize   uint32
}

// ParseHeader decodes and validates the header of a raw image, without
// touching VM state.
func ParseHeader(image []byte) (Header, *Fault) {
	if len(image) < headerSize {
		return Header{}, faultInvalidBinary("image shorter than header")
	}
	h := Header{
		Magic:      binary.LittleEndian.Uint32(image[0:4]),
		EntryPoint: binary.LittleEndian.Uint32(image[4:8]),
		CodeSize:   binary.LittleEndian.Uint32(image[8:12]),
		DataSize:   binary.LittleEndian.Uint32(image[12:16]),
	}
	if h.Magic != headerMagic {
		return Header{}, faultInvalidBinary("bad magic")
	}
	if uint64(headerSize)+uint64(h.CodeSize) > dataSegmentOffset {
		return Header{}, faultInvalidBinary("code_size overruns fixed data offset")
	}
	if dataSegmentOffset+uint64(h.DataSize) > uint64(len(image)) {
		return Header{}, faultInvalidBinary("image truncated relative to header sizes")
	}
	return h, nil
}

// EncodeHeader serializes a Header back to its 16-byte wire form, the
// inverse of the first 16 bytes ParseHeader reads.
func EncodeHeader(h Header) []byte {
	b := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(b[0:4], headerMagic)
	binary.LittleEndian.PutUint32(b[4:8], h.EntryPoint)
	binary.LittleEndian.PutUint32(b[8:12], h.CodeSize)
	binary.LittleEndian.PutUint32(b[12:16], h.DataSize)
	return b
}

// Load validates and installs a binary image: the header is checked, code is
// copied to memory[0:code_size], data is copied to the fixed offset
// dataSegmentOffset, and execution state is reset to entry_point. The VFS
// and fd table are left untouched.
func (m *VM) Load(image []byte) *Fault {
	return m.loadImage(image)
}

func (m *VM) loadImage(image []byte) *Fault {
	h, err := ParseHeader(image)
	if err != nil {
		return err
	}
	if uint64(dataSegmentOffset)+uint64(h.DataSize) > uint64(len(m.Memory)) {
		return faultInvalidBinary("data segment does not fit in memory")
	}
	if uint64(h.CodeSize) > uint64(len(m.Memory)) {
		return faultInvalidBinary("code segment does not fit in memory")
	}

	for i := range m.Memory {
		m.Memory[i] = 0
	}

	code := image[headerSize : headerSize+h.CodeSize]
	copy(m.Memory[0:h.CodeSize], code)

	data := image[dataSegmentOffset : dataSegmentOffset+uint64(h.DataSize)]
	copy(m.Memory[dataSegmentOffset:], data)

	m.codeSize = h.CodeSize
	m.dataSize = h.DataSize
	m.resetExecutionState(uint64(h.EntryPoint))
	return nil
}

// EncodeImage packages a code section and a data section into a loadable
// image with a valid header. entry is the byte offset within code where
// execution should begin. The data segment is padded out to the fixed
// file offset dataSegmentOffset (0x2000) regardless of code_size, matching
// the layout loadImage expects back.
func EncodeImage(code, data []byte, entry uint32) ([]byte, *Fault) {
	if uint64(headerSize)+uint64(len(code)) > dataSegmentOffset {
		return nil, faultInvalidBinary("code_size overruns fixed data offset")
	}
	h := Header{EntryPoint: entry, CodeSize: uint32(len(code)), DataSize: uint32(len(data))}
	out := EncodeHeader(h)
	out = append(out, code...)
	out = append(out, make([]byte, dataSegmentOffset-uint64(len(out)))...)
	out = append(out, data...)
	return out, nil
}
