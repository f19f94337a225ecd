package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the length of a canonical PCM WAV header.
const HeaderSize = 44

// StreamingSize marks the RIFF and data sizes as unknown.
const StreamingSize = 0xFFFFFFFF

// Header is the decoded form of a 44-byte mono PCM WAV header.
type Header struct {
	RIFFSize      uint32
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataSize      uint32
}

// Streaming reports whether the header carries the unknown-size sentinels.
func (h Header) Streaming() bool {
	return h.DataSize == StreamingSize
}

// WAVHeader builds a header for dataSize bytes of mono 16-bit PCM.
func WAVHeader(sampleRate int, dataSize uint32) [HeaderSize]byte {
	return buildHeader(sampleRate, 36+dataSize, dataSize)
}

// StreamingWAVHeader builds a header for a stream whose final length is
// not known when the header goes out.
func StreamingWAVHeader(sampleRate int) [HeaderSize]byte {
	return buildHeader(sampleRate, StreamingSize, StreamingSize)
}

func buildHeader(sampleRate int, riffSize, dataSize uint32) [HeaderSize]byte {
	const blockAlign = Channels * BitDepth / 8

	var hdr [HeaderSize]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], riffSize)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], Channels)
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(hdr[32:34], blockAlign)
	binary.LittleEndian.PutUint16(hdr[34:36], BitDepth)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], dataSize)
	return hdr
}

var errBadHeader = errors.New("not a PCM WAV header")

// ParseWAVHeader decodes the first 44 bytes of b.
func ParseWAVHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes", errBadHeader, len(b))
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" ||
		string(b[12:16]) != "fmt " || string(b[36:40]) != "data" {
		return Header{}, errBadHeader
	}
	return Header{
		RIFFSize:      binary.LittleEndian.Uint32(b[4:8]),
		AudioFormat:   binary.LittleEndian.Uint16(b[20:22]),
		Channels:      binary.LittleEndian.Uint16(b[22:24]),
		SampleRate:    binary.LittleEndian.Uint32(b[24:28]),
		ByteRate:      binary.LittleEndian.Uint32(b[28:32]),
		BlockAlign:    binary.LittleEndian.Uint16(b[32:34]),
		BitsPerSample: binary.LittleEndian.Uint16(b[34:36]),
		DataSize:      binary.LittleEndian.Uint32(b[40:44]),
	}, nil
}
