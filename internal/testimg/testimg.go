// Package testimg builds synthetic photos with hand-assembled EXIF for tests.
package testimg

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"testing"
)

// TIFF field types.
const (
	typeByte     = 1
	typeASCII    = 2
	typeLong     = 4
	typeRational = 5
)

var order = binary.BigEndian

// Entry is one IFD entry.
type Entry struct {
	Tag   uint16
	Type  uint16
	Count uint32
	Data  []byte
}

// ASCII returns a NUL-terminated ASCII entry.
func ASCII(tag uint16, s string) Entry {
	b := append([]byte(s), 0)
	return Entry{Tag: tag, Type: typeASCII, Count: uint32(len(b)), Data: b}
}

// Rationals returns a RATIONAL entry from numerator/denominator pairs.
func Rationals(tag uint16, pairs ...[2]uint32) Entry {
	var b bytes.Buffer
	for _, p := range pairs {
		binary.Write(&b, order, p[0])
		binary.Write(&b, order, p[1])
	}
	return Entry{Tag: tag, Type: typeRational, Count: uint32(len(pairs)), Data: b.Bytes()}
}

// Bytes returns a BYTE entry.
func Bytes(tag uint16, bs ...byte) Entry {
	return Entry{Tag: tag, Type: typeByte, Count: uint32(len(bs)), Data: bs}
}

func long(tag uint16, v uint32) Entry {
	b := make([]byte, 4)
	order.PutUint32(b, v)
	return Entry{Tag: tag, Type: typeLong, Count: 1, Data: b}
}

// GPS is a GPS IFD description. Nil coordinates are left out.
type GPS struct {
	LatRef string
	Lat    [][2]uint32
	LonRef string
	Lon    [][2]uint32
}

// Entries returns the GPS IFD entries in tag order.
func (g GPS) Entries() []Entry {
	es := []Entry{Bytes(0x00, 2, 2, 0, 0)}
	if g.LatRef != "" {
		es = append(es, ASCII(0x01, g.LatRef))
	}
	if g.Lat != nil {
		es = append(es, Rationals(0x02, g.Lat...))
	}
	if g.LonRef != "" {
		es = append(es, ASCII(0x03, g.LonRef))
	}
	if g.Lon != nil {
		es = append(es, Rationals(0x04, g.Lon...))
	}
	return es
}

// TIFF assembles a big-endian TIFF stream with IFD0 entries and an optional GPS IFD.
func TIFF(ifd0 []Entry, gps []Entry) []byte {
	const ifd0Offset = 8

	entries := append([]Entry{}, ifd0...)
	if gps != nil {
		entries = append(entries, long(0x8825, 0))
	}

	first := encodeIFD(ifd0Offset, entries)
	if gps != nil {
		gpsOffset := uint32(ifd0Offset + len(first))
		entries[len(entries)-1] = long(0x8825, gpsOffset)
		first = encodeIFD(ifd0Offset, entries)
		first = append(first, encodeIFD(gpsOffset, gps)...)
	}

	var b bytes.Buffer
	b.WriteString("MM")
	binary.Write(&b, order, uint16(42))
	binary.Write(&b, order, uint32(ifd0Offset))
	b.Write(first)
	return b.Bytes()
}

func encodeIFD(base uint32, entries []Entry) []byte {
	var head, tail bytes.Buffer
	dataStart := base + 2 + uint32(len(entries))*12 + 4

	binary.Write(&head, order, uint16(len(entries)))
	for _, e := range entries {
		binary.Write(&head, order, e.Tag)
		binary.Write(&head, order, e.Type)
		binary.Write(&head, order, e.Count)
		if len(e.Data) <= 4 {
			v := make([]byte, 4)
			copy(v, e.Data)
			head.Write(v)
			continue
		}
		binary.Write(&head, order, dataStart+uint32(tail.Len()))
		tail.Write(e.Data)
		if tail.Len()%2 == 1 {
			tail.WriteByte(0)
		}
	}
	binary.Write(&head, order, uint32(0))
	return append(head.Bytes(), tail.Bytes()...)
}

// Solid returns a w×h image filled with c.
func Solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

// JPEG encodes img and splices tiff in as an APP1 Exif segment. A nil tiff writes
// no EXIF.
func JPEG(t testing.TB, img image.Image, tiff []byte) []byte {
	t.Helper()
	var b bytes.Buffer
	if err := jpeg.Encode(&b, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	raw := b.Bytes()
	if tiff == nil {
		return raw
	}

	payload := append([]byte("Exif\x00\x00"), tiff...)
	seg := []byte{0xFF, 0xE1, 0, 0}
	order.PutUint16(seg[2:], uint16(len(payload)+2))
	seg = append(seg, payload...)

	out := append([]byte{}, raw[:2]...)
	out = append(out, seg...)
	return append(out, raw[2:]...)
}

// PNG encodes img.
func PNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var b bytes.Buffer
	if err := png.Encode(&b, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return b.Bytes()
}

// Write writes bs to path.
func Write(t testing.TB, path string, bs []byte) string {
	t.Helper()
	if err := os.WriteFile(path, bs, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// Paris is the GPS block for 48°51'20.5"N 2°21'7.92"E.
var Paris = GPS{
	LatRef: "N",
	Lat:    [][2]uint32{{48, 1}, {51, 1}, {205, 10}},
	LonRef: "E",
	Lon:    [][2]uint32{{2, 1}, {21, 1}, {792, 100}},
}

// Camera returns IFD0 entries for a model and a timestamp.
func Camera(model, dateTime string) []Entry {
	return []Entry{ASCII(0x0110, model), ASCII(0x0132, dateTime)}
}
