package dataset

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/brain-cockpit/cockpit/cockpit"

	"github.com/blang/semver"
	"github.com/golang/snappy"
	"github.com/tinylib/msgp/msgp"
)

// CacheFormat is the version of the persistent load cache layout.  Stores
// persisted with a different major version are ignored.
var CacheFormat = semver.MustParse("1.0.0")

// manifest is written last when a store is persisted, so an entry set without
// a manifest is an incomplete write and counts as a miss.
type manifest struct {
	Format     string
	Generation string
	Created    int64
	Keys       []Key
	Present    []bool
}

// entry is one persisted surface map.
type entry struct {
	Index  uint32
	Values []float32
}

func appendKey(b []byte, k Key) []byte {
	b = msgp.AppendArrayHeader(b, 5)
	b = msgp.AppendString(b, k.Mesh)
	b = msgp.AppendString(b, k.Subject)
	b = msgp.AppendString(b, k.Task)
	b = msgp.AppendString(b, k.Contrast)
	return msgp.AppendString(b, string(k.Side))
}

func readKey(b []byte) (Key, []byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return Key{}, nil, err
	}
	if n != 5 {
		return Key{}, nil, msgp.ArrayError{Wanted: 5, Got: n}
	}
	var k Key
	var side string
	for i, f := range []*string{&k.Mesh, &k.Subject, &k.Task, &k.Contrast, &side} {
		if *f, b, err = msgp.ReadStringBytes(b); err != nil {
			return Key{}, nil, fmt.Errorf("key field %d: %v", i, err)
		}
	}
	k.Side = cockpit.Hemisphere(side)
	return k, b, nil
}

// appendManifest writes m as a msgpack array of its fields in declaration
// order.
func appendManifest(b []byte, m *manifest) []byte {
	b = msgp.AppendArrayHeader(b, 5)
	b = msgp.AppendString(b, m.Format)
	b = msgp.AppendString(b, m.Generation)
	b = msgp.AppendInt64(b, m.Created)
	b = msgp.AppendArrayHeader(b, uint32(len(m.Keys)))
	for _, k := range m.Keys {
		b = appendKey(b, k)
	}
	b = msgp.AppendArrayHeader(b, uint32(len(m.Present)))
	for _, p := range m.Present {
		b = msgp.AppendBool(b, p)
	}
	return b
}

func readManifest(b []byte) (*manifest, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, err
	}
	if n != 5 {
		return nil, msgp.ArrayError{Wanted: 5, Got: n}
	}
	m := new(manifest)
	if m.Format, b, err = msgp.ReadStringBytes(b); err != nil {
		return nil, fmt.Errorf("format: %v", err)
	}
	if m.Generation, b, err = msgp.ReadStringBytes(b); err != nil {
		return nil, fmt.Errorf("generation: %v", err)
	}
	if m.Created, b, err = msgp.ReadInt64Bytes(b); err != nil {
		return nil, fmt.Errorf("creation time: %v", err)
	}
	if n, b, err = msgp.ReadArrayHeaderBytes(b); err != nil {
		return nil, fmt.Errorf("keys: %v", err)
	}
	m.Keys = make([]Key, n)
	for i := range m.Keys {
		if m.Keys[i], b, err = readKey(b); err != nil {
			return nil, fmt.Errorf("key %d: %v", i, err)
		}
	}
	if n, b, err = msgp.ReadArrayHeaderBytes(b); err != nil {
		return nil, fmt.Errorf("presence flags: %v", err)
	}
	m.Present = make([]bool, n)
	for i := range m.Present {
		if m.Present[i], b, err = msgp.ReadBoolBytes(b); err != nil {
			return nil, fmt.Errorf("presence flag %d: %v", i, err)
		}
	}
	return m, nil
}

// appendEntry writes e as [index, values].  Values are stored as raw
// little-endian float32 bits so NaN payloads survive a round trip.
func appendEntry(b []byte, e *entry) []byte {
	b = msgp.AppendArrayHeader(b, 2)
	b = msgp.AppendUint32(b, e.Index)
	raw := make([]byte, 4*len(e.Values))
	for i, v := range e.Values {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	return msgp.AppendBytes(b, raw)
}

func readEntry(b []byte) (*entry, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, err
	}
	if n != 2 {
		return nil, msgp.ArrayError{Wanted: 2, Got: n}
	}
	e := new(entry)
	if e.Index, b, err = msgp.ReadUint32Bytes(b); err != nil {
		return nil, fmt.Errorf("index: %v", err)
	}
	raw, _, err := msgp.ReadBytesZC(b)
	if err != nil {
		return nil, fmt.Errorf("values: %v", err)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("%d bytes is not a float32 array", len(raw))
	}
	e.Values = make([]float32, len(raw)/4)
	for i := range e.Values {
		e.Values[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return e, nil
}

// encodeEntry serializes and compresses one surface map.
func encodeEntry(e *entry) ([]byte, error) {
	return snappy.Encode(nil, appendEntry(nil, e)), nil
}

func decodeEntry(v []byte) (*entry, error) {
	b, err := snappy.Decode(nil, v)
	if err != nil {
		return nil, fmt.Errorf("bad compressed cache entry: %v", err)
	}
	e, err := readEntry(b)
	if err != nil {
		return nil, fmt.Errorf("bad cache entry: %v", err)
	}
	return e, nil
}

func encodeManifest(m *manifest) ([]byte, error) {
	return appendManifest(nil, m), nil
}

// decodeManifest returns an error if the manifest can't be read or was
// written with an incompatible cache format.
func decodeManifest(v []byte) (*manifest, error) {
	m, err := readManifest(v)
	if err != nil {
		return nil, fmt.Errorf("bad cache manifest: %v", err)
	}
	ver, err := semver.Parse(m.Format)
	if err != nil {
		return nil, fmt.Errorf("bad cache format version %q: %v", m.Format, err)
	}
	if ver.Major != CacheFormat.Major {
		return nil, fmt.Errorf("cache format %s incompatible with %s", ver, CacheFormat)
	}
	if len(m.Keys) != len(m.Present) {
		return nil, fmt.Errorf("cache manifest has %d keys but %d presence flags", len(m.Keys), len(m.Present))
	}
	return m, nil
}
