package badger

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/cascview/pkg/audit"
	"github.com/marmos91/cascview/pkg/catalog"
	xdr "github.com/rasky/go-xdr/xdr2"
)

// ============================================================================
// Key Schema
// ============================================================================
//
//	p:<passID>             -> passValue   (one per pass)
//	a:<passID>:<seq>       -> recordValue (seq zero-padded to 20 digits so
//	                                        lexical order is append order)
//
// Pass ids are uuids and never contain ':'.

const (
	passPrefix   = "p:"
	recordPrefix = "a:"
)

func keyPass(passID string) []byte {
	return []byte(passPrefix + passID)
}

func keyRecordPrefix(passID string) []byte {
	return []byte(recordPrefix + passID + ":")
}

func keyRecord(passID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", recordPrefix, passID, seq))
}

func parseRecordKey(key []byte) (string, uint64, error) {
	rest, ok := strings.CutPrefix(string(key), recordPrefix)
	if !ok {
		return "", 0, fmt.Errorf("not a record key: %q", key)
	}
	i := strings.LastIndexByte(rest, ':')
	if i < 0 {
		return "", 0, fmt.Errorf("malformed record key: %q", key)
	}
	seq, err := strconv.ParseUint(rest[i+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed record key %q: %w", key, err)
	}
	return rest[:i], seq, nil
}

// ============================================================================
// Values (XDR encoded)
// ============================================================================

type passValue struct {
	Started int64
	Count   uint64
}

type recordValue struct {
	Time int64
	Kind uint32
	ID   int32
	Hash uint64
	Name string
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodePass(data []byte) (passValue, error) {
	var v passValue
	_, err := xdr.Unmarshal(bytes.NewReader(data), &v)
	return v, err
}

func encodeRecord(rec audit.Record) ([]byte, error) {
	return encode(&recordValue{
		Time: rec.Time.UnixNano(),
		Kind: uint32(rec.Kind),
		ID:   rec.ID,
		Hash: uint64(rec.Hash),
		Name: rec.Name,
	})
}

func decodeRecord(passID string, seq uint64, data []byte) (audit.Record, error) {
	var v recordValue
	if _, err := xdr.Unmarshal(bytes.NewReader(data), &v); err != nil {
		return audit.Record{}, err
	}
	return audit.Record{
		PassID: passID,
		Seq:    seq,
		Time:   time.Unix(0, v.Time),
		Kind:   audit.Kind(v.Kind),
		ID:     v.ID,
		Hash:   catalog.Hash(v.Hash),
		Name:   v.Name,
	}, nil
}
