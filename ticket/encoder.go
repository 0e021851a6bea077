package ticket

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"sort"
	"time"
)

const ticketFormatVersionCurrent = 1

const (
	flagIssuedPresent byte = 1 << iota
	flagExpiresPresent
	flagAllowRefreshPresent
	flagAllowRefreshValue
	flagPersistent
)

// ErrInvalidFormat is returned by Decode when the payload is not a ticket
// this package produced (wrong version, truncated, or trailing bytes).
var ErrInvalidFormat = errors.New("invalid ticket format")

// Encode serializes a ticket into the versioned binary wire format. Instants
// are stored as UTC nanoseconds; extension items are written in sorted key
// order so equal tickets encode identically.
func Encode(t *Ticket) ([]byte, error) {
	if t == nil {
		return nil, errors.New("nil ticket")
	}

	var buf bytes.Buffer
	buf.WriteByte(ticketFormatVersionCurrent)

	if err := writeCount(&buf, len(t.Identity)); err != nil {
		return nil, err
	}
	for _, c := range t.Identity {
		if err := writeString(&buf, c.Type); err != nil {
			return nil, err
		}
		if err := writeString(&buf, c.Value); err != nil {
			return nil, err
		}
	}

	p := t.Properties
	if p == nil {
		p = &Properties{}
	}

	var flags byte
	if p.IssuedUtc != nil {
		flags |= flagIssuedPresent
	}
	if p.ExpiresUtc != nil {
		flags |= flagExpiresPresent
	}
	if p.AllowRefresh != nil {
		flags |= flagAllowRefreshPresent
		if *p.AllowRefresh {
			flags |= flagAllowRefreshValue
		}
	}
	if p.IsPersistent {
		flags |= flagPersistent
	}
	buf.WriteByte(flags)

	if p.IssuedUtc != nil {
		if err := binary.Write(&buf, binary.BigEndian, p.IssuedUtc.UTC().UnixNano()); err != nil {
			return nil, err
		}
	}
	if p.ExpiresUtc != nil {
		if err := binary.Write(&buf, binary.BigEndian, p.ExpiresUtc.UTC().UnixNano()); err != nil {
			return nil, err
		}
	}

	if err := writeString(&buf, p.RedirectURI); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(p.Items))
	for k := range p.Items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if err := writeCount(&buf, len(keys)); err != nil {
		return nil, err
	}
	for _, k := range keys {
		if err := writeString(&buf, k); err != nil {
			return nil, err
		}
		if err := writeString(&buf, p.Items[k]); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Decode parses a payload produced by Encode. Decoded instants are UTC.
func Decode(data []byte) (*Ticket, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, ErrInvalidFormat
	}
	if version != ticketFormatVersionCurrent {
		return nil, ErrInvalidFormat
	}

	claimCount, err := readCount(reader)
	if err != nil {
		return nil, err
	}
	var identity Identity
	if claimCount > 0 {
		identity = make(Identity, 0, claimCount)
	}
	for i := 0; i < claimCount; i++ {
		claimType, err := readString(reader)
		if err != nil {
			return nil, err
		}
		claimValue, err := readString(reader)
		if err != nil {
			return nil, err
		}
		identity = append(identity, Claim{Type: claimType, Value: claimValue})
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, ErrInvalidFormat
	}

	props := &Properties{IsPersistent: flags&flagPersistent != 0}

	if flags&flagIssuedPresent != 0 {
		t, err := readInstant(reader)
		if err != nil {
			return nil, err
		}
		props.IssuedUtc = &t
	}
	if flags&flagExpiresPresent != 0 {
		t, err := readInstant(reader)
		if err != nil {
			return nil, err
		}
		props.ExpiresUtc = &t
	}
	if flags&flagAllowRefreshPresent != 0 {
		b := flags&flagAllowRefreshValue != 0
		props.AllowRefresh = &b
	}

	props.RedirectURI, err = readString(reader)
	if err != nil {
		return nil, err
	}

	itemCount, err := readCount(reader)
	if err != nil {
		return nil, err
	}
	if itemCount > 0 {
		props.Items = make(map[string]string, itemCount)
	}
	for i := 0; i < itemCount; i++ {
		k, err := readString(reader)
		if err != nil {
			return nil, err
		}
		v, err := readString(reader)
		if err != nil {
			return nil, err
		}
		props.Items[k] = v
	}

	if reader.Len() != 0 {
		return nil, ErrInvalidFormat
	}

	return New(identity, props), nil
}

func writeCount(buf *bytes.Buffer, n int) error {
	if n > math.MaxUint16 {
		return errors.New("ticket element count too large")
	}
	return binary.Write(buf, binary.BigEndian, uint16(n))
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > math.MaxUint16 {
		return errors.New("ticket string too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readCount(r *bytes.Reader) (int, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return 0, ErrInvalidFormat
	}
	return int(n), nil
}

func readString(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", ErrInvalidFormat
	}
	if int(n) > r.Len() {
		return "", ErrInvalidFormat
	}
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil {
		return "", ErrInvalidFormat
	}
	return string(b), nil
}

func readInstant(r *bytes.Reader) (time.Time, error) {
	var ns int64
	if err := binary.Read(r, binary.BigEndian, &ns); err != nil {
		return time.Time{}, ErrInvalidFormat
	}
	return time.Unix(0, ns).UTC(), nil
}
