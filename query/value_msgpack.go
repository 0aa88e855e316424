package query

import (
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

var (
	_ msgpack.CustomEncoder = Value{}
	_ msgpack.CustomDecoder = (*Value)(nil)
)

// EncodeMsgpack implements msgpack.CustomEncoder. Integral numbers are
// written as msgpack integers, everything else as float64.
func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	switch v.kind {
	case KindNull:
		return enc.EncodeNil()
	case KindBool:
		return enc.EncodeBool(v.b)
	case KindNumber:
		if v.n == math.Trunc(v.n) && math.Abs(v.n) < 1<<53 {
			return enc.EncodeInt(int64(v.n))
		}
		return enc.EncodeFloat64(v.n)
	case KindString:
		return enc.EncodeString(v.s)
	case KindArray:
		if err := enc.EncodeArrayLen(len(v.arr)); err != nil {
			return err
		}
		for _, e := range v.arr {
			if err := e.EncodeMsgpack(enc); err != nil {
				return err
			}
		}
		return nil
	case KindObject:
		if err := enc.EncodeMapLen(len(v.obj.keys)); err != nil {
			return err
		}
		for i, k := range v.obj.keys {
			if err := enc.EncodeString(k); err != nil {
				return err
			}
			if err := v.obj.vals[i].EncodeMsgpack(enc); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("query: cannot encode %s as msgpack", v.kind)
}

// DecodeMsgpack implements msgpack.CustomDecoder, keeping map key order.
func (v *Value) DecodeMsgpack(dec *msgpack.Decoder) error {
	out, err := readMsgpack(dec)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

func readMsgpack(dec *msgpack.Decoder) (Value, error) {
	c, err := dec.PeekCode()
	if err != nil {
		return Value{}, err
	}

	switch {
	case c == msgpcode.Nil:
		if err := dec.DecodeNil(); err != nil {
			return Value{}, err
		}
		return Null(), nil
	case c == msgpcode.True || c == msgpcode.False:
		b, err := dec.DecodeBool()
		if err != nil {
			return Value{}, err
		}
		return Bool(b), nil
	case msgpcode.IsString(c):
		s, err := dec.DecodeString()
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	case msgpcode.IsBin(c):
		b, err := dec.DecodeBytes()
		if err != nil {
			return Value{}, err
		}
		return String(string(b)), nil
	case msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32:
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return Value{}, err
		}
		arr := make([]Value, 0, max(n, 0))
		for i := 0; i < n; i++ {
			e, err := readMsgpack(dec)
			if err != nil {
				return Value{}, err
			}
			arr = append(arr, e)
		}
		return Value{kind: KindArray, arr: arr}, nil
	case msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32:
		n, err := dec.DecodeMapLen()
		if err != nil {
			return Value{}, err
		}
		members := make([]Member, 0, max(n, 0))
		for i := 0; i < n; i++ {
			k, err := dec.DecodeString()
			if err != nil {
				return Value{}, fmt.Errorf("query: msgpack map key: %w", err)
			}
			e, err := readMsgpack(dec)
			if err != nil {
				return Value{}, err
			}
			members = append(members, Member{Key: k, Value: e})
		}
		return Object(members...), nil
	case msgpcode.IsFixedNum(c) || (c >= msgpcode.Float && c <= msgpcode.Int64):
		f, err := dec.DecodeFloat64()
		if err != nil {
			return Value{}, err
		}
		return Number(f), nil
	}

	raw, err := dec.DecodeInterfaceLoose()
	if err != nil {
		return Value{}, err
	}
	return FromGo(raw)
}
