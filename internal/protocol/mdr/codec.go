package mdr

import (
	"encoding/binary"
	"errors"
)

var (
	ErrShortFrame  = errors.New("short frame")
	ErrBadMarker   = errors.New("bad frame marker")
	ErrBadEscape   = errors.New("bad escape sequence")
	ErrBadLength   = errors.New("bad payload length")
	ErrBadChecksum = errors.New("bad checksum")
	ErrFrameTooBig = errors.New("frame exceeds size limit")
)

// checksum8 累加校验（低8位），覆盖未转义的帧体，不含校验字段本身
func checksum8(b []byte) byte {
	var sum int
	for i := 0; i < len(b); i++ {
		sum += int(b[i])
	}
	return byte(sum & 0xFF)
}

// escape 对帧体做字节转义：0x3C/0x3D/0x3E -> 0x3D + (原字节-0x10)
func escape(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		switch c {
		case FrameStart, FrameEnd, EscapeMarker:
			out = append(out, EscapeMarker, c-EscapeOffset)
		default:
			out = append(out, c)
		}
	}
	return out
}

// unescape 还原转义。遇到孤立转义符、非法转义码或裸定界符均视为帧损坏
func unescape(b []byte) ([]byte, error) {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		c := b[i]
		switch c {
		case EscapeMarker:
			if i+1 >= len(b) {
				return nil, ErrBadEscape
			}
			i++
			r := b[i] + EscapeOffset
			if r != FrameStart && r != FrameEnd && r != EscapeMarker {
				return nil, ErrBadEscape
			}
			out = append(out, r)
		case FrameStart, FrameEnd:
			return nil, ErrBadEscape
		default:
			out = append(out, c)
		}
	}
	return out, nil
}

// Encode 构造一帧完整的 MDR 数据帧（帧体转义，末尾附校验和）
// 帧体布局：dataType(1) + seq(1) + payloadLen(4,大端) + payload
func Encode(dataType, seq byte, payload []byte) []byte {
	inner := make([]byte, 0, 2+4+len(payload)+1)
	inner = append(inner, dataType, seq)
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(payload)))
	inner = append(inner, l[:]...)
	inner = append(inner, payload...)
	inner = append(inner, checksum8(inner))

	buf := make([]byte, 0, len(inner)+2)
	buf = append(buf, FrameStart)
	buf = append(buf, escape(inner)...)
	buf = append(buf, FrameEnd)
	return buf
}

// EncodeAck 构造指定序列位的确认帧。确认帧类型恒为 TypeAck 且载荷为空
func EncodeAck(seq byte) []byte {
	return Encode(TypeAck, seq&0x01, nil)
}

// Decode 严格解析单帧（校验定界符、转义、长度字段与校验和）
func Decode(raw []byte) (*Message, error) {
	if len(raw) < MinFrameLength {
		return nil, ErrShortFrame
	}
	if raw[0] != FrameStart || raw[len(raw)-1] != FrameEnd {
		return nil, ErrBadMarker
	}
	inner, err := unescape(raw[1 : len(raw)-1])
	if err != nil {
		return nil, err
	}
	if len(inner) < 7 { // type + seq + len(4) + checksum
		return nil, ErrShortFrame
	}
	plen := int(binary.BigEndian.Uint32(inner[2:6]))
	if plen > MaxPayloadLength {
		return nil, ErrFrameTooBig
	}
	if len(inner) != 7+plen {
		return nil, ErrBadLength
	}
	if checksum8(inner[:len(inner)-1]) != inner[len(inner)-1] {
		return nil, ErrBadChecksum
	}
	payload := make([]byte, plen)
	copy(payload, inner[6:6+plen])
	return &Message{DataType: inner[0], Seq: inner[1] & 0x01, Payload: payload}, nil
}
