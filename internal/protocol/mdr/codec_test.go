package mdr

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncode_BatteryGet(t *testing.T) {
	raw := Encode(TypeDataMdr, 0, BatteryGet())
	want := []byte{0x3E, 0x0C, 0x00, 0x00, 0x00, 0x00, 0x02, 0x22, 0x00, 0x30, 0x3C}
	if !bytes.Equal(raw, want) {
		t.Fatalf("unexpected frame: % X", raw)
	}
}

func TestDecode_BatteryResponse(t *testing.T) {
	// 设备应答：电量85%，充电中
	raw := []byte{0x3E, 0x0C, 0x01, 0x00, 0x00, 0x00, 0x04, 0x23, 0x00, 0x55, 0x01, 0x8A, 0x3C}
	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.DataType != TypeDataMdr || msg.Seq != 1 {
		t.Fatalf("unexpected header: %+v", msg)
	}
	st, ok := DecodeBattery(msg.Payload)
	if !ok {
		t.Fatalf("battery decode failed: % X", msg.Payload)
	}
	if st.Level != 85 || !st.Charging {
		t.Fatalf("unexpected battery status: %+v", st)
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	payloads := [][]byte{
		nil,
		{0x22, 0x00},
		{0x68, 0x19, 0x01, 0x01, 0x00, 0x01, 0x14, 0x00, 0x00},
		{0x3E, 0x3C, 0x3D},       // 全部需转义
		{0x00, 0x3D, 0xFF, 0x3E}, // 混合
	}
	for _, p := range payloads {
		raw := Encode(TypeDataMdr, 1, p)
		msg, err := Decode(raw)
		if err != nil {
			t.Fatalf("decode % X: %v", p, err)
		}
		if !bytes.Equal(msg.Payload, p) {
			t.Fatalf("payload mismatch: got % X want % X", msg.Payload, p)
		}
		if msg.Seq != 1 || msg.DataType != TypeDataMdr {
			t.Fatalf("header mismatch: %+v", msg)
		}
	}
}

func TestEncode_EscapedChecksum(t *testing.T) {
	// 载荷选取使校验和本身落在转义区（0x01+0x3B = 0x3C）
	raw := Encode(TypeData, 0, []byte{0x3B})
	want := []byte{0x3E, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x3B, 0x3D, 0x2C, 0x3C}
	if !bytes.Equal(raw, want) {
		t.Fatalf("unexpected frame: % X", raw)
	}
	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(msg.Payload, []byte{0x3B}) {
		t.Fatalf("unexpected payload: % X", msg.Payload)
	}
}

func TestEncodeAck_Shape(t *testing.T) {
	raw := EncodeAck(1)
	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !msg.IsAck() || msg.Seq != 1 || len(msg.Payload) != 0 {
		t.Fatalf("unexpected ack: %+v", msg)
	}
}

func TestDecode_BadChecksum(t *testing.T) {
	raw := Encode(TypeDataMdr, 0, []byte{0x22, 0x00})
	raw[len(raw)-2]++ // 破坏校验和
	if _, err := Decode(raw); !errors.Is(err, ErrBadChecksum) {
		t.Fatalf("expected ErrBadChecksum, got %v", err)
	}
}

func TestDecode_BadMarker(t *testing.T) {
	raw := Encode(TypeDataMdr, 0, []byte{0x22, 0x00})
	raw[0] = 0x00
	if _, err := Decode(raw); !errors.Is(err, ErrBadMarker) {
		t.Fatalf("expected ErrBadMarker, got %v", err)
	}
}

func TestDecode_Truncated(t *testing.T) {
	raw := Encode(TypeDataMdr, 0, []byte{0x22, 0x00})
	if _, err := Decode(raw[:5]); !errors.Is(err, ErrShortFrame) {
		t.Fatalf("expected ErrShortFrame, got %v", err)
	}
}

func TestDecode_LengthMismatch(t *testing.T) {
	// 长度字段声明4字节载荷，实际只有2字节
	inner := []byte{0x0C, 0x00, 0x00, 0x00, 0x00, 0x04, 0x22, 0x00}
	inner = append(inner, checksum8(inner))
	raw := append([]byte{FrameStart}, inner...)
	raw = append(raw, FrameEnd)
	if _, err := Decode(raw); !errors.Is(err, ErrBadLength) {
		t.Fatalf("expected ErrBadLength, got %v", err)
	}
}

func TestDecode_BadEscape(t *testing.T) {
	cases := [][]byte{
		{0x3E, 0x0C, 0x00, 0x00, 0x00, 0x00, 0x01, 0x3D, 0xFF, 0x00, 0x3C}, // 非法转义码
		{0x3E, 0x0C, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x3D, 0x3C}, // 孤立转义符
	}
	for _, raw := range cases {
		if _, err := Decode(raw); !errors.Is(err, ErrBadEscape) {
			t.Fatalf("expected ErrBadEscape for % X, got %v", raw, err)
		}
	}
}
