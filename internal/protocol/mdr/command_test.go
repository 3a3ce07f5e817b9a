package mdr

import (
	"bytes"
	"testing"
)

var xm6 = Profile{DataType: TypeDataMdr, NcAsmType: NcAsmTypeXM6}

func TestAncSet_VerifiedPayloads(t *testing.T) {
	// HCI 抓包验证的三种载荷
	cases := []struct {
		name  string
		mode  AncMode
		level byte
		focus bool
		want  []byte
	}{
		{"nc_on", AncNc, 10, true, []byte{0x68, 0x19, 0x01, 0x01, 0x00, 0x01, 0x14, 0x00, 0x00}},
		{"ambient_on", AncAmbient, 0x0A, false, []byte{0x68, 0x19, 0x01, 0x01, 0x01, 0x00, 0x0A, 0x00, 0x00}},
		{"off", AncOff, 10, false, []byte{0x68, 0x19, 0x01, 0x00, 0x00, 0x00, 0x14, 0x00, 0x00}},
	}
	for _, tc := range cases {
		got := AncSet(xm6, tc.mode, tc.level, tc.focus)
		if !bytes.Equal(got, tc.want) {
			t.Fatalf("%s: got % X want % X", tc.name, got, tc.want)
		}
	}
}

func TestAncSet_AmbientOptions(t *testing.T) {
	got := AncSet(xm6, AncAmbient, 15, true)
	want := []byte{0x68, 0x19, 0x01, 0x01, 0x01, 0x00, 0x0F, 0x01, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % X want % X", got, want)
	}
	// 超限等级截断
	got = AncSet(xm6, AncAmbient, 99, false)
	if got[6] != AmbientLevelMax {
		t.Fatalf("level not clamped: % X", got)
	}
}

func TestAncSet_ModelVariant(t *testing.T) {
	xm5 := Profile{DataType: TypeDataMdrNo2, NcAsmType: NcAsmTypeXM5}
	got := AncSet(xm5, AncNc, 10, false)
	if got[1] != NcAsmTypeXM5 {
		t.Fatalf("expected XM5 inquired type, got % X", got)
	}
}

func TestCommandBuilders_Shapes(t *testing.T) {
	cases := []struct {
		name string
		got  []byte
		want []byte
	}{
		{"battery_get", BatteryGet(), []byte{0x22, 0x00}},
		{"anc_get", AncGet(xm6), []byte{0x66, 0x19}},
		{"volume_get", VolumeGet(), []byte{0xA6, 0x20}},
		{"volume_set", VolumeSet(15), []byte{0xA8, 0x20, 0x0F}},
		{"volume_set_clamped", VolumeSet(99), []byte{0xA8, 0x20, 0x1E}},
		{"dsee_get", DseeGet(), []byte{0xE6, 0x01}},
		{"dsee_set_on", DseeSet(true), []byte{0xE8, 0x01, 0x01}},
		{"s2c_get", SpeakToChatGet(), []byte{0xF6, 0x02}},
		{"s2c_set_on", SpeakToChatSet(true, 0x01, 0x01), []byte{0xF8, 0x02, 0x01, 0x01, 0x01}},
		{"playback_play", PlaybackSet(PlaybackPlay), []byte{0xA4, 0x01, 0x07}},
		{"playback_pause", PlaybackSet(PlaybackPause), []byte{0xA4, 0x01, 0x01}},
		{"init1", HandshakeInit1(), []byte{0x00, 0x00}},
		{"init2", HandshakeInit2(), []byte{0x06, 0x00}},
	}
	for _, tc := range cases {
		if !bytes.Equal(tc.got, tc.want) {
			t.Fatalf("%s: got % X want % X", tc.name, tc.got, tc.want)
		}
	}
}

func TestDecodeAnc_VerifiedResponses(t *testing.T) {
	cases := []struct {
		name    string
		payload []byte
		mode    AncMode
		level   int
	}{
		{"nc_on", []byte{0x69, 0x19, 0x01, 0x01, 0x00, 0x00, 0x14, 0x00, 0x00}, AncNc, 0x14},
		{"ambient_on", []byte{0x69, 0x19, 0x01, 0x01, 0x01, 0x00, 0x0F, 0x00, 0x00}, AncAmbient, 0x0F},
		{"off", []byte{0x69, 0x19, 0x01, 0x00, 0x00, 0x00, 0x14, 0x00, 0x00}, AncOff, 0x14},
		{"short_ret", []byte{0x67, 0x19, 0x01, 0x01, 0x00}, AncNc, -1},
	}
	for _, tc := range cases {
		st, ok := DecodeAnc(tc.payload)
		if !ok {
			t.Fatalf("%s: decode failed", tc.name)
		}
		if st.Mode != tc.mode || st.AmbientLevel != tc.level {
			t.Fatalf("%s: unexpected status %+v", tc.name, st)
		}
	}
	if _, ok := DecodeAnc([]byte{0x23, 0x00, 0x55, 0x01, 0x00}); ok {
		t.Fatalf("expected rejection of non-ANC opcode")
	}
}

func TestDecodeStatus_Misc(t *testing.T) {
	if v, ok := DecodeVolume([]byte{0xA7, 0x20, 0x12}); !ok || v != 18 {
		t.Fatalf("volume decode: %v %v", v, ok)
	}
	if v, ok := DecodeVolume([]byte{0xA9, 0x20, 0x00}); !ok || v != 0 {
		t.Fatalf("volume notify decode: %v %v", v, ok)
	}
	if on, ok := DecodeDsee([]byte{0xE7, 0x01, 0x01}); !ok || !on {
		t.Fatalf("dsee decode: %v %v", on, ok)
	}
	if on, ok := DecodeSpeakToChat([]byte{0xF9, 0x02, 0x00}); !ok || on {
		t.Fatalf("s2c decode: %v %v", on, ok)
	}
	if _, ok := DecodeBattery([]byte{0x23, 0x00}); ok {
		t.Fatalf("expected short battery payload rejection")
	}
	if _, ok := DecodeVolume([]byte{0xA7}); ok {
		t.Fatalf("expected short volume payload rejection")
	}
}

func TestParseAncMode(t *testing.T) {
	for _, s := range []string{"off", "nc", "ambient"} {
		if m, ok := ParseAncMode(s); !ok || string(m) != s {
			t.Fatalf("parse %q failed", s)
		}
	}
	if _, ok := ParseAncMode("bass_boost"); ok {
		t.Fatalf("expected unknown mode rejection")
	}
}

func TestModelTable_Resolve(t *testing.T) {
	tbl := DefaultModelTable()

	p, key := tbl.ResolveByName("WH-1000XM6")
	if key != "wh-1000xm6" || p.NcAsmType != NcAsmTypeXM6 || p.DataType != TypeDataMdr {
		t.Fatalf("xm6 resolve: %+v %q", p, key)
	}
	p, key = tbl.ResolveByName("LE_WH-1000XM5")
	if key != "wh-1000xm5" || p.NcAsmType != NcAsmTypeXM5 || p.DataType != TypeDataMdrNo2 {
		t.Fatalf("xm5 resolve: %+v %q", p, key)
	}
	p, key = tbl.ResolveByName("Unknown Headset")
	if key != "" || p.NcAsmType != NcAsmTypeXM6 {
		t.Fatalf("fallback resolve: %+v %q", p, key)
	}

	custom := &ModelTable{Models: map[string]Profile{
		"wh-1000xm7": {DataType: TypeDataMdr, NcAsmType: 0x1B},
	}}
	tbl.Merge(custom)
	if p, ok := tbl.Resolve("WH-1000XM7"); !ok || p.NcAsmType != 0x1B {
		t.Fatalf("merged resolve: %+v %v", p, ok)
	}
}
