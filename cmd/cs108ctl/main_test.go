package main

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/mzyy94/cs108ctl/internal/cs108"
	"github.com/mzyy94/cs108ctl/internal/sim"
)

func TestDecodeCapture(t *testing.T) {
	tag, err := cs108.MarshalTagData("E28011606000002095", -40)
	if err != nil {
		t.Fatal(err)
	}
	two := append(
		cs108.EncodeNotification(cs108.ModuleRFID, cs108.CodeRFIDData, tag),
		cs108.EncodeNotification(cs108.ModuleNotification, cs108.CodeGetBatteryVoltage, []byte{0x0F, 0x3C})...,
	)

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "command with separators",
			input: spaced(cs108.RFIDPowerOn().Encode()),
			want:  []string{"RFID_POWER_ON code=0x8000 module=rfid dir=downlink payload=0 crc=ok"},
		},
		{
			name:  "two notifications",
			input: hex.EncodeToString(two),
			want: []string{
				"tag epc=E28011606000002095 rssi=-40 pc=0x2800",
				"battery 3900 mV",
			},
		},
		{
			name:  "rejected ack",
			input: hex.EncodeToString(cs108.EncodeNotification(cs108.ModuleRFID, cs108.CodeRFIDCommand, []byte{0x01})),
			want:  []string{"rejected: status 0x01"},
		},
		{
			name:  "barcode",
			input: hex.EncodeToString(cs108.EncodeNotification(cs108.ModuleBarcode, cs108.CodeBarcodeData, []byte("Qhello\r\n"))),
			want:  []string{`barcode QR "hello"`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := decodeCapture(&out, tt.input); err != nil {
				t.Fatal(err)
			}
			for _, w := range tt.want {
				if !strings.Contains(out.String(), w) {
					t.Errorf("output missing %q:\n%s", w, out.String())
				}
			}
		})
	}
}

func TestDecodeCapture_Errors(t *testing.T) {
	for _, in := range []string{"zz", "A7B3"} {
		var out bytes.Buffer
		if err := decodeCapture(&out, in); err == nil {
			t.Errorf("decodeCapture(%q) succeeded: %s", in, out.String())
		}
	}
}

func TestParseTag(t *testing.T) {
	got, err := parseTag("E2801160:-55")
	if err != nil {
		t.Fatal(err)
	}
	if got != (sim.Tag{EPC: "E2801160", RSSI: -55}) {
		t.Errorf("parseTag = %+v", got)
	}
	for _, bad := range []string{"E2801160", "E2801160:loud", "E2801160:-200"} {
		if _, err := parseTag(bad); err == nil {
			t.Errorf("parseTag(%q) succeeded", bad)
		}
	}
}

func spaced(b []byte) string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = hex.EncodeToString([]byte{c})
	}
	return strings.Join(parts, " ")
}
