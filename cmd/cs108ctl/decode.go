package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mzyy94/cs108ctl/internal/cs108"
	"github.com/mzyy94/cs108ctl/internal/transport"
)

var decodeCmd = &cobra.Command{
	Use:   "decode [HEX...]",
	Short: "Decode captured CS108 frames",
	Long: `Decode CS108 frames given as hex, one capture per argument or per line
on stdin. Separators (spaces, colons, dashes) are ignored and a capture may
hold several back-to-back frames.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if len(args) > 0 {
			for _, a := range args {
				if err := decodeCapture(out, a); err != nil {
					return err
				}
			}
			return nil
		}
		sc := bufio.NewScanner(cmd.InOrStdin())
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if err := decodeCapture(out, line); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		}
		return sc.Err()
	},
}

func decodeCapture(w io.Writer, s string) error {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', ':', '-', '\t':
			return -1
		}
		return r
	}, s)
	clean = strings.TrimPrefix(strings.TrimPrefix(clean, "0x"), "0X")
	raw, err := hex.DecodeString(clean)
	if err != nil {
		return fmt.Errorf("capture %q: %w", s, err)
	}

	var asm transport.Reassembler
	frames := asm.Feed(raw)
	if len(frames) == 0 {
		// Let the codec explain what is wrong with it.
		_, err := cs108.DecodeFrame(raw)
		return fmt.Errorf("capture %q: %w", s, err)
	}
	for _, b := range frames {
		f, err := cs108.DecodeFrame(b)
		if err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(w, describe(f))
	}
	if n := asm.Buffered(); n > 0 {
		fmt.Fprintf(w, "(%d trailing bytes)\n", n)
	}
	return nil
}

// describe renders a frame header line and, for known notifications, the
// parsed payload.
func describe(f cs108.Frame) string {
	dir := "downlink"
	if f.Direction == cs108.DirUplink {
		dir = "uplink"
	}
	crc := "ok"
	if !f.Verify() {
		crc = "mismatch"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s code=%s module=%s dir=%s payload=%d crc=%s",
		f.Kind(), f.Code, f.Module, dir, len(f.Payload), crc)
	if detail := payloadDetail(f); detail != "" {
		b.WriteString("\n  ")
		b.WriteString(detail)
	}
	return b.String()
}

func payloadDetail(f cs108.Frame) string {
	if f.Direction != cs108.DirUplink {
		if len(f.Payload) == 0 {
			return ""
		}
		return "data " + strings.ToUpper(hex.EncodeToString(f.Payload))
	}
	switch f.Entry().Class {
	case cs108.ClassAck:
		if err := cs108.ParseAck(f.Code, f.Payload); err != nil {
			return err.Error()
		}
		return "ack ok"
	case cs108.ClassBattery:
		mv, err := cs108.ParseBatteryVoltage(f.Payload)
		if err != nil {
			return err.Error()
		}
		return fmt.Sprintf("battery %d mV", mv)
	case cs108.ClassTrigger:
		pressed, err := cs108.ParseTriggerState(f.Code, f.Payload)
		if err != nil {
			return err.Error()
		}
		if pressed {
			return "trigger pressed"
		}
		return "trigger released"
	case cs108.ClassTagData:
		tag, err := cs108.ParseTagData(f.Payload)
		if err != nil {
			return err.Error()
		}
		return fmt.Sprintf("tag epc=%s rssi=%d pc=0x%04X", tag.EPC, tag.RSSI, tag.PC)
	case cs108.ClassBarcodeData:
		bc, err := cs108.ParseBarcode(f.Payload, true)
		if err != nil {
			return err.Error()
		}
		return fmt.Sprintf("barcode %s %q", bc.Symbology, bc.Data)
	case cs108.ClassError:
		code, err := cs108.ParseErrorNotification(f.Payload)
		if err != nil {
			return err.Error()
		}
		return fmt.Sprintf("reader error 0x%04X", code)
	}
	if len(f.Payload) > 0 {
		return "data " + strings.ToUpper(hex.EncodeToString(f.Payload))
	}
	return ""
}
