package ssi

// TriggerMode selects how a scan session is armed.
type TriggerMode byte

const (
	// TriggerModeAuto arms the laser to fire on object presence.
	TriggerModeAuto TriggerMode = iota
	// TriggerModeManual requires the host to issue START_SESSION itself.
	TriggerModeManual
)

// Parameter numbers used by the 12-byte PARAM_SEND configuration block.
// These identify device-side settings within the SSI parameter table; the
// exact numeric assignment is vendor-defined and was not recoverable from
// the retrieved source tree (the header carrying the enum was not part of
// the kept file set). Values below are placeholders chosen to be
// internally consistent and are documented as an open-question resolution
// in DESIGN.md; swap in the values from the device's SSI programming guide
// if they differ.
const (
	paramBeepNone      byte = 0x00
	paramDecodeFormat  byte = 0x8B
	paramSoftwareACK   byte = 0xEB
	paramScanParams    byte = 0xF5
	paramTriggerMode   byte = 0x8A
	paramIndexF0       byte = 0xF0
	paramDecodeEventF0 byte = 0x8C

	valDisable byte = 0x00
	valEnable  byte = 0x01

	triggerPresent byte = 0x00 // auto, trigger-on-presence
	triggerHost    byte = 0x01 // manual, host-triggered
)

// BuildSetupParams returns the 12-byte TLV-like parameter block sent with
// PARAM_SEND during setup: beep suppression, decimal-format transmission,
// software ACK, in-band scan-parameter permission (left disabled, so a
// scan cannot silently reconfigure the device), the requested trigger
// mode, and a final three-byte extended entry (0xF0 prefix) that enables
// decode-event reporting.
func BuildSetupParams(mode TriggerMode) []byte {
	trigger := triggerPresent
	if mode == TriggerModeManual {
		trigger = triggerHost
	}
	return []byte{
		paramBeepNone,
		paramDecodeFormat, valEnable,
		paramSoftwareACK, valEnable,
		paramScanParams, valDisable,
		paramTriggerMode, trigger,
		paramIndexF0, paramDecodeEventF0, valEnable,
	}
}
