package main

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_KEY = 0x01
	EV_REL = 0x02

	// Rotary encoder relative axis codes
	REL_DIAL  = 0x07
	REL_WHEEL = 0x08
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Telemetry and chart defaults
const (
	defaultHistorySize      = 200 // Samples retained per channel
	defaultRedrawIntervalMS = 100 // Chart frame cadence (ms)
	maxLineLength           = 512 // Longest telemetry line accepted from the device

	// Serial defaults
	defaultBaud = 9600

	// Persistence
	historyMaxEntries = 1000 // History entries kept on disk
	historyTailOnLoad = 100  // Entries replayed to new stream clients
)

// Tipsy bind mapping: measured speed (ms) -> tipsy value.
// The output range is inverted on purpose; keep it literal.
const (
	tipsySpeedInMin  = 1
	tipsySpeedInMax  = 200
	tipsyOutAtInMin  = 255
	tipsyOutAtInMax  = 50
	tipsyClampMin    = 32
	tipsyClampMax    = 255
	tipsyDefault     = 128
	hueSpeedMin      = 1
	hueSpeedMax      = 5
	speedMinMS       = 1
	speedMaxMS       = 200
	byteSettingMax   = 255
	boardPinMax      = 13
	boardLEDCountMax = 60
)

// Scalar control defaults (what the device boots with)
const (
	defaultBrightness = 255
	defaultSpeedMS    = 10
	defaultIntensity  = 128
	defaultSaturation = 255
	defaultHueSpeed   = 1
	defaultEffect     = "Rainbow"
	defaultColor      = "Red"
	defaultLEDPin     = 6
	defaultNumLEDs    = 12
)

// Rotary input defaults
const (
	defaultRotaryVelocityWindowMS   = 200 // Time window for velocity detection (ms)
	defaultRotaryVelocityMultiplier = 2   // Commands per detent when spinning fast
	defaultRotaryVelocityThreshold  = 3   // Steps in window to trigger velocity mode
)
