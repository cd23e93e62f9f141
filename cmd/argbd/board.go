package main

import "fmt"

// BoardConfig is the LED wiring the firmware sketch is built for.
type BoardConfig struct {
	LEDPin  int `json:"led_pin"`
	NumLEDs int `json:"num_leds"`
}

func defaultBoardConfig() BoardConfig {
	return BoardConfig{LEDPin: defaultLEDPin, NumLEDs: defaultNumLEDs}
}

// Validate checks the pin and LED count against the supported board.
func (b BoardConfig) Validate() error {
	if b.LEDPin < 0 || b.LEDPin > boardPinMax {
		return fmt.Errorf("%w: pin must be between 0 and %d", ErrInvalidBoardConfig, boardPinMax)
	}
	if b.NumLEDs < 1 || b.NumLEDs > boardLEDCountMax {
		return fmt.Errorf("%w: LED count must be between 1 and %d", ErrInvalidBoardConfig, boardLEDCountMax)
	}
	return nil
}

// Snippet renders the #define block to paste into the firmware sketch.
func (b BoardConfig) Snippet() string {
	return fmt.Sprintf(`#define LED_PIN     %d          // Your configured LED pin
#define NUM_LEDS    %d         // Your configured LED count
#define LED_TYPE    WS2812B    // ARGB fans typically use WS2812B
#define COLOR_ORDER GRB
`, b.LEDPin, b.NumLEDs)
}
