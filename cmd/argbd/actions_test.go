package main

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestUnmarshalAction(t *testing.T) {
	a, err := UnmarshalAction([]byte(`{"type":"set_setting","data":{"kind":"brightness","value":128,"no_send":true}}`))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	ss, ok := a.(SetSetting)
	if !ok || ss.Kind != "brightness" || ss.Value != 128 || !ss.NoSend {
		t.Fatalf("action = %#v", a)
	}

	a, err = UnmarshalAction([]byte(`{"type":"set_channel","data":{"key":"S","show":false}}`))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	sc := a.(SetChannel)
	if sc.Show == nil || *sc.Show || sc.Color != "" {
		t.Fatalf("set_channel = %#v", sc)
	}
}

func TestUnmarshalAction_PayloadFree(t *testing.T) {
	for _, in := range []string{`{"type":"disconnect"}`, `{"type":"clear_chart","data":null}`, `{"type":"clear_history","data":{}}`} {
		if _, err := UnmarshalAction([]byte(in)); err != nil {
			t.Errorf("UnmarshalAction(%s): %v", in, err)
		}
	}
}

func TestUnmarshalAction_Errors(t *testing.T) {
	if _, err := UnmarshalAction([]byte(`{"type":"warp"}`)); err == nil || !strings.Contains(err.Error(), "unknown action type") {
		t.Fatalf("expected unknown type error, got %v", err)
	}
	if _, err := UnmarshalAction([]byte(`{"type":"connect","data":{"port":5}}`)); err == nil || !strings.Contains(err.Error(), "connect") {
		t.Fatalf("expected typed decode error, got %v", err)
	}
	if _, err := UnmarshalAction([]byte(`[]`)); err == nil {
		t.Fatalf("expected envelope error")
	}
}

func TestMarshalAction_Envelope(t *testing.T) {
	raw, err := MarshalAction(PlayScene{Name: "calm-fire"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Type != "play_scene" || string(env.Data) != `{"name":"calm-fire"}` {
		t.Fatalf("envelope = %s", raw)
	}

	raw, err = MarshalAction(Disconnect{})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"type":"disconnect"}` {
		t.Fatalf("payload-free envelope = %s", raw)
	}
}

func TestActionDecoders_CoverEveryAction(t *testing.T) {
	all := []Action{
		Connect{}, Disconnect{}, SendCommand{}, SetSetting{}, SetCustomColor{}, Recording{},
		SaveMacro{}, PlayMacro{}, DeleteMacro{}, SavePreset{}, LoadPreset{}, DeletePreset{},
		PlayScene{}, SetChannel{}, ClearChart{}, SetTipsyBind{}, SetAutoRedraw{}, ClearHistory{},
		SetBoard{}, RotaryTurn{},
	}
	if len(all) != len(actionDecoders) {
		t.Fatalf("%d actions, %d decoders", len(all), len(actionDecoders))
	}
	for _, a := range all {
		raw, err := MarshalAction(a)
		if err != nil {
			t.Fatalf("marshal %T: %v", a, err)
		}
		back, err := UnmarshalAction(raw)
		if err != nil {
			t.Fatalf("unmarshal %T: %v", a, err)
		}
		if back.actionType() != a.actionType() {
			t.Errorf("%T came back as %T", a, back)
		}
	}
}
