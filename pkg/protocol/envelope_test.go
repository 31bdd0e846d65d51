package protocol

import (
	"encoding/json"
	"testing"
)

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope(EvFileOffer, FileOffer{
		File:       FileMeta{ID: "f1", Name: "report.pdf", Size: 1024},
		SenderID:   "peerA",
		SenderName: "Laptop",
	})
	if err != nil {
		t.Fatalf("NewEnvelope failed: %v", err)
	}
	if env.V != ProtocolVersion {
		t.Errorf("V = %d, want %d", env.V, ProtocolVersion)
	}
	if env.Event != EvFileOffer {
		t.Errorf("Event = %s, want %s", env.Event, EvFileOffer)
	}
	if env.MsgID == "" {
		t.Error("MsgID should not be empty")
	}

	var offer FileOffer
	if err := env.DecodePayload(&offer); err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if offer.File.ID != "f1" || offer.SenderName != "Laptop" {
		t.Errorf("payload round trip mismatch: %+v", offer)
	}
}

func TestEnvelope_ValidateBasic(t *testing.T) {
	valid := Envelope{V: ProtocolVersion, Event: EvAcceptFile, MsgID: NewMsgID()}
	if err := valid.ValidateBasic(); err != nil {
		t.Errorf("valid envelope rejected: %v", err)
	}

	wrongVersion := Envelope{V: 99, Event: EvAcceptFile, MsgID: "m"}
	if err := wrongVersion.ValidateBasic(); err == nil {
		t.Error("expected error for wrong protocol version")
	}

	noEvent := Envelope{V: ProtocolVersion, MsgID: "m"}
	if err := noEvent.ValidateBasic(); err == nil {
		t.Error("expected error for missing event")
	}

	noMsgID := Envelope{V: ProtocolVersion, Event: EvAcceptFile}
	if err := noMsgID.ValidateBasic(); err == nil {
		t.Error("expected error for missing msg_id")
	}
}

func TestEnvelope_WireFormat(t *testing.T) {
	env, err := NewEnvelope(EvAcceptFile, FileResponse{
		SessionID:      "s1",
		FileID:         "f1",
		ReceiverPeerID: "peerB",
	})
	if err != nil {
		t.Fatalf("NewEnvelope failed: %v", err)
	}
	env.SessionID = "s1"
	env.From = "peerB"

	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded Envelope
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if err := decoded.ValidateBasic(); err != nil {
		t.Errorf("decoded envelope invalid: %v", err)
	}
	if decoded.Event != EvAcceptFile || decoded.From != "peerB" {
		t.Errorf("decoded = %+v", decoded)
	}
}
