package services

import (
	"bytes"
	"testing"

	"marzban-tg-admin/internal/models"
)

func TestUserState_DefaultAndUpdates(t *testing.T) {
	s := NewUserStateService(quietLogger())

	state, err := s.GetState(42)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state.State != models.Default || state.Payload != nil {
		t.Fatalf("expected default state, got %+v", state)
	}

	if err := s.WithConversationState(42, models.AwaitBroadcastMessage); err != nil {
		t.Fatalf("WithConversationState: %v", err)
	}
	if err := s.WithPayload(42, "hello"); err != nil {
		t.Fatalf("WithPayload: %v", err)
	}
	if err := s.WithConversationState(42, models.AwaitBroadcastConfirm); err != nil {
		t.Fatalf("WithConversationState: %v", err)
	}

	state, _ = s.GetState(42)
	if state.State != models.AwaitBroadcastConfirm {
		t.Fatalf("expected confirm state, got %s", state.State)
	}
	if state.Payload == nil || *state.Payload != "hello" {
		t.Fatalf("payload lost across state change: %v", state.Payload)
	}

	if err := s.ClearState(42); err != nil {
		t.Fatalf("ClearState: %v", err)
	}
	state, _ = s.GetState(42)
	if state.State != models.Default || state.Payload != nil {
		t.Fatalf("expected cleared state, got %+v", state)
	}
}

func TestUserState_IsolatedPerUser(t *testing.T) {
	s := NewUserStateService(quietLogger())

	_ = s.WithConversationState(1, models.AwaitTransferID)
	state, _ := s.GetState(2)
	if state.State != models.Default {
		t.Fatalf("state leaked between users: %s", state.State)
	}
}

func TestGenerateQR(t *testing.T) {
	qr := NewQRService(quietLogger())

	png, err := qr.GenerateQR("https://panel.example.com/sub/abc")
	if err != nil {
		t.Fatalf("GenerateQR: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatal("expected PNG output")
	}

	if _, err := qr.GenerateQR(""); err == nil {
		t.Fatal("expected error for empty URL")
	}
}
