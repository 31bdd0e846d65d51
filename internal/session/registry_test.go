package session

import (
	"testing"
	"time"
)

func TestRegistry_Create(t *testing.T) {
	reg := NewRegistry(5 * time.Minute)

	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s, _ := reg.Create()

		if ids[s.ID] {
			t.Errorf("duplicate session ID: %s", s.ID)
		}
		ids[s.ID] = true

		if len(s.ID) != 10 {
			t.Errorf("session ID length = %d, want 10", len(s.ID))
		}
		if len(s.Pin) != 6 {
			t.Errorf("PIN length = %d, want 6", len(s.Pin))
		}
		for _, c := range s.Pin {
			if c < '0' || c > '9' {
				t.Errorf("PIN contains non-digit %c in %s", c, s.Pin)
			}
		}
		if s.Pin[0] == '0' {
			t.Errorf("PIN has leading zero: %s", s.Pin)
		}
		if s.Expired(time.Now()) {
			t.Error("fresh session should not be expired")
		}
	}
}

func TestRegistry_CreateReturnsPrevious(t *testing.T) {
	reg := NewRegistry(5 * time.Minute)

	first, prev := reg.Create()
	if prev != nil {
		t.Error("first Create should have no previous session")
	}

	second, prev := reg.Create()
	if prev == nil || prev.ID != first.ID {
		t.Fatalf("second Create should return the first session as previous")
	}
	if reg.CurrentID() != second.ID {
		t.Errorf("CurrentID = %s, want %s", reg.CurrentID(), second.ID)
	}
}

func TestRegistry_Remove(t *testing.T) {
	reg := NewRegistry(5 * time.Minute)
	s, _ := reg.Create()

	reg.Remove(s.ID)
	if _, ok := reg.Get(s.ID); ok {
		t.Error("removed session should not be found")
	}
	if reg.CurrentID() != "" {
		t.Error("removing the current session should clear the current marker")
	}
}

func TestRegistry_VerifyPin(t *testing.T) {
	reg := NewRegistry(5 * time.Minute)
	s, _ := reg.Create()

	if err := reg.VerifyPin(s.ID, s.Pin); err != nil {
		t.Errorf("correct PIN rejected: %v", err)
	}
	if err := reg.VerifyPin(s.ID, "000000"); err != ErrPinMismatch {
		t.Errorf("wrong PIN: got %v, want ErrPinMismatch", err)
	}
	if err := reg.VerifyPin("missing", s.Pin); err != ErrSessionNotFound {
		t.Errorf("missing session: got %v, want ErrSessionNotFound", err)
	}
}

func TestRegistry_VerifyPin_Expired(t *testing.T) {
	reg := NewRegistry(time.Millisecond)
	s, _ := reg.Create()
	time.Sleep(5 * time.Millisecond)

	if err := reg.VerifyPin(s.ID, s.Pin); err != ErrPinExpired {
		t.Errorf("expired session: got %v, want ErrPinExpired", err)
	}
}

func TestRegistry_FindByPin(t *testing.T) {
	reg := NewRegistry(5 * time.Minute)
	s, _ := reg.Create()

	found, ok := reg.FindByPin(s.Pin)
	if !ok || found.ID != s.ID {
		t.Fatalf("FindByPin should locate the live session")
	}

	if _, ok := reg.FindByPin("999999x"); ok {
		t.Error("FindByPin should miss an unknown PIN")
	}
}

func TestRegistry_FindByPin_SkipsExpired(t *testing.T) {
	reg := NewRegistry(time.Millisecond)
	s, _ := reg.Create()
	time.Sleep(5 * time.Millisecond)

	if _, ok := reg.FindByPin(s.Pin); ok {
		t.Error("FindByPin should skip expired sessions")
	}
}

func TestRegistry_MostRecent(t *testing.T) {
	reg := NewRegistry(5 * time.Minute)
	reg.Create()
	second, _ := reg.Create()

	latest, ok := reg.MostRecent()
	if !ok {
		t.Fatal("MostRecent should find a live session")
	}
	if latest.ID != second.ID {
		t.Errorf("MostRecent = %s, want %s", latest.ID, second.ID)
	}
}

func TestSession_DerivedCounts(t *testing.T) {
	reg := NewRegistry(5 * time.Minute)
	s, _ := reg.Create()

	s.Peers["host"] = &Peer{PeerID: "host", Role: RoleHost, CurrentPage: PageMain, InMain: true}
	s.Peers["c1"] = &Peer{PeerID: "c1", Role: RoleClient, CurrentPage: PageMain, InMain: true}
	s.Peers["c2"] = &Peer{PeerID: "c2", Role: RoleClient, CurrentPage: PageReceive}
	s.Peers["c3"] = &Peer{PeerID: "c3", Role: RoleClient, CurrentPage: PageMain, InMain: true, IsDisconnected: true}

	if got := s.ClientsInMain(); got != 1 {
		t.Errorf("ClientsInMain = %d, want 1", got)
	}
	if got := s.ConnectedOnMain(); got != 2 {
		t.Errorf("ConnectedOnMain = %d, want 2", got)
	}
	if got := len(s.ConnectedOnPage(PageReceive)); got != 1 {
		t.Errorf("ConnectedOnPage(receive) = %d, want 1", got)
	}
	if got := len(s.ConnectedPeersExcept("host")); got != 2 {
		t.Errorf("ConnectedPeersExcept(host) = %d, want 2", got)
	}
	if !s.ClientsConnected() {
		t.Error("ClientsConnected should be true")
	}

	// Derived counts must be recomputed fresh, not cached.
	s.Peers["c2"].CurrentPage = PageMain
	s.Peers["c2"].InMain = true
	if got := s.ConnectedOnMain(); got != 3 {
		t.Errorf("ConnectedOnMain after move = %d, want 3", got)
	}
}

func TestTransfer_Responded(t *testing.T) {
	tr := &Transfer{
		Accepted: map[string]struct{}{"a": {}},
		Rejected: map[string]struct{}{"r": {}},
	}
	if !tr.Responded("a") || !tr.Responded("r") {
		t.Error("Responded should see both sets")
	}
	if tr.Responded("other") {
		t.Error("Responded should be false for a silent receiver")
	}
}
