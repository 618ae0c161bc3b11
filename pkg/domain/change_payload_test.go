package domain

import (
	"errors"
	"testing"
)

type failingPayload struct{}

func (failingPayload) MarshalJSON() ([]byte, error) {
	return nil, errors.New("marshal failure")
}

func TestChangePayloadUndefined(t *testing.T) {
	var payload ChangePayload
	if payload.Defined() {
		t.Fatalf("expected zero payload to be undefined")
	}
	if payload.Raw() != nil {
		t.Fatalf("expected undefined payload to return nil raw bytes")
	}
	if _, ok := DecodeChangePayload[Product](payload); ok {
		t.Fatalf("expected decode of undefined payload to fail")
	}
}

func TestChangePayloadRoundTripsRecord(t *testing.T) {
	rec := Recommendation{ID: "r1", OwnerID: "u1", SyncStatus: SyncSynced}
	payload, err := NewChangePayload(rec)
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	got, ok := DecodeChangePayload[Recommendation](payload)
	if !ok {
		t.Fatalf("expected payload to decode")
	}
	if got.ID != "r1" || got.OwnerID != "u1" || got.SyncStatus != SyncSynced {
		t.Fatalf("unexpected decoded record: %+v", got)
	}
}

func TestChangePayloadRawIsCloned(t *testing.T) {
	payload, err := NewChangePayload(map[string]string{"id": "cloned"})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	first := payload.Raw()
	first[2] = 'X'
	if string(payload.Raw()) != `{"id":"cloned"}` {
		t.Fatalf("expected stored payload to remain unchanged, got %s", payload.Raw())
	}
}

func TestNewChangePayloadMarshalError(t *testing.T) {
	if _, err := NewChangePayload(failingPayload{}); err == nil {
		t.Fatalf("expected marshal error")
	}
}
