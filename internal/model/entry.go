package model

// EntryState tags an entry of the visible list as tentative or confirmed.
type EntryState int

const (
	// Tentative entries carry a locally generated ID and await the
	// durable write.
	Tentative EntryState = iota + 1
	// Confirmed entries carry a server-issued ID.
	Confirmed
)

// String returns the string representation of the state.
func (s EntryState) String() string {
	switch s {
	case Tentative:
		return "tentative"
	case Confirmed:
		return "confirmed"
	}
	return "unknown"
}

// Entry is one element of the visible scanned-code list.
type Entry struct {
	State EntryState
	Code  ScannedCode

	// Shadow is a confirmed server copy matched to this tentative entry
	// during a resync. It stays hidden until the entry resolves.
	Shadow *ScannedCode
}

// TentativeEntry wraps a locally synthesized record.
func TentativeEntry(c ScannedCode) Entry {
	return Entry{State: Tentative, Code: c}
}

// ConfirmedEntry wraps a server-confirmed record.
func ConfirmedEntry(c ScannedCode) Entry {
	return Entry{State: Confirmed, Code: c}
}

// ID returns the entry's current identity (temporary or server).
func (e Entry) ID() string {
	return e.Code.ID
}

// IsTentative reports whether the entry is still pending confirmation.
func (e Entry) IsTentative() bool {
	return e.State == Tentative
}

// Codes returns the records of entries in list order.
func Codes(entries []Entry) []ScannedCode {
	out := make([]ScannedCode, len(entries))
	for i, e := range entries {
		out[i] = e.Code
	}
	return out
}
