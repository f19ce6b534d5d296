package pipeline

import (
	"slices"
	"time"

	"github.com/alfredjeanlab/storescan/internal/model"
)

// The functions in this file are the whole of the list arithmetic. Each
// takes the current list and returns a new one; none mutate their input.

// insertTentative puts e at the head of the list.
func insertTentative(list []model.Entry, e model.Entry) []model.Entry {
	out := make([]model.Entry, 0, len(list)+1)
	out = append(out, e)
	return append(out, list...)
}

// indexOf returns the position of the entry with the given ID, or -1.
func indexOf(list []model.Entry, id string) int {
	return slices.IndexFunc(list, func(e model.Entry) bool { return e.ID() == id })
}

// resolveSuccess replaces the tentative entry tempID with the confirmed
// record, in place. A shadowed server copy that turned out to be a
// different record is shown right after it. Any other entry already
// carrying the confirmed ID is dropped. It reports false when tempID is no
// longer in the list.
func resolveSuccess(list []model.Entry, tempID string, confirmed model.ScannedCode) ([]model.Entry, bool) {
	i := indexOf(list, tempID)
	if i < 0 || !list[i].IsTentative() {
		return list, false
	}
	shadow := list[i].Shadow

	out := make([]model.Entry, 0, len(list)+1)
	for j, e := range list {
		switch {
		case j == i:
			out = append(out, model.ConfirmedEntry(confirmed))
			if shadow != nil && shadow.ID != confirmed.ID && indexOf(list, shadow.ID) < 0 {
				out = append(out, model.ConfirmedEntry(*shadow))
			}
		case e.ID() == confirmed.ID:
			// Already shown by an earlier resync; keep the resolved position.
		default:
			out = append(out, e)
		}
	}
	return out, true
}

// resolveFailure removes the tentative entry tempID. A shadowed server copy
// takes its place, since it is a real record of the scope.
func resolveFailure(list []model.Entry, tempID string) ([]model.Entry, bool) {
	i := indexOf(list, tempID)
	if i < 0 || !list[i].IsTentative() {
		return list, false
	}
	out := slices.Clone(list[:i])
	if s := list[i].Shadow; s != nil && indexOf(list, s.ID) < 0 {
		out = append(out, model.ConfirmedEntry(*s))
	}
	return append(out, list[i+1:]...), true
}

// removeByID removes the entry with the given ID and returns it with its
// former index.
func removeByID(list []model.Entry, id string) ([]model.Entry, model.Entry, int, bool) {
	i := indexOf(list, id)
	if i < 0 {
		return list, model.Entry{}, -1, false
	}
	e := list[i]
	out := slices.Clone(list[:i])
	return append(out, list[i+1:]...), e, i, true
}

// restoreAt puts e back at index i, or at the end when the list has since
// shrunk. It is a no-op when an entry with the same ID is already present.
func restoreAt(list []model.Entry, e model.Entry, i int) []model.Entry {
	if indexOf(list, e.ID()) >= 0 {
		return list
	}
	i = max(0, min(i, len(list)))
	out := make([]model.Entry, 0, len(list)+1)
	out = append(out, list[:i]...)
	out = append(out, e)
	return append(out, list[i:]...)
}

// mergeRemote rebuilds the list from a server listing. The confirmed part
// is replaced by remote, in server order; pending tentative entries keep
// their relative order and are placed among the confirmed ones by capture
// time, newest first. A remote record that matches a pending tentative
// entry by payload and capture time within proximity is attached to it as
// its shadow instead of being listed, so one scan never shows twice.
// Records whose IDs are in hidden (deletes in flight) are left out.
func mergeRemote(list []model.Entry, remote []*model.ScannedCode, proximity time.Duration, hidden map[string]bool) []model.Entry {
	var tentative []model.Entry
	for _, e := range list {
		if e.IsTentative() {
			e.Shadow = nil
			tentative = append(tentative, e)
		}
	}

	var confirmed []model.Entry
	seen := make(map[string]bool, len(remote))
	for _, r := range remote {
		if r == nil || hidden[r.ID] || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		if i := matchTentative(tentative, r, proximity); i >= 0 {
			c := *r
			tentative[i].Shadow = &c
			continue
		}
		confirmed = append(confirmed, model.ConfirmedEntry(*r))
	}
	return interleave(tentative, confirmed)
}

// interleave merges two newest-first lists by capture time. On a tie the
// tentative entry goes first.
func interleave(tentative, confirmed []model.Entry) []model.Entry {
	out := make([]model.Entry, 0, len(tentative)+len(confirmed))
	for len(tentative) > 0 && len(confirmed) > 0 {
		if confirmed[0].Code.CapturedAt.After(tentative[0].Code.CapturedAt) {
			out, confirmed = append(out, confirmed[0]), confirmed[1:]
		} else {
			out, tentative = append(out, tentative[0]), tentative[1:]
		}
	}
	out = append(out, tentative...)
	return append(out, confirmed...)
}

type changeKind int

const (
	changeConfirmed changeKind = iota // an insert resolved
	changeDeleted                     // a record was deleted
	changeCleared                     // the scope was cleared
)

// change is a local mutation that a listing fetched before it cannot
// reflect.
type change struct {
	seq  uint64
	kind changeKind
	code model.ScannedCode // only ID is set for deletes
}

// replay applies changes, oldest first, to a listing taken before them.
// A clear removes every listed record except those confirmed locally since
// the listing was taken.
func replay(remote []*model.ScannedCode, changes []change) []*model.ScannedCode {
	if len(changes) == 0 {
		return remote
	}
	out := slices.Clone(remote)
	local := make(map[string]bool)
	for _, c := range changes {
		id := c.code.ID
		switch c.kind {
		case changeCleared:
			out = slices.DeleteFunc(out, func(r *model.ScannedCode) bool { return r == nil || !local[r.ID] })
		case changeDeleted:
			delete(local, id)
			out = slices.DeleteFunc(out, func(r *model.ScannedCode) bool { return r == nil || r.ID == id })
		case changeConfirmed:
			local[id] = true
			if slices.ContainsFunc(out, func(r *model.ScannedCode) bool { return r != nil && r.ID == id }) {
				continue
			}
			code := c.code
			i := slices.IndexFunc(out, func(r *model.ScannedCode) bool { return r != nil && r.CapturedAt.Before(code.CapturedAt) })
			if i < 0 {
				i = len(out)
			}
			out = slices.Insert(out, i, &code)
		}
	}
	return out
}

// matchTentative returns the first unshadowed tentative entry r could be
// the server copy of, or -1. Records from a different origin never match.
func matchTentative(tentative []model.Entry, r *model.ScannedCode, proximity time.Duration) int {
	for i, t := range tentative {
		if t.Shadow != nil || t.Code.Payload != r.Payload {
			continue
		}
		if t.Code.Origin != "" && r.Origin != "" && t.Code.Origin != r.Origin {
			continue
		}
		if d := t.Code.CapturedAt.Sub(r.CapturedAt).Abs(); d <= proximity {
			return i
		}
	}
	return -1
}
