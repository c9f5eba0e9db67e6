package model

import "encoding/json"

// DefectItem is an opaque defect record. The log never inspects it.
type DefectItem = json.RawMessage

// DefectEntry groups the defects recorded for one date.
// Date is an opaque key compared by exact string equality.
type DefectEntry struct {
	Date    string       `json:"date"`
	Defects []DefectItem `json:"defects"`
}

// DefectLog is the ordered list of entries, at most one per distinct date.
type DefectLog []DefectEntry

// Index returns the position of the entry for date, or -1.
func (l DefectLog) Index(date string) int {
	for i, e := range l {
		if e.Date == date {
			return i
		}
	}
	return -1
}
