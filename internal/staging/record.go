package staging

import (
	"fmt"

	"dvcs/internal/fingerprint"
)

// Slot names one of the three fingerprint positions of a Record.
type Slot int

const (
	SlotWorkingDirectory Slot = iota
	SlotStaging
	SlotRepositoryVersion
)

func (s Slot) String() string {
	switch s {
	case SlotWorkingDirectory:
		return "working_directory"
	case SlotStaging:
		return "staging"
	case SlotRepositoryVersion:
		return "repository_version"
	default:
		return fmt.Sprintf("slot(%d)", int(s))
	}
}

func ParseSlot(name string) (Slot, error) {
	switch name {
	case "working_directory", "working":
		return SlotWorkingDirectory, nil
	case "staging", "staged":
		return SlotStaging, nil
	case "repository_version", "repository":
		return SlotRepositoryVersion, nil
	}
	return 0, fmt.Errorf("unknown slot %q", name)
}

// Record holds what is known about one path in each of the three places.
// A nil slot means the path is absent there.
type Record struct {
	WorkingDirectory  *fingerprint.Fingerprint `json:"working_directory"`
	Staging           *fingerprint.Fingerprint `json:"staging"`
	RepositoryVersion *fingerprint.Fingerprint `json:"repository_version"`
}

func (r *Record) Get(slot Slot) *fingerprint.Fingerprint {
	switch slot {
	case SlotWorkingDirectory:
		return r.WorkingDirectory
	case SlotStaging:
		return r.Staging
	case SlotRepositoryVersion:
		return r.RepositoryVersion
	}
	return nil
}

func (r *Record) Set(slot Slot, fp *fingerprint.Fingerprint) {
	switch slot {
	case SlotWorkingDirectory:
		r.WorkingDirectory = fp
	case SlotStaging:
		r.Staging = fp
	case SlotRepositoryVersion:
		r.RepositoryVersion = fp
	}
}

// Empty reports a logically deleted record.
func (r *Record) Empty() bool {
	return r.WorkingDirectory == nil && r.Staging == nil && r.RepositoryVersion == nil
}

// clone copies the record so callers cannot reach into index state.
func (r *Record) clone() Record {
	out := Record{}
	for _, slot := range []Slot{SlotWorkingDirectory, SlotStaging, SlotRepositoryVersion} {
		if fp := r.Get(slot); fp != nil {
			c := *fp
			out.Set(slot, &c)
		}
	}
	return out
}
