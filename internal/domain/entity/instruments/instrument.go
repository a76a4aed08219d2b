package instruments

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// DefaultReservedPrefix marks exchange-internal listings (bond issues, rights)
// that carry no daily share history.
const DefaultReservedPrefix = "E"

// Instrument is one listed symbol of the remote exchange.
type Instrument struct {
	UID  uuid.UUID `json:"uid"`
	Code string    `json:"code"`
	Name string    `json:"name"`
}

// New builds an instrument with a UID derived from its code, so the same code
// always maps to the same UID across runs and backends.
func New(code, name string) Instrument {
	code = strings.ToUpper(strings.TrimSpace(code))
	name = strings.TrimSpace(name)
	if name == "" {
		name = code
	}
	return Instrument{
		UID:  stableUID(code),
		Code: code,
		Name: name,
	}
}

func (i Instrument) GetUID() uuid.UUID { return i.UID }
func (i Instrument) GetCode() string   { return i.Code }
func (i Instrument) GetName() string   { return i.Name }

// Filter decides which instruments take part in synchronization.
type Filter struct {
	ReservedPrefix string
	// Allow restricts synchronization to these codes when not empty.
	Allow map[string]struct{}
}

func NewFilter(reservedPrefix string, allow []string) Filter {
	f := Filter{ReservedPrefix: reservedPrefix}
	if len(allow) > 0 {
		f.Allow = make(map[string]struct{}, len(allow))
		for _, code := range allow {
			code = strings.ToUpper(strings.TrimSpace(code))
			if code != "" {
				f.Allow[code] = struct{}{}
			}
		}
	}
	return f
}

// IsSyncable rejects synthetic or delisted markers: codes or names with
// digits, and names starting with the reserved prefix.
func (f Filter) IsSyncable(inst Instrument) bool {
	if inst.Code == "" {
		return false
	}
	if containsDigit(inst.Code) || containsDigit(inst.Name) {
		return false
	}
	label := inst.Name
	if label == "" {
		label = inst.Code
	}
	if f.ReservedPrefix != "" && strings.HasPrefix(label, f.ReservedPrefix) {
		return false
	}
	if len(f.Allow) > 0 {
		if _, ok := f.Allow[inst.Code]; !ok {
			return false
		}
	}
	return true
}

// Apply returns the syncable instruments in input order, dropping duplicate codes.
func (f Filter) Apply(list []Instrument) (kept []Instrument, skipped []Instrument) {
	seen := make(map[string]struct{}, len(list))
	for _, inst := range list {
		if _, dup := seen[inst.Code]; dup {
			continue
		}
		seen[inst.Code] = struct{}{}
		if f.IsSyncable(inst) {
			kept = append(kept, inst)
		} else {
			skipped = append(skipped, inst)
		}
	}
	return kept, skipped
}

func containsDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

func stableUID(code string) uuid.UUID {
	if code == "" {
		return uuid.Nil
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("instrument:"+strings.ToLower(code)))
}
