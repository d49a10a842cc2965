package dmx

import "github.com/google/uuid"

// Id is an element's 128-bit GUID (spec §3: "id: 128-bit GUID, globally
// unique within its datamodel"). It wraps uuid.UUID rather than the
// teacher package's string-typed Id (miren.dev/runtime/pkg/entity/types),
// since this format's wire encodings (keyvalues2 in particular) carry ids
// as canonical 8-4-4-4-12 text that uuid.UUID already parses and renders.
type Id uuid.UUID

// NilId is the zero GUID, used as the "no id yet" sentinel.
var NilId = Id(uuid.Nil)

// NewId generates a fresh random (v4) GUID, per spec §4.4
// ("CreateElement ... generates a fresh id (v4 GUID) if not provided").
func NewId() Id {
	return Id(uuid.New())
}

// ParseId parses a canonical 8-4-4-4-12 GUID string, as used by the
// keyvalues2 codec.
func ParseId(s string) (Id, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Id{}, err
	}
	return Id(u), nil
}

func (id Id) String() string { return uuid.UUID(id).String() }

func (id Id) IsNil() bool { return id == NilId }
