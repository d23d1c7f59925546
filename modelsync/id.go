package modelsync

import (
	"bytes"
	"encoding/json"

	"github.com/oklog/ulid/v2"
)

// comparable
// client side id for instances, subscriptions and callbacks.
// model entities use the integer ids assigned by the server.
type Id [16]byte

func NewId() Id {
	return Id(ulid.Make())
}

func ParseId(idStr string) (Id, error) {
	u, err := ulid.ParseStrict(idStr)
	if err != nil {
		return Id{}, err
	}
	return Id(u), nil
}

func (self Id) Bytes() []byte {
	return self[0:16]
}

func (self Id) String() string {
	return ulid.ULID(self).String()
}

// ulids are ordered by create time
func (self Id) LessThan(b Id) bool {
	return bytes.Compare(self[:], b[:]) < 0
}

func (self Id) MarshalJSON() ([]byte, error) {
	return json.Marshal(self.String())
}

func (self *Id) UnmarshalJSON(src []byte) error {
	var idStr string
	if err := json.Unmarshal(src, &idStr); err != nil {
		return err
	}
	id, err := ParseId(idStr)
	if err != nil {
		return err
	}
	*self = id
	return nil
}
