package abilitycode

import (
	"encoding/base64"
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// wire is the binary layout: [unlocked, slots, levels].
type wire struct {
	_        struct{} `cbor:",toarray"`
	Unlocked []int
	Slots    []int
	Levels   map[int]int
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("abilitycode: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		MaxArrayElements: 16,
		MaxMapPairs:      16,
		IndefLength:      cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic("abilitycode: CBOR decoder initialization failed: " + err.Error())
	}
}

// DecodeError reports a token that could not be turned into a valid Config.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("abilitycode: decode: %s: %v", e.Reason, e.Err)
	}
	return "abilitycode: decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Encode validates c and returns its token. The empty configuration encodes
// to "".
func Encode(c Config) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	if c.IsEmpty() {
		return "", nil
	}
	w := wire{
		Unlocked: c.Unlocked,
		Slots:    c.Slots[:],
		Levels:   c.Levels,
	}
	if w.Unlocked == nil {
		w.Unlocked = []int{}
	}
	if w.Levels == nil {
		w.Levels = map[int]int{}
	}
	raw, err := encMode.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("abilitycode: encode: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	if len(token) > TokenCapacity {
		return "", ErrEncodeOverflow
	}
	return token, nil
}

// Decode parses a token. It never returns a partially valid Config: every
// failure is a *DecodeError.
func Decode(token string) (Config, error) {
	if token == "" {
		return New(), nil
	}
	if len(token) > TokenCapacity {
		return Config{}, &DecodeError{Reason: fmt.Sprintf("token length %d exceeds %d", len(token), TokenCapacity)}
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Config{}, &DecodeError{Reason: "bad encoding", Err: err}
	}
	var w wire
	if err := decMode.Unmarshal(raw, &w); err != nil {
		return Config{}, &DecodeError{Reason: "bad payload", Err: err}
	}
	if len(w.Slots) != ControlSlots {
		return Config{}, &DecodeError{Reason: fmt.Sprintf("expected %d control slots, got %d", ControlSlots, len(w.Slots))}
	}

	c := New()
	copy(c.Slots[:], w.Slots)
	if len(w.Unlocked) > 0 {
		c.Unlocked = append([]int(nil), w.Unlocked...)
		sort.Ints(c.Unlocked)
	}
	if len(w.Levels) > 0 {
		c.Levels = w.Levels
	}
	if err := c.Validate(); err != nil {
		return Config{}, &DecodeError{Reason: "invalid configuration", Err: err}
	}
	return c, nil
}
