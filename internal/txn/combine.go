package txn

import (
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/gravitas-games/stationhost/internal/catalog"
	"github.com/gravitas-games/stationhost/internal/inventory"
)

// CategoryLookup resolves the reagent category of a definition.
type CategoryLookup interface {
	CategoryOf(def inventory.DefinitionID) catalog.Category
}

// Reagent is one distinct (definition, token) pair in a selection.
type Reagent struct {
	Def      inventory.DefinitionID
	Token    string
	Qty      int
	Category catalog.Category
	Refs     []inventory.SlotRef
}

// DerivedTokenLen is the hex length of a derived combine token.
const DerivedTokenLen = 32

// combineDomainKey is "stationhost.combine" zero-padded to 32 bytes.
var combineDomainKey = [32]byte{
	's', 't', 'a', 't', 'i', 'o', 'n', 'h', 'o', 's', 't', '.',
	'c', 'o', 'm', 'b', 'i', 'n', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// MatchCategories groups the selected slots by (definition, token) and
// verifies every reagent category has at least one unit. Duplicate refs are
// counted once. It reads the store only.
func MatchCategories(s *inventory.Store, lookup CategoryLookup, refs []inventory.SlotRef) ([]Reagent, error) {
	if len(refs) == 0 {
		return nil, Reject(PreconditionFailed, "nothing selected")
	}
	type key struct {
		def   inventory.DefinitionID
		token string
	}
	seen := make(map[inventory.SlotRef]struct{}, len(refs))
	index := make(map[key]int)
	var groups []Reagent
	tally := make(map[catalog.Category]int)

	for _, ref := range refs {
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		if !s.InRange(ref) {
			return nil, Rejectf(PreconditionFailed, "%s slot %d out of range", ref.Area, ref.Index)
		}
		st := s.GetSlot(ref)
		if st.IsEmpty() {
			return nil, Rejectf(PreconditionFailed, "%s slot %d is empty", ref.Area, ref.Index)
		}
		cat := lookup.CategoryOf(st.Def)
		if cat == catalog.CategoryNone {
			return nil, Rejectf(PreconditionFailed, "item %d is not a reagent", st.Def)
		}
		k := key{def: st.Def, token: st.Token}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Reagent{Def: st.Def, Token: st.Token, Category: cat})
		}
		groups[i].Qty += int(st.Qty)
		groups[i].Refs = append(groups[i].Refs, ref)
		tally[cat] += int(st.Qty)
	}

	for _, cat := range catalog.ReagentCategories {
		if tally[cat] == 0 {
			return nil, &Rejection{Code: PreconditionFailed, Reason: "missing " + cat.String(), Err: ErrMissingCategory}
		}
	}
	return groups, nil
}

// DeriveToken returns the configuration token of a combination result. The
// same reagent multiset always yields the same token regardless of
// selection order.
func DeriveToken(groups []Reagent) string {
	parts := make([]string, 0, len(groups))
	for _, g := range groups {
		var b strings.Builder
		b.WriteString(strconv.FormatUint(uint64(g.Def), 10))
		if g.Token != "" {
			b.WriteByte(':')
			b.WriteString(g.Token)
		}
		b.WriteByte('x')
		b.WriteString(strconv.Itoa(g.Qty))
		parts = append(parts, b.String())
	}
	sort.Strings(parts)

	hasher, err := blake3.NewKeyed(combineDomainKey[:])
	if err != nil {
		panic("txn: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(strings.Join(parts, "|")))
	sum := hasher.Sum(nil)
	return hex.EncodeToString(sum[:DerivedTokenLen/2])
}

// ConsumeReagents returns steps removing every selected stack whole.
func ConsumeReagents(s *inventory.Store, groups []Reagent) []Step {
	var steps []Step
	for _, g := range groups {
		for _, ref := range g.Refs {
			steps = append(steps, ExtractAll(s, ref))
		}
	}
	return steps
}
