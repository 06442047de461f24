// Package patch implements the engine's JSON-Patch (RFC 6902) state
// accumulation: applying a patch to advance state, and diffing two states
// to produce the patch the engine records as a step's outcome.
//
// Apply delegates to evanphx/json-patch, which implements RFC 6902 exactly
// (add, remove, replace, move, copy, test, including the "-" append index
// and empty-patch identity). Diff has no equivalent in that library (it
// only offers RFC 7396 merge-patch creation), so it is hand-rolled here;
// see DESIGN.md for why no third-party RFC 6902 differ was available.
package patch

import (
	"encoding/json"
	"fmt"
	"sort"

	jsonpatch "github.com/evanphx/json-patch/v5"
)

// Op is a single RFC 6902 JSON-Patch operation.
type Op struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	From  string          `json:"from,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Patch is an ordered list of Ops, applied left to right.
type Patch []Op

// ErrInvalidPatch wraps a patch application failure. Per the engine
// contract, an invalid patch encountered during resume is fatal
// (ENGINE_INTERNAL), never surfaced as a step error.
type ErrInvalidPatch struct {
	Cause error
}

func (e *ErrInvalidPatch) Error() string { return fmt.Sprintf("patch: invalid patch: %v", e.Cause) }
func (e *ErrInvalidPatch) Unwrap() error { return e.Cause }

// Apply applies patch to state and returns the resulting value. state may
// be nil (representing a null root). An empty patch is the identity.
func Apply(state any, p Patch) (any, error) {
	if len(p) == 0 {
		return DeepClone(state), nil
	}
	doc, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("patch: marshal state: %w", err)
	}
	patchJSON, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("patch: marshal patch: %w", err)
	}
	decoded, err := jsonpatch.DecodePatch(patchJSON)
	if err != nil {
		return nil, &ErrInvalidPatch{Cause: err}
	}
	out, err := decoded.Apply(doc)
	if err != nil {
		return nil, &ErrInvalidPatch{Cause: err}
	}
	var result any
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, fmt.Errorf("patch: unmarshal result: %w", err)
	}
	return result, nil
}

// DeepClone returns a structurally independent copy of v by round-tripping
// through JSON. Suitable for the JSON-shaped values this engine operates on.
func DeepClone(v any) any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		// Values flowing through the engine are always JSON-marshalable by
		// contract (they originate from step bodies and JSON decoding).
		panic(fmt.Sprintf("patch: deepClone: value is not JSON-marshalable: %v", err))
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		panic(fmt.Sprintf("patch: deepClone: %v", err))
	}
	return out
}

// Diff computes the forward RFC 6902 patch transforming oldState into
// newState. The result, applied to oldState via Apply, reproduces newState
// exactly (modulo key ordering, which JSON objects do not observe).
func Diff(oldState, newState any) (Patch, error) {
	oldB, err := json.Marshal(oldState)
	if err != nil {
		return nil, fmt.Errorf("patch: marshal old state: %w", err)
	}
	newB, err := json.Marshal(newState)
	if err != nil {
		return nil, fmt.Errorf("patch: marshal new state: %w", err)
	}
	var oldV, newV any
	if err := json.Unmarshal(oldB, &oldV); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(newB, &newV); err != nil {
		return nil, err
	}
	var ops Patch
	diffValue("", oldV, newV, &ops)
	return ops, nil
}

func diffValue(path string, oldV, newV any, ops *Patch) {
	if jsonEqual(oldV, newV) {
		return
	}
	oldMap, oldIsMap := oldV.(map[string]any)
	newMap, newIsMap := newV.(map[string]any)
	if oldIsMap && newIsMap {
		diffObjects(path, oldMap, newMap, ops)
		return
	}
	oldArr, oldIsArr := oldV.([]any)
	newArr, newIsArr := newV.([]any)
	if oldIsArr && newIsArr {
		diffArrays(path, oldArr, newArr, ops)
		return
	}
	*ops = append(*ops, replaceOrAddOp(path, oldV, newV))
}

func replaceOrAddOp(path string, oldV, newV any) Op {
	val, _ := json.Marshal(newV)
	if path == "" {
		return Op{Op: "replace", Path: "", Value: val}
	}
	if oldV == nil {
		return Op{Op: "add", Path: path, Value: val}
	}
	return Op{Op: "replace", Path: path, Value: val}
}

func diffObjects(path string, oldMap, newMap map[string]any, ops *Patch) {
	keys := make(map[string]struct{}, len(oldMap)+len(newMap))
	for k := range oldMap {
		keys[k] = struct{}{}
	}
	for k := range newMap {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	for _, k := range sorted {
		childPath := path + "/" + escapeToken(k)
		oldChild, oldHas := oldMap[k]
		newChild, newHas := newMap[k]
		switch {
		case oldHas && !newHas:
			*ops = append(*ops, Op{Op: "remove", Path: childPath})
		case !oldHas && newHas:
			val, _ := json.Marshal(newChild)
			*ops = append(*ops, Op{Op: "add", Path: childPath, Value: val})
		default:
			diffValue(childPath, oldChild, newChild, ops)
		}
	}
}

// diffArrays produces a minimal-ish set of ops for the common prefix/suffix
// case and falls back to a full replace for arbitrary reorderings. This
// matches the RFC 6902 ops the spec requires (add/remove/replace) without
// attempting an LCS-based minimal diff.
func diffArrays(path string, oldArr, newArr []any, ops *Patch) {
	minLen := len(oldArr)
	if len(newArr) < minLen {
		minLen = len(newArr)
	}
	for i := 0; i < minLen; i++ {
		diffValue(fmt.Sprintf("%s/%d", path, i), oldArr[i], newArr[i], ops)
	}
	switch {
	case len(newArr) > len(oldArr):
		for i := len(oldArr); i < len(newArr); i++ {
			val, _ := json.Marshal(newArr[i])
			*ops = append(*ops, Op{Op: "add", Path: path + "/-", Value: val})
		}
	case len(oldArr) > len(newArr):
		// Remove from the tail backwards so indices stay valid.
		for i := len(oldArr) - 1; i >= len(newArr); i-- {
			*ops = append(*ops, Op{Op: "remove", Path: fmt.Sprintf("%s/%d", path, i)})
		}
	}
}

func jsonEqual(a, b any) bool {
	ab, err1 := json.Marshal(a)
	bb, err2 := json.Marshal(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return string(ab) == string(bb)
}

func escapeToken(tok string) string {
	// RFC 6901 escaping: "~" -> "~0", "/" -> "~1".
	out := make([]byte, 0, len(tok))
	for i := 0; i < len(tok); i++ {
		switch tok[i] {
		case '~':
			out = append(out, '~', '0')
		case '/':
			out = append(out, '~', '1')
		default:
			out = append(out, tok[i])
		}
	}
	return string(out)
}
