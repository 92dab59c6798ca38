// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package connection

import (
	"bytes"
	"encoding/json"
)

// decodeStrict unmarshals raw over dest, rejecting unknown keys.
func decodeStrict(raw json.RawMessage, dest any, field string) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return invalidf(field, "%v", err)
	}
	return nil
}

// applyPatch merges a shallow patch into staged. Each top-level key present
// in the patch replaces the corresponding section; object fields the patch
// omits fall back to their schema defaults, mirroring how the staged model
// is rebuilt from a document. Unknown keys are rejected.
func applyPatch(staged StagedState, patch map[string]json.RawMessage, defaultVolume int) (StagedState, error) {
	out := staged.Clone()
	for key, raw := range patch {
		switch key {
		case "master_enable":
			var v bool
			if err := decodeStrict(raw, &v, "master_enable"); err != nil {
				return StagedState{}, err
			}
			out.MasterEnable = v
		case "transport_params":
			var elems []json.RawMessage
			if err := decodeStrict(raw, &elems, "transport_params"); err != nil {
				return StagedState{}, err
			}
			params := make([]TransportParams, 0, len(elems))
			for _, elem := range elems {
				tp := DefaultTransportParams()
				if err := decodeStrict(elem, &tp, "transport_params"); err != nil {
					return StagedState{}, err
				}
				params = append(params, tp)
			}
			out.TransportParams = params
		case "activation":
			act := ActivationParams{Mode: ModeActivateImmediate}
			if err := decodeStrict(raw, &act, "activation"); err != nil {
				return StagedState{}, err
			}
			out.Activation = act
		case "audio":
			au := AudioParams{Volume: defaultVolume}
			if err := decodeStrict(raw, &au, "audio"); err != nil {
				return StagedState{}, err
			}
			out.Audio = au
		default:
			return StagedState{}, invalidf(key, "unknown field")
		}
	}
	if err := validateStaged(out); err != nil {
		return StagedState{}, err
	}
	return out, nil
}
