package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// FlexFloat decodes a JSON number or numeric string into a float64.
// Dilax and SmarTrak payloads mix both representations for the same field
// across firmware versions.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		v, err := n.Float64()
		if err != nil {
			return err
		}
		*f = FlexFloat(v)
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("flexfloat: %w", err)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("flexfloat: parse %q: %w", s, err)
	}
	*f = FlexFloat(v)
	return nil
}

func (f FlexFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if v == float64(int64(v)) {
		return json.Marshal(int64(v))
	}
	return json.Marshal(v)
}

// FlexInt decodes a JSON number or numeric string into an int64.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		v, err := n.Int64()
		if err != nil {
			fv, ferr := n.Float64()
			if ferr != nil {
				return err
			}
			*f = FlexInt(int64(fv))
			return nil
		}
		*f = FlexInt(v)
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("flexint: %w", err)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("flexint: parse %q: %w", s, err)
	}
	*f = FlexInt(v)
	return nil
}

func (f FlexInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(int64(f))
}
