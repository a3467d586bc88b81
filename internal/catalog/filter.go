package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidFilter = errors.New("invalid category filter")

// CategoryFilter restricts a product listing to a set of category ids.
// The zero value means no filter.
type CategoryFilter struct {
	ids []int64
}

func NewCategoryFilter(ids ...int64) (CategoryFilter, error) {
	var f CategoryFilter
	for _, id := range ids {
		if err := f.add(id); err != nil {
			return CategoryFilter{}, err
		}
	}
	return f, nil
}

func (f CategoryFilter) IDs() []int64 {
	out := make([]int64, len(f.ids))
	copy(out, f.ids)
	return out
}

func (f CategoryFilter) IsEmpty() bool {
	return len(f.ids) == 0
}

func (f *CategoryFilter) add(id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: category id must be positive, got %d", ErrInvalidFilter, id)
	}
	for _, existing := range f.ids {
		if existing == id {
			return nil
		}
	}
	f.ids = append(f.ids, id)
	return nil
}

func (f *CategoryFilter) addString(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q is not a category id", ErrInvalidFilter, s)
	}
	return f.add(id)
}

// UnmarshalJSON accepts null, a single id, an array of ids (numbers or numeric
// strings) or a comma separated string. Any other shape is rejected.
func (f *CategoryFilter) UnmarshalJSON(data []byte) error {
	*f = CategoryFilter{}

	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
		for _, elem := range raw {
			if err := f.addScalar(elem, false); err != nil {
				return err
			}
		}
		return nil
	default:
		return f.addScalar(data, true)
	}
}

func (f *CategoryFilter) addScalar(data json.RawMessage, allowList bool) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("%w: empty value", ErrInvalidFilter)
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
		if !allowList {
			return f.addString(s)
		}
		for _, part := range strings.Split(s, ",") {
			if err := f.addString(part); err != nil {
				return err
			}
		}
		return nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var id int64
		if err := json.Unmarshal(data, &id); err != nil {
			return fmt.Errorf("%w: %s is not a category id", ErrInvalidFilter, data)
		}
		return f.add(id)
	default:
		return fmt.Errorf("%w: unsupported value %s", ErrInvalidFilter, data)
	}
}

// ParseCategoryValues builds a filter from query string values, where each
// value may itself be a comma separated list.
func ParseCategoryValues(values []string) (CategoryFilter, error) {
	var f CategoryFilter
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if err := f.addString(part); err != nil {
				return CategoryFilter{}, err
			}
		}
	}
	return f, nil
}
